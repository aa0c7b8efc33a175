/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rwa

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
)

// Step is one call of a saga. Compensate undoes a successful Action and is
// nil when the step cannot be undone.
//
// Verify reads back whether Action took effect. It is consulted when Action
// fails with TIMEOUT or UNREACHABLE, where the service may have applied the
// call before its reply was lost.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	Verify     func(ctx context.Context) (applied bool, err error)
}

// CompensationReport is attached to a COMPENSATION_FAILED error. It names
// what ran, what failed and what was never attempted.
type CompensationReport struct {
	Action             string   `json:"action"`
	FailedStep         string   `json:"failed_step"`
	StepError          string   `json:"step_error"`
	Compensated        []string `json:"compensated"`
	FailedCompensation string   `json:"failed_compensation"`
	CompensationError  string   `json:"compensation_error"`
	Skipped            []string `json:"skipped,omitempty"`
	Uncompensated      []string `json:"uncompensated,omitempty"`
	// Unverified is set when the outcome of FailedStep could not be read
	// back, so no compensation was attempted.
	Unverified bool `json:"unverified,omitempty"`
}

// SettlementCoordinator runs steps strictly in order. When step k fails the
// compensations of steps k-1..1 run in reverse before the failure is returned.
type SettlementCoordinator struct {
	tracer trace.Tracer
}

func NewSettlementCoordinator() *SettlementCoordinator {
	return &SettlementCoordinator{tracer: otel.Tracer("rwa.saga")}
}

// Run executes steps for action. A failed step is returned as is when it
// already carries a kind and as ACTION_REJECTED otherwise. A failed
// compensation stops all recovery and returns COMPENSATION_FAILED.
func (c *SettlementCoordinator) Run(ctx context.Context, action string, steps ...Step) error {
	for i, step := range steps {
		err := c.runStep(ctx, action, step)
		if err == nil {
			continue
		}

		stepErr := apierror.As(err, apierror.ErrActionRejected)
		if step.Verify != nil && backend.IsTransient(stepErr) {
			applied, verifyErr := c.verify(ctx, action, step)
			if verifyErr != nil {
				return c.unverified(action, steps[:i], step.Name, stepErr, verifyErr)
			}
			if applied {
				continue
			}
		}
		if i == 0 {
			return stepErr
		}
		if compErr := c.compensate(ctx, action, steps[:i], step.Name, stepErr); compErr != nil {
			return compErr
		}
		return stepErr
	}
	return nil
}

func (c *SettlementCoordinator) runStep(ctx context.Context, action string, step Step) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s.%s", action, step.Name),
		trace.WithAttributes(attribute.String("rwa.action", action), attribute.String("rwa.step", step.Name)))
	defer span.End()

	entry := logrus.WithFields(logrus.Fields{"action": action, "step": step.Name})
	entry.Debug("step started")

	if err := step.Action(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Debug("step failed")
		return err
	}
	entry.Debug("step finished")
	return nil
}

// verify reads back the outcome of a step whose call failed without a
// definite answer.
func (c *SettlementCoordinator) verify(ctx context.Context, action string, step Step) (bool, error) {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), fmt.Sprintf("%s.%s.verify", action, step.Name))
	defer span.End()

	entry := logrus.WithFields(logrus.Fields{"action": action, "step": step.Name})
	applied, err := step.Verify(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "outcome unknown")
		entry.WithError(err).Error("could not read back step outcome")
		return false, err
	}
	span.SetAttributes(attribute.Bool("rwa.applied", applied))
	entry.WithField("applied", applied).Warn("step outcome read back after indeterminate failure")
	return applied, nil
}

// unverified escalates a step whose outcome is unknown. Nothing is
// compensated: crediting back an applied step would pay twice.
func (c *SettlementCoordinator) unverified(action string, done []Step, failedStep string, stepErr apierror.APIError, verifyErr error) error {
	report := CompensationReport{
		Action:            action,
		FailedStep:        failedStep,
		StepError:         stepErr.Error(),
		Compensated:       []string{},
		CompensationError: verifyErr.Error(),
		Unverified:        true,
	}
	for k := len(done) - 1; k >= 0; k-- {
		if done[k].Compensate != nil {
			report.Skipped = append(report.Skipped, done[k].Name)
		} else {
			report.Uncompensated = append(report.Uncompensated, done[k].Name)
		}
	}
	return apierror.NewAPIError(apierror.ErrCompensationFailed,
		fmt.Sprintf("outcome of %s %s is unknown: state may be inconsistent", action, failedStep),
		report)
}

// compensate undoes done in reverse, detached from the caller's cancellation.
func (c *SettlementCoordinator) compensate(ctx context.Context, action string, done []Step, failedStep string, stepErr apierror.APIError) error {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), fmt.Sprintf("%s.compensate", action))
	defer span.End()

	report := CompensationReport{
		Action:      action,
		FailedStep:  failedStep,
		StepError:   stepErr.Error(),
		Compensated: []string{},
	}

	for j := len(done) - 1; j >= 0; j-- {
		step := done[j]
		entry := logrus.WithFields(logrus.Fields{"action": action, "step": step.Name, "failed_step": failedStep})

		if step.Compensate == nil {
			entry.Warn("step has no compensation, its effect stands")
			report.Uncompensated = append(report.Uncompensated, step.Name)
			continue
		}

		entry.Warn("compensating step")
		if err := step.Compensate(ctx); err != nil {
			report.FailedCompensation = step.Name
			report.CompensationError = err.Error()
			for k := j - 1; k >= 0; k-- {
				if done[k].Compensate != nil {
					report.Skipped = append(report.Skipped, done[k].Name)
				}
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")

			return apierror.NewAPIError(apierror.ErrCompensationFailed,
				fmt.Sprintf("%s failed and compensating %s also failed: state may be inconsistent", action, step.Name),
				report)
		}
		report.Compensated = append(report.Compensated, step.Name)
	}

	if len(report.Uncompensated) > 0 {
		logrus.WithFields(logrus.Fields{
			"action":        action,
			"failed_step":   failedStep,
			"uncompensated": report.Uncompensated,
		}).Warn("saga failed after steps that cannot be undone")
	}
	return nil
}
