package rwa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

const (
	partHistory  = "history"
	partListings = "listings"
	partTokens   = "tokens"
	partLoans    = "loans"
)

func balancePart(currency model.Currency) string {
	return "balance:" + string(currency)
}

// ViewRefresher rebuilds an identity's view from the services. It never
// serves cached data: every part is read again on each call.
type ViewRefresher struct {
	backends    *backend.Backends
	currencies  []model.CurrencyInfo
	retryWindow time.Duration
	tracer      trace.Tracer
}

func NewViewRefresher(backends *backend.Backends, currencies []model.CurrencyInfo, retryWindow time.Duration) *ViewRefresher {
	return &ViewRefresher{
		backends:    backends,
		currencies:  currencies,
		retryWindow: retryWindow,
		tracer:      otel.Tracer("rwa.refresher"),
	}
}

// Refresh reads both balances, the identity's history, listings, tokens and
// loans concurrently. Transient read failures are retried within the retry
// window.
//
// A part that still fails keeps its value from previous and is named in
// View.Stale; the returned error is then STALE_VIEW with the failures as
// details. The view is returned in every case.
func (r *ViewRefresher) Refresh(ctx context.Context, identity string, previous *model.View) (*model.View, error) {
	ctx, span := r.tracer.Start(ctx, "rwa.refresh", trace.WithAttributes(attribute.String("rwa.identity", identity)))
	defer span.End()

	view := &model.View{Identity: identity, Balances: model.Balances{}}
	if previous != nil {
		for currency, balance := range previous.Balances {
			view.Balances[currency] = balance
		}
		view.History = previous.History
		view.Listings = previous.Listings
		view.Tokens = previous.Tokens
		view.Loans = previous.Loans
	}

	var (
		mu       sync.Mutex
		failures = map[string]string{}
	)
	fail := func(part string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[part] = err.Error()
	}

	var g errgroup.Group
	for _, c := range r.currencies {
		currency := c.Tag
		g.Go(func() error {
			balance, err := backend.RetryRead(ctx, r.retryWindow, func(ctx context.Context) (int64, error) {
				return r.backends.Ledger.GetBalance(ctx, identity, currency)
			})
			if err != nil {
				fail(balancePart(currency), err)
				return nil
			}
			mu.Lock()
			view.Balances[currency] = balance
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		history, err := backend.RetryRead(ctx, r.retryWindow, func(ctx context.Context) ([]model.TransactionRecord, error) {
			return r.backends.History.History(ctx, identity)
		})
		if err != nil {
			fail(partHistory, err)
			return nil
		}
		mu.Lock()
		view.History = history
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		listings, err := backend.RetryRead(ctx, r.retryWindow, r.backends.Marketplace.ListAll)
		if err != nil {
			fail(partListings, err)
			return nil
		}
		mu.Lock()
		view.Listings = listings
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		tokens, err := backend.RetryRead(ctx, r.retryWindow, r.backends.Marketplace.ListTokens)
		if err != nil {
			fail(partTokens, err)
			return nil
		}
		mu.Lock()
		view.Tokens = tokens
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		loans, err := backend.RetryRead(ctx, r.retryWindow, r.backends.Loans.ListLoans)
		if err != nil {
			fail(partLoans, err)
			return nil
		}
		mu.Lock()
		view.Loans = loans
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	view.RefreshedAt = time.Now().UTC()
	if len(failures) == 0 {
		return view, nil
	}

	for part := range failures {
		view.Stale = append(view.Stale, part)
	}
	sort.Strings(view.Stale)
	span.SetAttributes(attribute.StringSlice("rwa.stale", view.Stale))
	logrus.WithFields(logrus.Fields{
		"identity": identity,
		"stale":    view.Stale,
	}).Warn("view refresh incomplete")

	return view, apierror.NewAPIError(apierror.ErrStaleView,
		fmt.Sprintf("view of %s could not be refreshed: %s", identity, strings.Join(view.Stale, ", ")),
		failures)
}
