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

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/rwa/config"
)

// Rwa represents the CLI application, encapsulating the root Cobra command.
type Rwa struct {
	cmd *cobra.Command
}

// rwaInstance holds the configuration loaded before any command runs.
// Commands that need the platform build it themselves, so the sandbox can
// start without redis.
type rwaInstance struct {
	configFile string
	cnf        *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file before any command runs.
func preRun(app *rwaInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(app.configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// NewCLI creates the root command with the start, workers, sandbox and
// config subcommands.
func NewCLI() *Rwa {
	r := &rwaInstance{}

	var rootCmd = &cobra.Command{
		Use:   "rwa",
		Short: "Real world asset tokenization and lending orchestrator",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&r.configFile, "config", "./rwa.json", "Configuration file for the rwa platform")
	rootCmd.PersistentPreRunE = preRun(r)

	rootCmd.AddCommand(serverCommands(r))
	rootCmd.AddCommand(workerCommands(r))
	rootCmd.AddCommand(sandboxCommands(r))
	rootCmd.AddCommand(configCommands(r))

	return &Rwa{cmd: rootCmd}
}

func (w Rwa) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
