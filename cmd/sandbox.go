package main

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/rwa/sandbox"
)

// sandboxCommands serves in-memory ledger, marketplace, loan and history
// services over HTTP, so the api server can run without the real services.
func sandboxCommands(r *rwaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "start in-memory backing services",
		Run: func(cmd *cobra.Command, args []string) {
			srv := sandbox.NewServer(sandbox.New(r.cnf.Currencies))

			addr := fmt.Sprintf(":%s", r.cnf.Sandbox.Port)
			logrus.WithField("addr", addr).Info("starting sandbox services")
			if err := srv.Router().Run(addr); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
