// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// The noderig command provisions and manages an Ethereum node host.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noderig/noderig/internal/cmd"
	"github.com/noderig/noderig/version"
)

var noderigDoc = `
noderig provisions an Ethereum node host from a single configuration
file: it installs the selected execution and consensus clients, renders
and enables their systemd units, and optionally sets up a validator,
the mev-boost sidecar, monitoring, firewall rules, security hardening
and scheduled backups.

A typical first run:

    noderig init
    vi /etc/noderig/noderig.conf
    noderig encrypt
    noderig provision
`[1:]

// NewNoderigCommand returns the top level noderig command.
func NewNoderigCommand() *cmd.SuperCommand {
	top := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:                "noderig",
		Purpose:             "provision an Ethereum node host",
		Doc:                 noderigDoc,
		Version:             version.Current.String(),
		LoggingConfigEnvKey: "NODERIG_LOGGING_CONFIG",
	})
	top.Register(newInitCommand())
	top.Register(newEncryptCommand())
	top.Register(newDecryptCommand())
	top.Register(newProvisionCommand())
	top.Register(newBackupCommand())
	top.Register(newStatusCommand())
	return top
}

func main() {
	ctx, err := cmd.DefaultContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		os.Exit(2)
	}
	os.Exit(cmd.Main(NewNoderigCommand(), ctx, os.Args[1:]))
}
