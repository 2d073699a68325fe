// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/core/clients"
	"github.com/noderig/noderig/internal/cmd"
	"github.com/noderig/noderig/service"
	"github.com/noderig/noderig/service/common"
)

var statusDoc = `
status reports the installed and running state of every unit this host's
configuration manages.
`[1:]

func newStatusCommand() cmd.Command {
	return &statusCommand{newService: func(name string) (service.Service, error) {
		return service.NewService(name, common.Conf{})
	}}
}

type statusCommand struct {
	cmd.CommandBase

	configPath     string
	passphraseFile string
	newService     func(name string) (service.Service, error)
}

func (c *statusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "status",
		Purpose: "show the state of the managed services",
		Doc:     statusDoc,
	}
}

func (c *statusCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file")
	f.StringVar(&c.passphraseFile, "passphrase-file", "", "file holding the passphrase of an encrypted configuration")
}

// managedServices returns the unit names the configuration implies, in
// provisioning order.
func managedServices(cfg *config.Config) ([]string, error) {
	execution, err := clients.ByName(clients.Execution, cfg.ExecutionClient())
	if err != nil {
		return nil, errors.Trace(err)
	}
	consensus, err := clients.ByName(clients.Consensus, cfg.ConsensusClient())
	if err != nil {
		return nil, errors.Trace(err)
	}
	names := []string{execution.ServiceName(), consensus.ServiceName()}
	if cfg.ValidatorEnabled() && consensus.SupportsValidator() {
		names = append(names, consensus.ValidatorServiceName())
	}
	if cfg.MEVBoostEnabled() {
		names = append(names, "noderig-mev-boost")
	}
	if cfg.MonitoringEnabled() {
		names = append(names, "noderig-node-exporter")
	}
	return names, nil
}

func (c *statusCommand) Run(ctx *cmd.Context) error {
	cfg, err := loadConfig(ctx, c.configPath, c.passphraseFile)
	if err != nil {
		return errors.Trace(err)
	}
	names, err := managedServices(cfg)
	if err != nil {
		return errors.Trace(err)
	}

	w := tabwriter.NewWriter(ctx.Stdout, 0, 1, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tINSTALLED\tRUNNING")
	for _, name := range names {
		svc, err := c.newService(name)
		if err != nil {
			return errors.Trace(err)
		}
		installed, err := svc.Installed()
		if err != nil {
			return errors.Trace(err)
		}
		running := false
		if installed {
			if running, err = svc.Running(); err != nil {
				return errors.Trace(err)
			}
		}
		fmt.Fprintf(w, "%s\t%v\t%v\n", name, installed, running)
	}
	return errors.Trace(w.Flush())
}
