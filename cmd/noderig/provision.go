// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/proxy"

	"github.com/noderig/noderig/backup"
	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/downloader"
	"github.com/noderig/noderig/firewall"
	"github.com/noderig/noderig/internal/cmd"
	"github.com/noderig/noderig/packaging"
	"github.com/noderig/noderig/provision"
)

var provisionDoc = `
provision runs the full provisioning sequence for this host. It is
idempotent: a partially provisioned host is fixed by running it again.
The sequence stops at the first failure.

Steps gated by configuration toggles (enable-validator, enable-mev-boost,
enable-monitoring, enable-firewall, enable-hardening, enable-backups)
are skipped when disabled.
`[1:]

func newProvisionCommand() cmd.Command {
	return &provisionCommand{}
}

type provisionCommand struct {
	cmd.CommandBase

	configPath     string
	passphraseFile string
}

func (c *provisionCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "provision",
		Purpose: "provision this host from its configuration",
		Doc:     provisionDoc,
	}
}

func (c *provisionCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file")
	f.StringVar(&c.passphraseFile, "passphrase-file", "", "file holding the passphrase of an encrypted configuration")
}

func (c *provisionCommand) Run(ctx *cmd.Context) error {
	cfg, err := loadConfig(ctx, c.configPath, c.passphraseFile)
	if err != nil {
		return errors.Trace(err)
	}

	paths := provision.DefaultPaths()
	paths.ConfigPath = ctx.AbsPath(c.configPath)
	if c.passphraseFile != "" {
		paths.PassphraseFile = ctx.AbsPath(c.passphraseFile)
	}
	httpProxy, httpsProxy, noProxy := cfg.AptProxySettings()
	p, err := provision.NewProvisioner(cfg, paths, provision.Deps{
		Packages: packaging.NewAptGet(proxy.Settings{
			Http:    httpProxy,
			Https:   httpsProxy,
			NoProxy: noProxy,
		}),
		Download: downloader.New(&http.Client{Timeout: 30 * time.Minute}, clock.WallClock),
		Firewall: firewall.NewFirewall(),
		Backups:  backup.NewBackups(clock.WallClock),
		Clock:    clock.WallClock,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.Run(ctx))
}

// loadConfig reads the configuration file. When it is encrypted the
// passphrase comes from the first line of passphraseFile if one was
// given, so unattended invocations (cron) can load it, and from an
// interactive prompt otherwise.
func loadConfig(ctx *cmd.Context, configPath, passphraseFile string) (*config.Config, error) {
	path := ctx.AbsPath(configPath)
	cfg, err := config.ReadFile(path, func() (string, error) {
		if passphraseFile != "" {
			data, err := os.ReadFile(ctx.AbsPath(passphraseFile))
			if err != nil {
				return "", errors.Trace(err)
			}
			pass, _, _ := strings.Cut(string(data), "\n")
			return strings.TrimRight(pass, "\r"), nil
		}
		return newPassphraseReader(ctx).read("Passphrase: ")
	})
	return cfg, errors.Annotatef(err, "loading configuration %q", path)
}
