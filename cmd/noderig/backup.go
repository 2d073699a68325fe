// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/noderig/noderig/backup"
	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/internal/cmd"
)

var backupDoc = `
backup archives the configuration and keystores into the configured
backup directory and prunes archives beyond the retention count. The
cron entry installed by "noderig provision" runs this command.
`[1:]

func newBackupCommand() cmd.Command {
	return &backupCommand{}
}

type backupCommand struct {
	cmd.CommandBase

	configPath     string
	passphraseFile string
}

func (c *backupCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "backup",
		Purpose: "archive configuration and keystores",
		Doc:     backupDoc,
	}
}

func (c *backupCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file")
	f.StringVar(&c.passphraseFile, "passphrase-file", "", "file holding the passphrase of an encrypted configuration")
}

func (c *backupCommand) Run(ctx *cmd.Context) error {
	cfg, err := loadConfig(ctx, c.configPath, c.passphraseFile)
	if err != nil {
		return errors.Trace(err)
	}

	backups := backup.NewBackups(clock.WallClock)
	archive, err := backups.Create(backup.Params{
		SourceDirs: []string{
			filepath.Dir(ctx.AbsPath(c.configPath)),
			filepath.Dir(cfg.JWTSecretPath()),
			filepath.Join(cfg.DataDir(), "keystores"),
		},
		TargetDir: cfg.BackupDir(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintln(ctx.Stdout, archive)

	removed, err := backups.Prune(cfg.BackupDir(), cfg.BackupRetentionDays())
	if err != nil {
		return errors.Trace(err)
	}
	if len(removed) > 0 {
		ctx.Infof("pruned %d old archive(s)", len(removed))
	}
	return nil
}
