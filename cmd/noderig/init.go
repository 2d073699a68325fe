// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/utils/v4"

	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/internal/cmd"
)

var initDoc = `
init writes a commented configuration file with every key at its default
value. Edit it, then run "noderig provision".
`[1:]

func newInitCommand() cmd.Command {
	return &initCommand{}
}

type initCommand struct {
	cmd.CommandBase

	configPath string
	force      bool
}

func (c *initCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "init",
		Purpose: "write a default configuration file",
		Doc:     initDoc,
	}
}

func (c *initCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file to write")
	f.BoolVar(&c.force, "force", false, "overwrite an existing configuration file")
}

func (c *initCommand) Run(ctx *cmd.Context) error {
	path := ctx.AbsPath(c.configPath)
	if _, err := os.Stat(path); err == nil && !c.force {
		return errors.Errorf("%q already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(path, config.DefaultContents(), 0600); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("wrote %s", path)
	return nil
}
