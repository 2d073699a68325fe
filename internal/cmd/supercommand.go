// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("noderig.cmd")

// SuperCommandParams provides a way to have default parameters for the
// NewSuperCommand call.
type SuperCommandParams struct {
	Name    string
	Purpose string
	Doc     string
	Version string

	// LoggingConfigEnvKey, if set, names an environment variable whose
	// value configures loggo before a subcommand runs.
	LoggingConfigEnvKey string
}

// NewSuperCommand creates and initializes a new SuperCommand.
func NewSuperCommand(params SuperCommandParams) *SuperCommand {
	return &SuperCommand{
		name:      params.Name,
		purpose:   params.Purpose,
		doc:       params.Doc,
		version:   params.Version,
		logEnvKey: params.LoggingConfigEnvKey,
		subcmds:   make(map[string]Command),
	}
}

// SuperCommand is a Command that selects a subcommand and assumes its
// properties; to Run a SuperCommand is to run its selected subcommand.
type SuperCommand struct {
	CommandBase

	name      string
	purpose   string
	doc       string
	version   string
	logEnvKey string

	subcmds map[string]Command
	action  Command
	flags   *gnuflag.FlagSet

	logConfig string
	showHelp  bool
	showVer   bool
}

// AllowInterspersedFlags returns false: only flags that relate to the
// SuperCommand itself may come before the subcommand name.
func (c *SuperCommand) AllowInterspersedFlags() bool {
	return false
}

// Register makes a subcommand available for use on the command line.
// Duplicate registrations panic, as they are a programming error.
func (c *SuperCommand) Register(subcmd Command) {
	info := subcmd.Info()
	names := append([]string{info.Name}, info.Aliases...)
	for _, name := range names {
		if _, found := c.subcmds[name]; found {
			panic(fmt.Sprintf("command already registered: %q", name))
		}
		c.subcmds[name] = subcmd
	}
}

// Info implements Command.
func (c *SuperCommand) Info() *Info {
	if c.action != nil {
		info := *c.action.Info()
		info.Name = fmt.Sprintf("%s %s", c.name, info.Name)
		return &info
	}
	return &Info{
		Name:    c.name,
		Args:    "<command> ...",
		Purpose: c.purpose,
		Doc:     strings.TrimSpace(c.doc) + "\n\n" + c.describeCommands(),
	}
}

func (c *SuperCommand) describeCommands() string {
	names := make([]string, 0, len(c.subcmds))
	longest := 0
	for name := range c.subcmds {
		if len(name) > longest {
			longest = len(name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	buf := &strings.Builder{}
	buf.WriteString("Commands:\n")
	for _, name := range names {
		fmt.Fprintf(buf, "    %-*s  %s\n", longest, name, c.subcmds[name].Info().Purpose)
	}
	return buf.String()
}

// SetFlags implements Command, adding the flags shared by all subcommands.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.logConfig, "log-config", "", "Specify log levels for modules")
	f.BoolVar(&c.showVer, "version", false, "Show the version of "+c.name+" and exit")
	c.flags = f
}

// Init implements Command, selecting the subcommand named by args.
func (c *SuperCommand) Init(args []string) error {
	if c.showVer {
		return nil
	}
	if len(args) == 0 {
		return errors.Errorf("no command specified, run %q for usage", c.name+" help")
	}
	if args[0] == "help" {
		return c.initHelp(args[1:])
	}
	found := false
	if c.action, found = c.subcmds[args[0]]; !found {
		return errors.Errorf("unrecognized command: %s %s", c.name, args[0])
	}
	c.action.SetFlags(c.flags)
	if err := c.flags.Parse(c.action.AllowInterspersedFlags(), args[1:]); err != nil {
		return err
	}
	return c.action.Init(c.flags.Args())
}

func (c *SuperCommand) initHelp(args []string) error {
	c.showHelp = true
	if len(args) == 0 {
		c.action = nil
		return nil
	}
	target, found := c.subcmds[args[0]]
	if !found {
		return errors.Errorf("unknown command or topic for %s", args[0])
	}
	c.action = target
	return nil
}

// Run executes the subcommand that was selected in Init.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.showVer {
		fmt.Fprintf(ctx.Stdout, "%s\n", c.version)
		return nil
	}
	if c.showHelp {
		f := gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, "option")
		if c.action != nil {
			c.action.SetFlags(f)
		} else {
			c.SetFlags(f)
		}
		_, _ = ctx.Stdout.Write(c.Info().Help(f))
		return nil
	}
	if c.action == nil {
		panic("Run: missing subcommand; Init failed or not called")
	}
	if err := c.configureLogging(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("running %s %s", c.name, c.action.Info().Name)
	return c.action.Run(ctx)
}

func (c *SuperCommand) configureLogging() error {
	spec := c.logConfig
	if spec == "" && c.logEnvKey != "" {
		spec = os.Getenv(c.logEnvKey)
	}
	if spec == "" {
		return nil
	}
	return loggo.ConfigureLoggers(spec)
}
