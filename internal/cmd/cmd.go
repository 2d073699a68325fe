// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// ErrSilent can be returned from Run to signal that Main should exit with
// code 1 without producing error output.
var ErrSilent = errors.New("cmd: error out silently")

// Info holds everything necessary to describe a Command's intent and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected positional arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string

	// Aliases are other names for the Command.
	Aliases []string
}

// Help renders i's content for the command line.
func (i *Info) Help(f *gnuflag.FlagSet) []byte {
	buf := &strings.Builder{}
	fmt.Fprintf(buf, "Usage: %s", i.Name)
	hasOptions := false
	f.VisitAll(func(f *gnuflag.Flag) { hasOptions = true })
	if hasOptions {
		buf.WriteString(" [options]")
	}
	if i.Args != "" {
		fmt.Fprintf(buf, " %s", i.Args)
	}
	buf.WriteString("\n")
	if i.Purpose != "" {
		fmt.Fprintf(buf, "\nSummary:\n%s\n", strings.TrimSpace(i.Purpose))
	}
	if hasOptions {
		buf.WriteString("\nOptions:\n")
		f.SetOutput(&stringsWriter{buf})
		f.PrintDefaults()
		f.SetOutput(io.Discard)
	}
	if i.Doc != "" {
		fmt.Fprintf(buf, "\nDetails:\n%s\n", strings.TrimSpace(i.Doc))
	}
	if len(i.Aliases) > 0 {
		fmt.Fprintf(buf, "\nAliases: %s\n", strings.Join(i.Aliases, ", "))
	}
	return []byte(buf.String())
}

type stringsWriter struct {
	b *strings.Builder
}

func (w *stringsWriter) Write(p []byte) (int, error) {
	return w.b.Write(p)
}

// Command is implemented by types that interpret command-line arguments.
type Command interface {
	// Info returns information about the Command.
	Info() *Info

	// SetFlags adds command specific flags to the flag set.
	SetFlags(f *gnuflag.FlagSet)

	// Init initializes the Command before running.
	Init(args []string) error

	// Run will execute the Command as directed by the options and positional
	// arguments passed to Init.
	Run(ctx *Context) error

	// AllowInterspersedFlags returns whether the command allows flag
	// arguments to be interspersed with non-flag arguments.
	AllowInterspersedFlags() bool
}

// CommandBase provides the default implementation for SetFlags and Init.
type CommandBase struct{}

// SetFlags does nothing in the simplest case.
func (c *CommandBase) SetFlags(f *gnuflag.FlagSet) {}

// AllowInterspersedFlags returns true by default.
func (c *CommandBase) AllowInterspersedFlags() bool {
	return true
}

// Init in the simplest case makes sure there are no args.
func (c *CommandBase) Init(args []string) error {
	return CheckEmpty(args)
}

// Context represents the run context of a Command. Command implementations
// should interpret file names relative to Dir (see AbsPath below), and print
// output and errors to Stdout and Stderr respectively.
type Context struct {
	context.Context

	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// AbsPath returns an absolute representation of path, with relative paths
// interpreted as relative to ctx.Dir.
func (ctx *Context) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(ctx.Dir, path)
}

// Infof prints the formatted message to the Context's Stderr, which is
// where progress information belongs; Stdout is reserved for command output.
func (ctx *Context) Infof(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, format+"\n", params...)
}

// Warningf prints the formatted warning to the Context's Stderr.
func (ctx *Context) Warningf(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "WARNING: "+format+"\n", params...)
}

// DefaultContext returns a Context suitable for use in non-hosted situations.
func DefaultContext(ctx context.Context) (*Context, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.Trace(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Context{
		Context: ctx,
		Dir:     abs,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}, nil
}

// CheckEmpty is a utility function that returns an error if args is not empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognized args: %q", args)
	}
	return nil
}

// ZeroOrOneArgs checks to see that there are zero or one args, and returns
// the value of the one arg, or the empty string if there is no arg passed.
func ZeroOrOneArgs(args []string) (string, error) {
	var arg string
	switch len(args) {
	case 0:
	case 1:
		arg = args[0]
	default:
		return "", errors.Errorf("unrecognized args: %q", args[1:])
	}
	return arg, nil
}

// Main runs the given Command in the supplied Context with the given
// arguments, which should not include the command name. It returns a code
// suitable for passing to os.Exit.
func Main(c Command, ctx *Context, args []string) int {
	f := gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, "option")
	f.SetOutput(io.Discard)
	c.SetFlags(f)
	help := false
	f.BoolVar(&help, "h", false, "Show help on a command or other topic.")
	f.BoolVar(&help, "help", false, "")
	if err := f.Parse(c.AllowInterspersedFlags(), args); err != nil {
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		return 2
	}
	if help {
		_, _ = ctx.Stdout.Write(c.Info().Help(f))
		return 0
	}
	if err := c.Init(f.Args()); err != nil {
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		return 2
	}
	if err := c.Run(ctx); err != nil {
		if err != ErrSilent {
			fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		}
		return 1
	}
	return 0
}
