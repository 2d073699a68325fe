// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package common

// Conf is responsible for defining services. Its fields represent elements
// of a service configuration.
type Conf struct {
	// Desc is the service's description.
	Desc string

	// ExecStart is the command (with arguments) that will be run. The
	// command must use an absolute path; systemd does not consult PATH.
	ExecStart string

	// Env holds the environment variables that will be set when the
	// command runs.
	Env map[string]string

	// Limit holds the ulimit values that will be set when the command
	// runs, keyed on systemd limit names ("nofile", "nproc").
	Limit map[string]string

	// User is the system user the service runs as; empty means root.
	User string

	// Group is the system group the service runs as.
	Group string

	// WorkingDir is the working directory of the started process.
	WorkingDir string

	// Restart is the systemd restart policy; empty means "on-failure".
	Restart string

	// RestartSec is the delay in seconds between restarts; zero means
	// the systemd default.
	RestartSec int

	// After lists units that must be started before this one.
	After []string

	// Wants lists units to pull in, without making failure fatal.
	Wants []string
}

// IsZero determines whether or not the conf is a zero value.
func (c Conf) IsZero() bool {
	return c.Desc == "" && c.ExecStart == ""
}
