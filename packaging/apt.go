// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packaging drives the system package manager. Only apt is
// supported; the hosts this tool provisions are Ubuntu machines.
package packaging

import (
	"os"
	"os/exec"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/proxy"
)

var logger = loggo.GetLogger("noderig.packaging")

// osRunCommand calls cmd.Run, this is used as an overloading point so we
// can test what *would* be run without actually executing another program.
func osRunCommand(cmd *exec.Cmd) error {
	return cmd.Run()
}

var runCommand = osRunCommand

// aptGetCommand is the apt-get invocation used for every operation; the
// options mean apt won't block waiting for a prompt from the user.
var aptGetCommand = []string{
	"apt-get", "--option=Dpkg::Options::=--force-confold",
	"--option=Dpkg::options::=--force-unsafe-io", "--assume-yes", "--quiet",
}

var aptGetEnvOptions = []string{"DEBIAN_FRONTEND=noninteractive"}

// AptGet runs apt-get operations with the proxy settings applied to the
// environment of each invocation.
type AptGet struct {
	proxySettings proxy.Settings
}

// NewAptGet returns an AptGet using the given proxy settings.
func NewAptGet(proxySettings proxy.Settings) *AptGet {
	return &AptGet{proxySettings: proxySettings}
}

// Update runs 'apt-get update'.
func (a *AptGet) Update() error {
	return errors.Annotate(a.run("update"), "apt-get update failed")
}

// Upgrade runs 'apt-get upgrade'.
func (a *AptGet) Upgrade() error {
	return errors.Annotate(a.run("upgrade"), "apt-get upgrade failed")
}

// Install runs 'apt-get install packages' for the packages listed here.
func (a *AptGet) Install(packages ...string) error {
	args := append([]string{"install"}, packages...)
	return errors.Annotatef(a.run(args...), "apt-get install %s failed", strings.Join(packages, " "))
}

func (a *AptGet) run(args ...string) error {
	cmdArgs := append([]string(nil), aptGetCommand...)
	cmdArgs = append(cmdArgs, args...)
	logger.Infof("running: %s", strings.Join(cmdArgs, " "))
	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Env = append(os.Environ(), aptGetEnvOptions...)
	cmd.Env = append(cmd.Env, proxyEnv(a.proxySettings)...)
	return runCommand(cmd)
}

// proxyEnv renders the proxy settings in the form apt (and wget style
// tooling generally) picks up from the environment.
func proxyEnv(s proxy.Settings) []string {
	var env []string
	if s.Http != "" {
		env = append(env, "http_proxy="+s.Http)
	}
	if s.Https != "" {
		env = append(env, "https_proxy="+s.Https)
	}
	if s.NoProxy != "" {
		env = append(env, "no_proxy="+s.NoProxy)
	}
	return env
}
