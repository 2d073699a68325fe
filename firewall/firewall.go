// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package firewall manages the host firewall through ufw.
package firewall

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("noderig.firewall")

func osRunCommand(cmd *exec.Cmd) (string, error) {
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

var runCommand = osRunCommand

// Protocol is a transport protocol a rule applies to.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Rule is a single allow rule.
type Rule struct {
	Port     int
	Protocol Protocol
	Comment  string
}

// Firewall applies a deny-by-default policy with explicit allow rules.
type Firewall struct{}

// NewFirewall returns a Firewall driving ufw on the local host.
func NewFirewall() *Firewall {
	return &Firewall{}
}

// SetDefaults installs the baseline policy: deny all incoming traffic,
// allow all outgoing.
func (f *Firewall) SetDefaults() error {
	if err := f.run("default", "deny", "incoming"); err != nil {
		return errors.Trace(err)
	}
	if err := f.run("default", "allow", "outgoing"); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Allow adds an allow rule for each of the given rules. Re-adding an
// existing rule is a no-op as far as ufw is concerned, so Allow is safe
// to call on every provisioning run.
func (f *Firewall) Allow(rules ...Rule) error {
	for _, rule := range rules {
		if rule.Port < 1 || rule.Port > 65535 {
			return errors.NotValidf("port %d", rule.Port)
		}
		args := []string{"allow", fmt.Sprintf("%d/%s", rule.Port, rule.Protocol)}
		if rule.Comment != "" {
			args = append(args, "comment", rule.Comment)
		}
		if err := f.run(args...); err != nil {
			return errors.Annotatef(err, "allowing %d/%s", rule.Port, rule.Protocol)
		}
	}
	return nil
}

// Enable turns the firewall on. The --force flag suppresses the
// interactive prompt ufw raises when enabling over ssh.
func (f *Firewall) Enable() error {
	return errors.Annotate(f.run("--force", "enable"), "enabling firewall")
}

func (f *Firewall) run(args ...string) error {
	logger.Debugf("running: ufw %s", strings.Join(args, " "))
	cmd := exec.Command("ufw", args...)
	out, err := runCommand(cmd)
	if err != nil {
		return errors.Annotatef(err, "ufw %s: %s", strings.Join(args, " "), strings.TrimSpace(out))
	}
	return nil
}
