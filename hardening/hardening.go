// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hardening renders host security configuration: an sshd
// drop-in, a fail2ban jail and the unattended-upgrades package list.
package hardening

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("noderig.hardening")

const (
	// SSHDDropInPath is where the sshd hardening drop-in is installed.
	// Files in sshd_config.d are read before the main config and first
	// match wins, so the drop-in overrides distribution defaults.
	SSHDDropInPath = "/etc/ssh/sshd_config.d/90-noderig.conf"

	// Fail2banJailPath is where the ssh jail is installed.
	Fail2banJailPath = "/etc/fail2ban/jail.d/noderig-sshd.conf"
)

// Packages returns the packages the hardening step installs.
func Packages() []string {
	return []string{"fail2ban", "unattended-upgrades"}
}

// SSHDDropIn renders the sshd hardening drop-in: root login and password
// authentication off, listening on the given port.
func SSHDDropIn(sshPort int) (string, error) {
	if sshPort < 1 || sshPort > 65535 {
		return "", errors.NotValidf("ssh port %d", sshPort)
	}
	var b strings.Builder
	b.WriteString("# Installed by noderig.\n")
	fmt.Fprintf(&b, "Port %d\n", sshPort)
	b.WriteString("PermitRootLogin no\n")
	b.WriteString("PasswordAuthentication no\n")
	b.WriteString("ChallengeResponseAuthentication no\n")
	b.WriteString("X11Forwarding no\n")
	b.WriteString("MaxAuthTries 3\n")
	return b.String(), nil
}

// Fail2banJail renders an sshd jail watching the given port. Bantime and
// findtime follow the fail2ban defaults we have always shipped; maxretry
// is stricter than upstream's 5.
func Fail2banJail(sshPort int) (string, error) {
	if sshPort < 1 || sshPort > 65535 {
		return "", errors.NotValidf("ssh port %d", sshPort)
	}
	var b strings.Builder
	b.WriteString("# Installed by noderig.\n")
	b.WriteString("[sshd]\n")
	b.WriteString("enabled = true\n")
	fmt.Fprintf(&b, "port = %d\n", sshPort)
	b.WriteString("maxretry = 3\n")
	b.WriteString("bantime = 1h\n")
	b.WriteString("findtime = 10m\n")
	return b.String(), nil
}

// WriteDropIn atomically installs rendered hardening config at path.
func WriteDropIn(path, contents string) error {
	logger.Debugf("writing hardening drop-in %q", path)
	return errors.Trace(utils.AtomicWriteFile(path, []byte(contents), 0644))
}
