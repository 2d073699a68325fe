// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hardening_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/hardening"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type HardeningSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&HardeningSuite{})

func (s *HardeningSuite) TestSSHDDropIn(c *gc.C) {
	contents, err := hardening.SSHDDropIn(2222)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(contents, gc.Equals, `# Installed by noderig.
Port 2222
PermitRootLogin no
PasswordAuthentication no
ChallengeResponseAuthentication no
X11Forwarding no
MaxAuthTries 3
`)
}

func (s *HardeningSuite) TestSSHDDropInBadPort(c *gc.C) {
	_, err := hardening.SSHDDropIn(-1)
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *HardeningSuite) TestFail2banJail(c *gc.C) {
	contents, err := hardening.Fail2banJail(22)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(contents, gc.Equals, `# Installed by noderig.
[sshd]
enabled = true
port = 22
maxretry = 3
bantime = 1h
findtime = 10m
`)
}

func (s *HardeningSuite) TestPackages(c *gc.C) {
	c.Check(hardening.Packages(), jc.DeepEquals, []string{"fail2ban", "unattended-upgrades"})
}

func (s *HardeningSuite) TestWriteDropIn(c *gc.C) {
	path := filepath.Join(c.MkDir(), "90-noderig.conf")
	err := hardening.WriteDropIn(path, "PermitRootLogin no\n")
	c.Assert(err, jc.ErrorIsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "PermitRootLogin no\n")
}
