// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd_test

import (
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/service/common"
	"github.com/noderig/noderig/service/systemd"
)

type serializeSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&serializeSuite{})

var fullConf = common.Conf{
	Desc:       "noderig lighthouse consensus client",
	ExecStart:  "/usr/local/bin/lighthouse bn --network mainnet",
	Env:        map[string]string{"RUST_LOG": "info"},
	Limit:      map[string]string{"nofile": "65536"},
	User:       "noderig",
	Group:      "noderig",
	WorkingDir: "/var/lib/noderig",
	Restart:    "always",
	RestartSec: 5,
	After:      []string{"network-online.target", "noderig-geth.service"},
	Wants:      []string{"network-online.target"},
}

func (s *serializeSuite) TestSerialize(c *gc.C) {
	data, err := systemd.Serialize(fullConf)
	c.Assert(err, jc.ErrorIsNil)
	text := string(data)

	c.Check(text, gc.Matches, `(?s).*\[Unit\].*Description=noderig lighthouse consensus client.*`)
	c.Check(text, gc.Matches, `(?s).*After=network-online\.target.*After=noderig-geth\.service.*`)
	c.Check(text, gc.Matches, `(?s).*\[Service\].*ExecStart=/usr/local/bin/lighthouse bn --network mainnet.*`)
	c.Check(text, gc.Matches, `(?s).*Environment="RUST_LOG=info".*`)
	c.Check(text, gc.Matches, `(?s).*LimitNOFILE=65536.*`)
	c.Check(text, gc.Matches, `(?s).*Restart=always.*RestartSec=5.*`)
	c.Check(text, gc.Matches, `(?s).*\[Install\].*WantedBy=multi-user\.target.*`)
}

func (s *serializeSuite) TestRoundTrip(c *gc.C) {
	data, err := systemd.Serialize(fullConf)
	c.Assert(err, jc.ErrorIsNil)
	conf, err := systemd.Deserialize(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(conf, jc.DeepEquals, fullConf)
}

func (s *serializeSuite) TestDefaultRestartPolicy(c *gc.C) {
	data, err := systemd.Serialize(common.Conf{
		Desc:      "x",
		ExecStart: "/bin/x",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Matches, `(?s).*Restart=on-failure.*`)
}

func (s *serializeSuite) TestValidateMissingDesc(c *gc.C) {
	_, err := systemd.Serialize(common.Conf{ExecStart: "/bin/x"})
	c.Check(err, gc.ErrorMatches, "missing Desc not valid")
}

func (s *serializeSuite) TestValidateMissingExecStart(c *gc.C) {
	_, err := systemd.Serialize(common.Conf{Desc: "x"})
	c.Check(err, gc.ErrorMatches, "missing ExecStart not valid")
}

func (s *serializeSuite) TestValidateRelativeCommand(c *gc.C) {
	err := systemd.Validate(common.Conf{Desc: "x", ExecStart: "geth --mainnet"})
	c.Check(err, gc.ErrorMatches, `relative ExecStart command "geth" not valid`)
}

func (s *serializeSuite) TestValidateUnknownLimit(c *gc.C) {
	err := systemd.Validate(common.Conf{
		Desc:      "x",
		ExecStart: "/bin/x",
		Limit:     map[string]string{"files": "10"},
	})
	c.Check(err, gc.ErrorMatches, `unknown limit "files" not valid`)
}

func (s *serializeSuite) TestDeserializeRejectsUnknownDirective(c *gc.C) {
	_, err := systemd.Deserialize([]byte("[Service]\nExecStartPre=/bin/true\n"))
	c.Check(err, gc.ErrorMatches, `Service directive "ExecStartPre" not supported`)
}

func (s *serializeSuite) TestDeserializeRejectsUnknownLimit(c *gc.C) {
	_, err := systemd.Deserialize([]byte("[Service]\nLimitNICE=10\n"))
	c.Check(err, gc.ErrorMatches, `Service directive "LimitNICE" not supported`)
}
