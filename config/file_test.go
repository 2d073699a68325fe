// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"os"
	"path/filepath"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/config"
)

type fileSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&fileSuite{})

const sampleConf = `
# provisioning config
network=sepolia
execution-client=nethermind
consensus-client=teku

enable-backups=true
backup-schedule="30 4 * * *"
graffiti='hello world'
`

func (s *fileSuite) TestParse(c *gc.C) {
	cfg, err := config.Parse([]byte(sampleConf))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Network(), gc.Equals, "sepolia")
	c.Check(cfg.ExecutionClient(), gc.Equals, "nethermind")
	c.Check(cfg.ConsensusClient(), gc.Equals, "teku")
	c.Check(cfg.BackupsEnabled(), jc.IsTrue)
	c.Check(cfg.BackupSchedule(), gc.Equals, "30 4 * * *")
	c.Check(cfg.Graffiti(), gc.Equals, "hello world")
}

func (s *fileSuite) TestParseMalformedLine(c *gc.C) {
	_, err := config.Parse([]byte("network mainnet\n"))
	c.Check(err, gc.ErrorMatches, `malformed line 1: "network mainnet"`)
}

func (s *fileSuite) TestParseUnknownKey(c *gc.C) {
	_, err := config.Parse([]byte("netwrok=mainnet\n"))
	c.Check(err, gc.ErrorMatches, `unknown configuration key "netwrok" on line 1`)
}

func (s *fileSuite) TestSerializeRoundTrip(c *gc.C) {
	cfg, err := config.Parse([]byte(sampleConf))
	c.Assert(err, jc.ErrorIsNil)
	cfg2, err := config.Parse(config.Serialize(cfg))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg2.AllAttrs(), jc.DeepEquals, cfg.AllAttrs())
}

func (s *fileSuite) TestDefaultContentsParses(c *gc.C) {
	cfg, err := config.Parse(config.DefaultContents())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Network(), gc.Equals, "mainnet")
}

func (s *fileSuite) TestWriteReadFile(c *gc.C) {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	cfg, err := config.Parse([]byte(sampleConf))
	c.Assert(err, jc.ErrorIsNil)

	err = config.WriteFile(path, cfg, "")
	c.Assert(err, jc.ErrorIsNil)
	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, os.FileMode(0600))

	read, err := config.ReadFile(path, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(read.AllAttrs(), jc.DeepEquals, cfg.AllAttrs())
}

func (s *fileSuite) TestWriteReadEncrypted(c *gc.C) {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	cfg, err := config.Parse([]byte(sampleConf))
	c.Assert(err, jc.ErrorIsNil)

	err = config.WriteFile(path, cfg, "sekrit")
	c.Assert(err, jc.ErrorIsNil)

	raw, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(config.IsEncrypted(raw), jc.IsTrue)

	_, err = config.ReadFile(path, nil)
	c.Check(err, gc.ErrorMatches, "configuration .* is encrypted")

	read, err := config.ReadFile(path, func() (string, error) { return "sekrit", nil })
	c.Assert(err, jc.ErrorIsNil)
	c.Check(read.AllAttrs(), jc.DeepEquals, cfg.AllAttrs())

	_, err = config.ReadFile(path, func() (string, error) { return "wrong", nil })
	c.Check(err, gc.NotNil)
}
