// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package chain_test

import (
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/core/chain"
)

func Test(t *stdtesting.T) { gc.TestingT(t) }

type chainSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&chainSuite{})

func (s *chainSuite) TestByName(c *gc.C) {
	n, err := chain.ByName("mainnet")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(n.ID, gc.Equals, uint64(1))
	c.Check(n.CheckpointSyncURL, gc.Not(gc.Equals), "")
}

func (s *chainSuite) TestByNameUnknown(c *gc.C) {
	_, err := chain.ByName("ropsten")
	c.Check(err, gc.ErrorMatches, `network "ropsten" not found`)
}

func (s *chainSuite) TestAllSupported(c *gc.C) {
	for _, name := range chain.All {
		c.Check(chain.IsSupported(name), jc.IsTrue)
		n, err := chain.ByName(name)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(n.Name, gc.Equals, name)
		c.Check(n.ID, gc.Not(gc.Equals), uint64(0))
	}
}
