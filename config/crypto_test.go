// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"bytes"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/config"
)

type cryptoSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&cryptoSuite{})

func (s *cryptoSuite) TestRoundTrip(c *gc.C) {
	plaintext := []byte("network=mainnet\nenable-firewall=true\n")
	sealed, err := config.Encrypt(plaintext, "passphrase")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(config.IsEncrypted(sealed), jc.IsTrue)
	c.Check(bytes.Contains(sealed, []byte("mainnet")), jc.IsFalse)

	opened, err := config.Decrypt(sealed, "passphrase")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(opened, jc.DeepEquals, plaintext)
}

func (s *cryptoSuite) TestOpenSSLContainerShape(c *gc.C) {
	sealed, err := config.Encrypt([]byte("x"), "p")
	c.Assert(err, jc.ErrorIsNil)
	// "Salted__" magic, 8 byte salt, one padded AES block.
	c.Check(sealed, gc.HasLen, 8+8+16)
	c.Check(string(sealed[:8]), gc.Equals, "Salted__")
}

func (s *cryptoSuite) TestSaltVaries(c *gc.C) {
	a, err := config.Encrypt([]byte("same"), "p")
	c.Assert(err, jc.ErrorIsNil)
	b, err := config.Encrypt([]byte("same"), "p")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(bytes.Equal(a, b), jc.IsFalse)
}

func (s *cryptoSuite) TestEmptyPassphrase(c *gc.C) {
	_, err := config.Encrypt([]byte("x"), "")
	c.Check(err, gc.ErrorMatches, "empty passphrase not valid")
}

func (s *cryptoSuite) TestDecryptRejectsPlain(c *gc.C) {
	_, err := config.Decrypt([]byte("network=mainnet\n"), "p")
	c.Check(err, gc.ErrorMatches, "unencrypted data not valid")
}

func (s *cryptoSuite) TestDecryptTruncated(c *gc.C) {
	_, err := config.Decrypt([]byte("Salted__abc"), "p")
	c.Check(err, gc.ErrorMatches, "truncated ciphertext not valid")

	_, err = config.Decrypt([]byte("Salted__12345678short"), "p")
	c.Check(err, gc.ErrorMatches, "ciphertext length 5 not valid")
}

func (s *cryptoSuite) TestIsEncrypted(c *gc.C) {
	c.Check(config.IsEncrypted([]byte("Salted__xxxxxxxx")), jc.IsTrue)
	c.Check(config.IsEncrypted([]byte("network=mainnet")), jc.IsFalse)
	c.Check(config.IsEncrypted(nil), jc.IsFalse)
}
