// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/internal/cmd"
	"github.com/noderig/noderig/service"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

// runCommand runs the given command against a scratch context, feeding
// stdin to it, and returns the context and exit code.
func runCommand(c *gc.C, com cmd.Command, stdin string, args ...string) (*cmd.Context, int) {
	ctx := &cmd.Context{
		Context: context.Background(),
		Dir:     c.MkDir(),
		Stdin:   bytes.NewBufferString(stdin),
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	}
	return ctx, cmd.Main(com, ctx, args)
}

func stdout(ctx *cmd.Context) string {
	return ctx.Stdout.(*bytes.Buffer).String()
}

func stderr(ctx *cmd.Context) string {
	return ctx.Stderr.(*bytes.Buffer).String()
}

type MainSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&MainSuite{})

func (s *MainSuite) TestHelp(c *gc.C) {
	ctx, code := runCommand(c, NewNoderigCommand(), "", "--help")
	c.Check(code, gc.Equals, 0)
	c.Check(stdout(ctx), jc.Contains, "provision an Ethereum node host")
	for _, sub := range []string{"init", "encrypt", "decrypt", "provision", "backup", "status"} {
		c.Check(stdout(ctx), jc.Contains, sub)
	}
}

func (s *MainSuite) TestVersion(c *gc.C) {
	ctx, code := runCommand(c, NewNoderigCommand(), "", "--version")
	c.Check(code, gc.Equals, 0)
	c.Check(stdout(ctx), gc.Equals, "1.0.0\n")
}

func (s *MainSuite) TestUnknownCommand(c *gc.C) {
	ctx, code := runCommand(c, NewNoderigCommand(), "", "frobnicate")
	c.Check(code, gc.Equals, 2)
	c.Check(stderr(ctx), jc.Contains, "frobnicate")
}

type InitSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&InitSuite{})

func (s *InitSuite) TestWritesDefaultConfig(c *gc.C) {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	ctx, code := runCommand(c, newInitCommand(), "", "--config", path)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", stderr(ctx)))

	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	cfg, err := config.Parse(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Network(), gc.Equals, "mainnet")

	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, os.FileMode(0600))
}

func (s *InitSuite) TestRefusesOverwrite(c *gc.C) {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	c.Assert(os.WriteFile(path, []byte("network=sepolia\n"), 0600), jc.ErrorIsNil)

	ctx, code := runCommand(c, newInitCommand(), "", "--config", path)
	c.Check(code, gc.Equals, 1)
	c.Check(stderr(ctx), jc.Contains, "already exists")

	_, code = runCommand(c, newInitCommand(), "", "--config", path, "--force")
	c.Check(code, gc.Equals, 0)
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Not(jc.Contains), "sepolia")
}

type CryptSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&CryptSuite{})

func (s *CryptSuite) writeConfig(c *gc.C) string {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	c.Assert(os.WriteFile(path, config.DefaultContents(), 0600), jc.ErrorIsNil)
	return path
}

func (s *CryptSuite) TestRoundTrip(c *gc.C) {
	path := s.writeConfig(c)
	original, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)

	ctx, code := runCommand(c, newEncryptCommand(), "sekrit\nsekrit\n", "--config", path)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", stderr(ctx)))
	encrypted, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(config.IsEncrypted(encrypted), jc.IsTrue)

	ctx, code = runCommand(c, newDecryptCommand(), "sekrit\n", "--config", path)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", stderr(ctx)))
	decrypted, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(decrypted, jc.DeepEquals, original)
}

func (s *CryptSuite) TestEncryptMismatchedPassphrases(c *gc.C) {
	path := s.writeConfig(c)
	ctx, code := runCommand(c, newEncryptCommand(), "one\ntwo\n", "--config", path)
	c.Check(code, gc.Equals, 1)
	c.Check(stderr(ctx), jc.Contains, "passphrases do not match")
}

func (s *CryptSuite) TestEncryptTwiceRefused(c *gc.C) {
	path := s.writeConfig(c)
	_, code := runCommand(c, newEncryptCommand(), "sekrit\nsekrit\n", "--config", path)
	c.Assert(code, gc.Equals, 0)
	ctx, code := runCommand(c, newEncryptCommand(), "sekrit\nsekrit\n", "--config", path)
	c.Check(code, gc.Equals, 1)
	c.Check(stderr(ctx), jc.Contains, "already encrypted")
}

func (s *CryptSuite) TestDecryptPlaintextRefused(c *gc.C) {
	path := s.writeConfig(c)
	ctx, code := runCommand(c, newDecryptCommand(), "sekrit\n", "--config", path)
	c.Check(code, gc.Equals, 1)
	c.Check(stderr(ctx), jc.Contains, "not encrypted")
}

type StatusSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&StatusSuite{})

type fakeStatusService struct {
	service.Service

	name      string
	installed bool
	running   bool
}

func (f *fakeStatusService) Installed() (bool, error) { return f.installed, nil }
func (f *fakeStatusService) Running() (bool, error)   { return f.running, nil }

func (s *StatusSuite) TestStatus(c *gc.C) {
	path := filepath.Join(c.MkDir(), "noderig.conf")
	c.Assert(os.WriteFile(path, []byte("network=mainnet\n"), 0600), jc.ErrorIsNil)

	com := &statusCommand{newService: func(name string) (service.Service, error) {
		return &fakeStatusService{
			name:      name,
			installed: true,
			running:   name == "noderig-geth",
		}, nil
	}}
	ctx, code := runCommand(c, com, "", "--config", path)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", stderr(ctx)))

	out := stdout(ctx)
	c.Check(out, jc.Contains, "SERVICE")
	c.Check(out, gc.Matches, `(?s).*noderig-geth\s+true\s+true.*`)
	c.Check(out, gc.Matches, `(?s).*noderig-lighthouse\s+true\s+false.*`)
}

func (s *StatusSuite) TestEncryptedConfigWithPassphraseFile(c *gc.C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "noderig.conf")
	encrypted, err := config.Encrypt([]byte("network=mainnet\n"), "sekrit")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(os.WriteFile(path, encrypted, 0600), jc.ErrorIsNil)
	passFile := filepath.Join(dir, "passphrase")
	c.Assert(os.WriteFile(passFile, []byte("sekrit\n"), 0600), jc.ErrorIsNil)

	com := &statusCommand{newService: func(name string) (service.Service, error) {
		return &fakeStatusService{name: name, installed: true, running: true}, nil
	}}
	ctx, code := runCommand(c, com, "", "--config", path, "--passphrase-file", passFile)
	c.Assert(code, gc.Equals, 0, gc.Commentf("stderr: %s", stderr(ctx)))
	c.Check(stdout(ctx), gc.Matches, `(?s).*noderig-geth\s+true\s+true.*`)
}

func (s *StatusSuite) TestManagedServices(c *gc.C) {
	cfg, err := config.New(config.UseDefaults, map[string]interface{}{
		"enable-mev-boost":       true,
		"mev-relays":             "https://relay.example.com",
		"enable-monitoring":      true,
		"grafana-admin-password": "s3cret",
	})
	c.Assert(err, jc.ErrorIsNil)
	names, err := managedServices(cfg)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(names, jc.DeepEquals, []string{
		"noderig-geth", "noderig-lighthouse", "noderig-mev-boost", "noderig-node-exporter",
	})
}
