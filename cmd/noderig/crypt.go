// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/utils/v4"
	"golang.org/x/term"

	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/internal/cmd"
)

// passphraseReader prompts on Stderr and reads passphrases without echo
// when Stdin is a terminal, or line by line otherwise, so passphrases
// can be piped in. One buffered reader is shared across prompts; a fresh
// reader per prompt would drain the rest of a piped stdin into a
// buffer that is then thrown away.
type passphraseReader struct {
	ctx *cmd.Context
	in  *bufio.Reader
}

func newPassphraseReader(ctx *cmd.Context) *passphraseReader {
	return &passphraseReader{ctx: ctx, in: bufio.NewReader(ctx.Stdin)}
}

func (r *passphraseReader) read(prompt string) (string, error) {
	fmt.Fprint(r.ctx.Stderr, prompt)
	defer fmt.Fprintln(r.ctx.Stderr)
	if f, ok := r.ctx.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		return string(pass), errors.Trace(err)
	}
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Trace(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var encryptDoc = `
encrypt replaces the configuration file with an AES-256-CBC encrypted
copy in the OpenSSL enc container format. The equivalent of:

    openssl enc -aes-256-cbc -pbkdf2 -salt -in noderig.conf

decrypts it, as does "noderig decrypt".
`[1:]

func newEncryptCommand() cmd.Command {
	return &encryptCommand{}
}

type encryptCommand struct {
	cmd.CommandBase

	configPath string
}

func (c *encryptCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "encrypt",
		Purpose: "encrypt the configuration file",
		Doc:     encryptDoc,
	}
}

func (c *encryptCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file")
}

func (c *encryptCommand) Run(ctx *cmd.Context) error {
	path := ctx.AbsPath(c.configPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	if config.IsEncrypted(data) {
		return errors.Errorf("%q is already encrypted", path)
	}
	// Refuse to encrypt something that won't load back.
	if _, err := config.Parse(data); err != nil {
		return errors.Annotatef(err, "refusing to encrypt invalid configuration %q", path)
	}

	reader := newPassphraseReader(ctx)
	pass, err := reader.read("Passphrase: ")
	if err != nil {
		return errors.Trace(err)
	}
	if pass == "" {
		return errors.Errorf("empty passphrase")
	}
	again, err := reader.read("Repeat passphrase: ")
	if err != nil {
		return errors.Trace(err)
	}
	if pass != again {
		return errors.Errorf("passphrases do not match")
	}

	encrypted, err := config.Encrypt(data, pass)
	if err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(path, encrypted, 0600); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("encrypted %s", path)
	return nil
}

var decryptDoc = `
decrypt replaces an encrypted configuration file with its plaintext.
`[1:]

func newDecryptCommand() cmd.Command {
	return &decryptCommand{}
}

type decryptCommand struct {
	cmd.CommandBase

	configPath string
}

func (c *decryptCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "decrypt",
		Purpose: "decrypt the configuration file",
		Doc:     decryptDoc,
	}
}

func (c *decryptCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", config.DefaultPath, "path of the configuration file")
}

func (c *decryptCommand) Run(ctx *cmd.Context) error {
	path := ctx.AbsPath(c.configPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	if !config.IsEncrypted(data) {
		return errors.Errorf("%q is not encrypted", path)
	}
	pass, err := newPassphraseReader(ctx).read("Passphrase: ")
	if err != nil {
		return errors.Trace(err)
	}
	plaintext, err := config.Decrypt(data, pass)
	if err != nil {
		return errors.Annotatef(err, "decrypting %q", path)
	}
	if err := utils.AtomicWriteFile(path, plaintext, 0600); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("decrypted %s", path)
	return nil
}
