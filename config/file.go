// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// DefaultPath is where the provisioning configuration lives.
const DefaultPath = "/etc/noderig/noderig.conf"

// Parse reads a flat key=value configuration from data. Blank lines and
// lines starting with '#' are ignored; values may be single or double
// quoted. Unknown keys are rejected so that typos do not silently become
// no-ops.
func Parse(data []byte) (*Config, error) {
	attrs := make(map[string]interface{})
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("malformed line %d: %q", i+1, line)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if _, known := fields[key]; !known {
			return nil, errors.Errorf("unknown configuration key %q on line %d", key, i+1)
		}
		attrs[key] = value
	}
	cfg, err := New(UseDefaults, attrs)
	return cfg, errors.Trace(err)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Serialize renders cfg in the flat key=value form Parse accepts,
// with keys in a stable order.
func Serialize(cfg *Config) []byte {
	attrs := cfg.AllAttrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	for _, k := range keys {
		fmt.Fprintf(buf, "%s=%s\n", k, formatValue(attrs[k]))
	}
	return buf.Bytes()
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		if strings.ContainsAny(v, " \t#") {
			return strconv.Quote(v)
		}
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprint(v)
}

// ReadFile loads the configuration at path. If the file is encrypted,
// passphrase is called to obtain the decryption passphrase.
func ReadFile(path string, passphrase func() (string, error)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading configuration")
	}
	if IsEncrypted(data) {
		if passphrase == nil {
			return nil, errors.Errorf("configuration %s is encrypted", path)
		}
		pass, err := passphrase()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if data, err = Decrypt(data, pass); err != nil {
			return nil, errors.Annotate(err, "decrypting configuration")
		}
	}
	cfg, err := Parse(data)
	return cfg, errors.Trace(err)
}

// WriteFile writes cfg to path, encrypting it when passphrase is non-empty.
// The write is atomic so a crash cannot leave a half-written configuration.
func WriteFile(path string, cfg *Config, passphrase string) error {
	data := Serialize(cfg)
	if passphrase != "" {
		var err error
		if data, err = Encrypt(data, passphrase); err != nil {
			return errors.Annotate(err, "encrypting configuration")
		}
	}
	return errors.Annotate(utils.AtomicWriteFile(path, data, 0600), "writing configuration")
}

// DefaultContents renders a commented default configuration file,
// the starting point written by "noderig init".
func DefaultContents() []byte {
	cfg, err := New(UseDefaults, nil)
	if err != nil {
		// The defaults are validated by the package tests.
		panic(err)
	}
	buf := &bytes.Buffer{}
	buf.WriteString(`# noderig host provisioning configuration.
#
# Edit the values below and run "noderig provision". The file may be
# encrypted at rest with "noderig encrypt".

`)
	buf.Write(Serialize(cfg))
	return buf.Bytes()
}
