// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provision

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v3"

	"github.com/noderig/noderig/config"
)

const stateFileName = "provisioned.yaml"

// previousConfig loads the configuration recorded by the last successful
// run, or nil if the host has never been provisioned. It is what makes
// the immutable attributes stick: changing the network or data directory
// on a provisioned host is refused at validation.
func (p *Provisioner) previousConfig() (*config.Config, error) {
	path := filepath.Join(p.paths.StateDir, stateFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotatef(err, "corrupt state file %q", path)
	}
	cfg, err := config.New(config.NoDefaults, attrs)
	if err != nil {
		return nil, errors.Annotatef(err, "corrupt state file %q", path)
	}
	return cfg, nil
}

func (p *Provisioner) saveState() error {
	if err := os.MkdirAll(p.paths.StateDir, 0700); err != nil {
		return errors.Trace(err)
	}
	data, err := yaml.Marshal(p.cfg.AllAttrs())
	if err != nil {
		return errors.Trace(err)
	}
	path := filepath.Join(p.paths.StateDir, stateFileName)
	// The attrs include credentials, keep the file root-only.
	return errors.Trace(utils.AtomicWriteFile(path, data, 0600))
}
