// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package service abstracts the init system managing the provisioned node
// processes. Only systemd is supported; the hosts this tool provisions are
// systemd-based Ubuntu machines.
package service

import (
	"github.com/juju/errors"

	"github.com/noderig/noderig/service/common"
	"github.com/noderig/noderig/service/systemd"
)

// Service represents a service in the init system running on a host.
type Service interface {
	// Name returns the service's name.
	Name() string

	// Conf returns the service's conf data.
	Conf() common.Conf

	// Running returns a boolean value that denotes whether or not the
	// service is running.
	Running() (bool, error)

	// Start will try to start the service.
	Start() error

	// Stop will try to stop the service.
	Stop() error

	// Installed will return a boolean value that denotes whether or not
	// the service is installed.
	Installed() (bool, error)

	// Exists returns whether the service configuration reflects the
	// desired state.
	Exists() (bool, error)

	// Install installs the service: writes, links and enables its unit,
	// replacing a stale copy if one is present.
	Install() error

	// Remove disables the service and deletes its unit file.
	Remove() error
}

// NewService returns a new Service based on the provided info.
func NewService(name string, conf common.Conf) (Service, error) {
	if name == "" {
		return nil, errors.NotValidf("missing name")
	}
	svc, err := systemd.NewServiceWithDefaults(name, conf)
	return svc, errors.Trace(err)
}
