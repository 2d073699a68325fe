// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provision turns a validated configuration into a running node
// host: installed binaries, systemd units, cron entries and firewall
// rules. Steps run strictly in order and the first failure aborts the
// run; a partially provisioned host is fixed by running again.
package provision

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/mutex/v2"

	"github.com/noderig/noderig/backup"
	"github.com/noderig/noderig/config"
	"github.com/noderig/noderig/downloader"
	"github.com/noderig/noderig/firewall"
	"github.com/noderig/noderig/hardening"
	"github.com/noderig/noderig/monitoring"
	"github.com/noderig/noderig/service"
)

var logger = loggo.GetLogger("noderig.provision")

// lockName guards against two provisioning runs mutating the host at
// the same time.
const lockName = "noderig-provision"

func osRunCommand(cmd *exec.Cmd) (string, error) {
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

var (
	runCommand   = osRunCommand
	newService   = service.NewService
	acquireMutex = mutex.Acquire
)

// PackageManager is the subset of the package manager the provisioner
// drives.
type PackageManager interface {
	Update() error
	Install(packages ...string) error
}

// Downloader fetches release artifacts.
type Downloader interface {
	Download(ctx context.Context, req downloader.Request) error
}

// Firewaller applies host firewall policy.
type Firewaller interface {
	SetDefaults() error
	Allow(rules ...firewall.Rule) error
	Enable() error
}

// BackupManager creates and prunes backup archives.
type BackupManager interface {
	Create(params backup.Params) (string, error)
	Prune(targetDir string, retention int) ([]string, error)
}

// Paths holds the host locations the provisioner writes to. Production
// code uses DefaultPaths; tests point them at scratch directories.
type Paths struct {
	// BinDir is where client binaries are installed.
	BinDir string

	// TmpDir is scratch space for downloads.
	TmpDir string

	// StateDir holds the record of the last successful run.
	StateDir string

	// ConfigPath is the configuration file the cron entries reference.
	ConfigPath string

	// PassphraseFile, when set, holds the passphrase of an encrypted
	// configuration and is rendered into the cron entries so scheduled
	// commands can load it unattended.
	PassphraseFile string

	CronDir              string
	LogrotateDir         string
	SSHDDropInPath       string
	Fail2banJailPath     string
	PrometheusConfigPath string
	GrafanaConfigPath    string
}

// DefaultPaths returns the standard host locations.
func DefaultPaths() Paths {
	return Paths{
		BinDir:               "/usr/local/bin",
		TmpDir:               "/var/cache/noderig",
		StateDir:             "/var/lib/noderig",
		ConfigPath:           config.DefaultPath,
		CronDir:              "/etc/cron.d",
		LogrotateDir:         "/etc/logrotate.d",
		SSHDDropInPath:       hardening.SSHDDropInPath,
		Fail2banJailPath:     hardening.Fail2banJailPath,
		PrometheusConfigPath: monitoring.PrometheusConfigPath,
		GrafanaConfigPath:    monitoring.GrafanaConfigPath,
	}
}

// Deps holds the provisioner's collaborators.
type Deps struct {
	Packages PackageManager
	Download Downloader
	Firewall Firewaller
	Backups  BackupManager
	Clock    clock.Clock
}

// Provisioner runs the provisioning sequence for one configuration.
type Provisioner struct {
	cfg    *config.Config
	paths  Paths
	deps   Deps
	goarch string
}

// NewProvisioner returns a provisioner for the given configuration.
func NewProvisioner(cfg *config.Config, paths Paths, deps Deps) (*Provisioner, error) {
	if cfg == nil {
		return nil, errors.NotValidf("nil config")
	}
	if deps.Packages == nil || deps.Download == nil || deps.Firewall == nil || deps.Backups == nil {
		return nil, errors.NotValidf("missing dependency")
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	return &Provisioner{
		cfg:    cfg,
		paths:  paths,
		deps:   deps,
		goarch: runtime.GOARCH,
	}, nil
}

type step struct {
	name    string
	enabled func() bool
	run     func(ctx context.Context) error
}

func (p *Provisioner) steps() []step {
	return []step{
		{name: "system packages", run: p.installBasePackages},
		{name: "users and directories", run: p.createUsersAndDirs},
		{name: "jwt secret", run: p.writeJWTSecret},
		{name: "execution client", run: p.installExecutionClient},
		{name: "consensus client", run: p.installConsensusClient},
		{name: "validator", enabled: p.cfg.ValidatorEnabled, run: p.installValidator},
		{name: "mev-boost", enabled: p.cfg.MEVBoostEnabled, run: p.installMEVBoost},
		{name: "monitoring", enabled: p.cfg.MonitoringEnabled, run: p.installMonitoring},
		{name: "firewall", enabled: p.cfg.FirewallEnabled, run: p.configureFirewall},
		{name: "hardening", enabled: p.cfg.HardeningEnabled, run: p.applyHardening},
		{name: "backups", enabled: p.cfg.BackupsEnabled, run: p.configureBackups},
		{name: "log rotation", run: p.installLogrotate},
	}
}

// Run executes the provisioning sequence. Later steps may assume earlier
// ones completed; the first failure aborts the run with an error naming
// the step. There is no rollback.
func (p *Provisioner) Run(ctx context.Context) error {
	releaser, err := acquireMutex(mutex.Spec{
		Name:  lockName,
		Clock: p.deps.Clock,
		Delay: 250 * time.Millisecond,
	})
	if err != nil {
		return errors.Annotate(err, "acquiring provisioning lock")
	}
	defer releaser.Release()

	prev, err := p.previousConfig()
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Validate(p.cfg, prev); err != nil {
		return errors.Annotate(err, "validating configuration")
	}

	for _, s := range p.steps() {
		if s.enabled != nil && !s.enabled() {
			logger.Infof("skipping %s: disabled in configuration", s.name)
			continue
		}
		logger.Infof("provisioning: %s", s.name)
		if err := s.run(ctx); err != nil {
			return errors.Annotatef(err, "step %q", s.name)
		}
	}

	if err := p.saveState(); err != nil {
		return errors.Annotate(err, "recording provisioned state")
	}
	logger.Infof("provisioning complete")
	return nil
}

func (p *Provisioner) run(args ...string) error {
	logger.Debugf("running: %v", args)
	cmd := exec.Command(args[0], args[1:]...)
	out, err := runCommand(cmd)
	if err != nil {
		return errors.Annotatef(err, "%v: %s", args, bytes.TrimSpace([]byte(out)))
	}
	return nil
}
