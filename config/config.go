// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the host provisioning configuration: a flat set of
// scalar attributes selecting the network, the execution and consensus
// client pair, and the optional subsystems (validator, MEV-boost,
// monitoring, firewall, hardening, backups).
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	"github.com/noderig/noderig/core/chain"
	"github.com/noderig/noderig/core/clients"
)

var logger = loggo.GetLogger("noderig.config")

const (
	// DefaultDataDir is where client chain data lives.
	DefaultDataDir = "/var/lib/noderig"

	// DefaultLogDir is the fixed path provisioning logs are written under.
	DefaultLogDir = "/var/log/noderig"

	// DefaultJWTSecretPath is the engine API shared secret location.
	DefaultJWTSecretPath = "/etc/noderig/jwt.hex"

	// DefaultBackupDir is where backup archives accumulate.
	DefaultBackupDir = "/var/backups/noderig"
)

// Config holds an immutable provisioning configuration.
type Config struct {
	m map[string]interface{}
}

// Defaulting is a value that specifies whether a configuration
// creator should fill in unset attributes from the defaults.
type Defaulting bool

const (
	UseDefaults Defaulting = true
	NoDefaults  Defaulting = false
)

// New returns a new configuration. Fields common to every provisioning run
// are verified; with UseDefaults, unset attributes take default values.
func New(withDefaults Defaulting, attrs map[string]interface{}) (*Config, error) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	checker := noDefaultsChecker
	if withDefaults {
		checker = withDefaultsChecker
	}
	m, err := checker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c := &Config{m: m.(map[string]interface{})}
	if err := Validate(c, nil); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

// Validate ensures that cfg is a valid configuration. If old is not nil, it
// holds the configuration of a previous provisioning run, and attributes
// that must not change across runs are checked against it.
func Validate(cfg, old *Config) error {
	for _, attr := range mandatory {
		if v, ok := cfg.m[attr].(string); !ok || v == "" {
			return errors.Errorf("empty %s in configuration", attr)
		}
	}

	if !chain.IsSupported(cfg.Network()) {
		return errors.Errorf("unsupported network %q (expected one of %s)",
			cfg.Network(), strings.Join(chain.All, ", "))
	}
	if _, err := clients.ByName(clients.Execution, cfg.ExecutionClient()); err != nil {
		return errors.Annotatef(err, "invalid execution-client (expected one of %s)",
			strings.Join(clients.Names(clients.Execution), ", "))
	}
	consensus, err := clients.ByName(clients.Consensus, cfg.ConsensusClient())
	if err != nil {
		return errors.Annotatef(err, "invalid consensus-client (expected one of %s)",
			strings.Join(clients.Names(clients.Consensus), ", "))
	}

	for _, attr := range []string{
		"execution-p2p-port", "consensus-p2p-port", "ssh-port",
		"mev-boost-port", "grafana-port",
	} {
		if port := cfg.intAttr(attr); port < 1 || port > 65535 {
			return errors.Errorf("invalid %s %d in configuration", attr, port)
		}
	}

	if cfg.ValidatorEnabled() {
		if !consensus.SupportsValidator() {
			return errors.Errorf("consensus-client %q has no separate validator process", consensus.Name)
		}
		if !validFeeRecipient(cfg.FeeRecipient()) {
			return errors.Errorf("enable-validator requires a valid fee-recipient address")
		}
	}
	if cfg.MEVBoostEnabled() && len(cfg.MEVRelays()) == 0 {
		return errors.Errorf("enable-mev-boost requires at least one relay in mev-relays")
	}
	for _, relay := range cfg.MEVRelays() {
		if u, err := url.Parse(relay); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Errorf("invalid relay URL %q in mev-relays", relay)
		}
	}
	if cfg.MonitoringEnabled() && cfg.GrafanaAdminPassword() == "" {
		return errors.Errorf("enable-monitoring requires grafana-admin-password")
	}
	if cfg.BackupsEnabled() {
		if err := validateCronSchedule(cfg.BackupSchedule()); err != nil {
			return errors.Annotate(err, "invalid backup-schedule")
		}
		if cfg.BackupRetentionDays() < 1 {
			return errors.Errorf("backup-retention-days must be at least 1")
		}
	}
	if u := cfg.CheckpointSyncURL(); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return errors.Errorf("invalid checkpoint-sync-url %q", u)
		}
	}

	// These cannot change once a host has been provisioned: the installed
	// units and on-disk chain data are specific to them.
	if old != nil {
		for _, attr := range immutableAttributes {
			if newv, oldv := cfg.m[attr], old.m[attr]; newv != oldv {
				return errors.Errorf("cannot change %s from %v to %v on a provisioned host", attr, oldv, newv)
			}
		}
	}
	return nil
}

var feeRecipientRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func validFeeRecipient(addr string) bool {
	return feeRecipientRE.MatchString(addr)
}

func validateCronSchedule(s string) error {
	if len(strings.Fields(s)) != 5 {
		return errors.Errorf("%q is not a five-field cron expression", s)
	}
	return nil
}

// Network returns the selected Ethereum network name.
func (c *Config) Network() string {
	return c.strAttr("network")
}

// ExecutionClient returns the selected execution client name.
func (c *Config) ExecutionClient() string {
	return c.strAttr("execution-client")
}

// ConsensusClient returns the selected consensus client name.
func (c *Config) ConsensusClient() string {
	return c.strAttr("consensus-client")
}

// DataDir returns the directory chain data is kept under.
func (c *Config) DataDir() string {
	return c.strAttr("data-dir")
}

// LogDir returns the directory provisioning logs are written under.
func (c *Config) LogDir() string {
	return c.strAttr("log-dir")
}

// JWTSecretPath returns the engine API shared secret path.
func (c *Config) JWTSecretPath() string {
	return c.strAttr("jwt-secret-path")
}

// ServiceUser returns the system user client processes run as.
func (c *Config) ServiceUser() string {
	return c.strAttr("service-user")
}

// MaxPeers returns the peer limit applied to both clients,
// or zero for the clients' own defaults.
func (c *Config) MaxPeers() int {
	return c.intAttr("max-peers")
}

// ExecutionP2PPort returns the execution client's P2P port.
func (c *Config) ExecutionP2PPort() int {
	return c.intAttr("execution-p2p-port")
}

// ConsensusP2PPort returns the consensus client's P2P port.
func (c *Config) ConsensusP2PPort() int {
	return c.intAttr("consensus-p2p-port")
}

// CheckpointSyncURL returns the configured checkpoint sync endpoint, or the
// network's default when unset.
func (c *Config) CheckpointSyncURL() string {
	if u := c.strAttr("checkpoint-sync-url"); u != "" {
		return u
	}
	n, err := chain.ByName(c.Network())
	if err != nil {
		return ""
	}
	return n.CheckpointSyncURL
}

// ValidatorEnabled reports whether a validator process is provisioned.
func (c *Config) ValidatorEnabled() bool {
	return c.boolAttr("enable-validator")
}

// FeeRecipient returns the validator fee recipient address.
func (c *Config) FeeRecipient() string {
	return c.strAttr("fee-recipient")
}

// Graffiti returns the validator block graffiti.
func (c *Config) Graffiti() string {
	return c.strAttr("graffiti")
}

// MEVBoostEnabled reports whether the MEV-boost sidecar is provisioned.
func (c *Config) MEVBoostEnabled() bool {
	return c.boolAttr("enable-mev-boost")
}

// MEVRelays returns the configured relay URLs.
func (c *Config) MEVRelays() []string {
	raw := c.strAttr("mev-relays")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	relays := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			relays = append(relays, p)
		}
	}
	return relays
}

// MEVBoostPort returns the local port MEV-boost listens on.
func (c *Config) MEVBoostPort() int {
	return c.intAttr("mev-boost-port")
}

// MonitoringEnabled reports whether the monitoring stack is provisioned.
func (c *Config) MonitoringEnabled() bool {
	return c.boolAttr("enable-monitoring")
}

// GrafanaPort returns the grafana HTTP port.
func (c *Config) GrafanaPort() int {
	return c.intAttr("grafana-port")
}

// GrafanaAdminPassword returns the grafana admin credential.
func (c *Config) GrafanaAdminPassword() string {
	return c.strAttr("grafana-admin-password")
}

// FirewallEnabled reports whether ufw rules are applied.
func (c *Config) FirewallEnabled() bool {
	return c.boolAttr("enable-firewall")
}

// SSHPort returns the SSH port kept open by the firewall.
func (c *Config) SSHPort() int {
	return c.intAttr("ssh-port")
}

// HardeningEnabled reports whether SSH/fail2ban hardening is applied.
func (c *Config) HardeningEnabled() bool {
	return c.boolAttr("enable-hardening")
}

// BackupsEnabled reports whether scheduled backups are provisioned.
func (c *Config) BackupsEnabled() bool {
	return c.boolAttr("enable-backups")
}

// BackupDir returns the directory backup archives are written to.
func (c *Config) BackupDir() string {
	return c.strAttr("backup-dir")
}

// BackupSchedule returns the cron schedule for backups.
func (c *Config) BackupSchedule() string {
	return c.strAttr("backup-schedule")
}

// BackupRetentionDays returns how long backup archives are kept.
func (c *Config) BackupRetentionDays() int {
	return c.intAttr("backup-retention-days")
}

// AptProxySettings returns the proxy values applied to package manager
// invocations.
func (c *Config) AptProxySettings() (httpProxy, httpsProxy, noProxy string) {
	return c.strAttr("apt-http-proxy"), c.strAttr("apt-https-proxy"), c.strAttr("apt-no-proxy")
}

// AllAttrs returns a copy of the raw configuration attributes.
func (c *Config) AllAttrs() map[string]interface{} {
	m := make(map[string]interface{}, len(c.m))
	for k, v := range c.m {
		m[k] = v
	}
	return m
}

// Apply returns a new configuration that has the attributes of c plus attrs.
func (c *Config) Apply(attrs map[string]interface{}) (*Config, error) {
	m := c.AllAttrs()
	for k, v := range attrs {
		m[k] = v
	}
	return New(NoDefaults, m)
}

func (c *Config) strAttr(name string) string {
	v, _ := c.m[name].(string)
	return v
}

func (c *Config) intAttr(name string) int {
	switch v := c.m[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	logger.Warningf("attribute %q is not an integer", name)
	return 0
}

func (c *Config) boolAttr(name string) bool {
	v, _ := c.m[name].(bool)
	return v
}

var fields = schema.Fields{
	"network":                schema.String(),
	"execution-client":       schema.String(),
	"consensus-client":       schema.String(),
	"data-dir":               schema.String(),
	"log-dir":                schema.String(),
	"jwt-secret-path":        schema.String(),
	"service-user":           schema.String(),
	"max-peers":              schema.ForceInt(),
	"execution-p2p-port":     schema.ForceInt(),
	"consensus-p2p-port":     schema.ForceInt(),
	"checkpoint-sync-url":    schema.String(),
	"enable-validator":       schema.Bool(),
	"fee-recipient":          schema.String(),
	"graffiti":               schema.String(),
	"enable-mev-boost":       schema.Bool(),
	"mev-relays":             schema.String(),
	"mev-boost-port":         schema.ForceInt(),
	"enable-monitoring":      schema.Bool(),
	"grafana-port":           schema.ForceInt(),
	"grafana-admin-password": schema.String(),
	"enable-firewall":        schema.Bool(),
	"ssh-port":               schema.ForceInt(),
	"enable-hardening":       schema.Bool(),
	"enable-backups":         schema.Bool(),
	"backup-dir":             schema.String(),
	"backup-schedule":        schema.String(),
	"backup-retention-days":  schema.ForceInt(),
	"apt-http-proxy":         schema.String(),
	"apt-https-proxy":        schema.String(),
	"apt-no-proxy":           schema.String(),
}

// Defaults returns the default values for attributes that have one.
func Defaults() map[string]interface{} {
	d := make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return d
}

var defaults = schema.Defaults{
	"network":                chain.Mainnet,
	"execution-client":       "geth",
	"consensus-client":       "lighthouse",
	"data-dir":               DefaultDataDir,
	"log-dir":                DefaultLogDir,
	"jwt-secret-path":        DefaultJWTSecretPath,
	"service-user":           "noderig",
	"max-peers":              0,
	"execution-p2p-port":     30303,
	"consensus-p2p-port":     9000,
	"checkpoint-sync-url":    "",
	"enable-validator":       false,
	"fee-recipient":          "",
	"graffiti":               "",
	"enable-mev-boost":       false,
	"mev-relays":             "",
	"mev-boost-port":         18550,
	"enable-monitoring":      false,
	"grafana-port":           3000,
	"grafana-admin-password": "",
	"enable-firewall":        true,
	"ssh-port":               22,
	"enable-hardening":       true,
	"enable-backups":         false,
	"backup-dir":             DefaultBackupDir,
	"backup-schedule":        "0 3 * * *",
	"backup-retention-days":  14,
	"apt-http-proxy":         "",
	"apt-https-proxy":        "",
	"apt-no-proxy":           "",
}

// mandatory holds the string attributes that must be non-empty in every
// configuration.
var mandatory = []string{
	"network",
	"execution-client",
	"consensus-client",
	"data-dir",
	"log-dir",
	"jwt-secret-path",
	"service-user",
}

// immutableAttributes holds those attributes which are not allowed to
// change across provisioning runs on the same host.
var immutableAttributes = []string{
	"network",
	"data-dir",
	"execution-client",
	"consensus-client",
}

var (
	withDefaultsChecker = schema.FieldMap(fields, defaults)
	noDefaultsChecker   = schema.FieldMap(fields, nil)
)

// String renders cfg for logs, with credentials elided.
func (c *Config) String() string {
	return fmt.Sprintf("network=%s execution=%s consensus=%s validator=%t mev-boost=%t monitoring=%t",
		c.Network(), c.ExecutionClient(), c.ConsensusClient(),
		c.ValidatorEnabled(), c.MEVBoostEnabled(), c.MonitoringEnabled())
}
