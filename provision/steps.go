// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"github.com/kballard/go-shellquote"

	"github.com/noderig/noderig/backup"
	"github.com/noderig/noderig/core/chain"
	"github.com/noderig/noderig/core/clients"
	"github.com/noderig/noderig/downloader"
	"github.com/noderig/noderig/firewall"
	"github.com/noderig/noderig/hardening"
	"github.com/noderig/noderig/monitoring"
	"github.com/noderig/noderig/service/common"
)

// basePackages are installed on every run before anything else.
var basePackages = []string{"ca-certificates", "logrotate"}

func (p *Provisioner) installBasePackages(ctx context.Context) error {
	if err := p.deps.Packages.Update(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.deps.Packages.Install(basePackages...))
}

func (p *Provisioner) createUsersAndDirs(ctx context.Context) error {
	user := p.cfg.ServiceUser()
	if !p.userExists(user) {
		err := p.run("useradd", "--system", "--no-create-home",
			"--home-dir", p.cfg.DataDir(), "--shell", "/usr/sbin/nologin", user)
		if err != nil {
			return errors.Annotatef(err, "creating user %q", user)
		}
	}
	for _, dir := range []string{p.cfg.DataDir(), p.cfg.LogDir(), p.paths.TmpDir, p.paths.StateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Trace(err)
		}
	}
	if err := p.run("chown", "-R", user+":"+user, p.cfg.DataDir()); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.run("chown", "-R", user+":"+user, p.cfg.LogDir()))
}

func (p *Provisioner) userExists(name string) bool {
	return p.run("id", "-u", name) == nil
}

// writeJWTSecret generates the shared engine API secret: 32 random
// bytes, hex encoded. An existing secret is kept because both clients
// already hold it.
func (p *Provisioner) writeJWTSecret(ctx context.Context) error {
	path := p.cfg.JWTSecretPath()
	if _, err := os.Stat(path); err == nil {
		logger.Debugf("jwt secret %q already present", path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Trace(err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(path, []byte(hex.EncodeToString(secret)), 0600); err != nil {
		return errors.Trace(err)
	}
	user := p.cfg.ServiceUser()
	return errors.Trace(p.run("chown", user+":"+user, path))
}

func (p *Provisioner) installExecutionClient(ctx context.Context) error {
	client, err := clients.ByName(clients.Execution, p.cfg.ExecutionClient())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.installClient(ctx, client))
}

func (p *Provisioner) installConsensusClient(ctx context.Context) error {
	client, err := clients.ByName(clients.Consensus, p.cfg.ConsensusClient())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.installClient(ctx, client))
}

func (p *Provisioner) installClient(ctx context.Context, client clients.Client) error {
	binPath, err := p.fetchBinary(ctx, client)
	if err != nil {
		return errors.Trace(err)
	}
	params, err := p.nodeParams(client)
	if err != nil {
		return errors.Trace(err)
	}
	args := append([]string{binPath}, client.RunArgs(params)...)
	conf := p.serviceConf(
		fmt.Sprintf("%s %s client (noderig)", client.Name, client.Kind),
		shellquote.Join(args...),
	)
	return errors.Trace(p.installService(client.ServiceName(), conf))
}

func (p *Provisioner) installValidator(ctx context.Context) error {
	client, err := clients.ByName(clients.Consensus, p.cfg.ConsensusClient())
	if err != nil {
		return errors.Trace(err)
	}
	params, err := p.nodeParams(client)
	if err != nil {
		return errors.Trace(err)
	}
	args, err := client.ValidatorArgs(params)
	if err != nil {
		return errors.Trace(err)
	}
	binPath := filepath.Join(p.paths.BinDir, client.Binary)
	conf := p.serviceConf(
		fmt.Sprintf("%s validator client (noderig)", client.Name),
		shellquote.Join(append([]string{binPath}, args...)...),
	)
	return errors.Trace(p.installService(client.ValidatorServiceName(), conf))
}

// mev-boost release pin. flashbots publish gzipped tarballs with the
// binary at the archive root.
const (
	mevBoostVersion = "1.8"
	mevBoostService = "noderig-mev-boost"
)

func mevBoostURL(goarch string) (string, error) {
	switch goarch {
	case "amd64", "arm64":
	default:
		return "", errors.NotSupportedf("mev-boost on %q", goarch)
	}
	return fmt.Sprintf(
		"https://github.com/flashbots/mev-boost/releases/download/v%s/mev-boost_%s_linux_%s.tar.gz",
		mevBoostVersion, mevBoostVersion, goarch), nil
}

func (p *Provisioner) installMEVBoost(ctx context.Context) error {
	u, err := mevBoostURL(p.goarch)
	if err != nil {
		return errors.Trace(err)
	}
	archive := filepath.Join(p.paths.TmpDir, filepath.Base(u))
	if err := p.deps.Download.Download(ctx, downloader.Request{URL: u, TargetPath: archive}); err != nil {
		return errors.Trace(err)
	}
	binPath := filepath.Join(p.paths.BinDir, "mev-boost")
	if err := downloader.ExtractBinary(archive, "mev-boost", binPath); err != nil {
		return errors.Trace(err)
	}
	network, err := chain.ByName(p.cfg.Network())
	if err != nil {
		return errors.Trace(err)
	}
	args := []string{
		binPath,
		"-" + network.Name,
		"-addr", fmt.Sprintf("127.0.0.1:%d", p.cfg.MEVBoostPort()),
		"-relays", strings.Join(p.cfg.MEVRelays(), ","),
	}
	conf := p.serviceConf("mev-boost relay sidecar (noderig)", shellquote.Join(args...))
	return errors.Trace(p.installService(mevBoostService, conf))
}

// node_exporter release pin.
const (
	nodeExporterVersion = "1.8.2"
	nodeExporterService = "noderig-node-exporter"
)

func nodeExporterURL(goarch string) (string, string, error) {
	switch goarch {
	case "amd64", "arm64":
	default:
		return "", "", errors.NotSupportedf("node_exporter on %q", goarch)
	}
	dir := fmt.Sprintf("node_exporter-%s.linux-%s", nodeExporterVersion, goarch)
	u := fmt.Sprintf("https://github.com/prometheus/node_exporter/releases/download/v%s/%s.tar.gz",
		nodeExporterVersion, dir)
	return u, dir + "/node_exporter", nil
}

func (p *Provisioner) installMonitoring(ctx context.Context) error {
	if err := p.deps.Packages.Install("prometheus", "grafana"); err != nil {
		return errors.Trace(err)
	}

	u, innerPath, err := nodeExporterURL(p.goarch)
	if err != nil {
		return errors.Trace(err)
	}
	archive := filepath.Join(p.paths.TmpDir, filepath.Base(u))
	if err := p.deps.Download.Download(ctx, downloader.Request{URL: u, TargetPath: archive}); err != nil {
		return errors.Trace(err)
	}
	binPath := filepath.Join(p.paths.BinDir, "node_exporter")
	if err := downloader.ExtractBinary(archive, innerPath, binPath); err != nil {
		return errors.Trace(err)
	}
	conf := p.serviceConf("node_exporter host metrics (noderig)", shellquote.Join(
		binPath, "--web.listen-address", fmt.Sprintf("127.0.0.1:%d", monitoring.NodeExporterPort)))
	if err := p.installService(nodeExporterService, conf); err != nil {
		return errors.Trace(err)
	}

	targets, err := p.scrapeTargets()
	if err != nil {
		return errors.Trace(err)
	}
	promCfg, err := monitoring.PrometheusConfig(15*time.Second, targets)
	if err != nil {
		return errors.Trace(err)
	}
	if err := monitoring.WriteConfig(p.paths.PrometheusConfigPath, promCfg); err != nil {
		return errors.Trace(err)
	}
	grafanaCfg, err := monitoring.GrafanaConfig(p.cfg.GrafanaPort(), p.cfg.GrafanaAdminPassword())
	if err != nil {
		return errors.Trace(err)
	}
	if err := monitoring.WriteConfig(p.paths.GrafanaConfigPath, grafanaCfg); err != nil {
		return errors.Trace(err)
	}
	// prometheus and grafana ship their own units; we only bounce them
	// to pick up the rendered configs.
	return errors.Trace(p.run("systemctl", "restart", "prometheus", "grafana-server"))
}

func (p *Provisioner) scrapeTargets() ([]monitoring.ScrapeTarget, error) {
	execution, err := clients.ByName(clients.Execution, p.cfg.ExecutionClient())
	if err != nil {
		return nil, errors.Trace(err)
	}
	consensus, err := clients.ByName(clients.Consensus, p.cfg.ConsensusClient())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []monitoring.ScrapeTarget{
		{Job: execution.Name, Port: execution.DefaultMetricsPort},
		{Job: consensus.Name, Port: consensus.DefaultMetricsPort},
		{Job: "node", Port: monitoring.NodeExporterPort},
	}, nil
}

func (p *Provisioner) configureFirewall(ctx context.Context) error {
	if err := p.deps.Firewall.SetDefaults(); err != nil {
		return errors.Trace(err)
	}
	candidates := []firewall.Rule{
		{Port: p.cfg.SSHPort(), Protocol: firewall.TCP, Comment: "ssh"},
		{Port: p.cfg.ExecutionP2PPort(), Protocol: firewall.TCP, Comment: "execution p2p"},
		{Port: p.cfg.ExecutionP2PPort(), Protocol: firewall.UDP, Comment: "execution p2p"},
		{Port: p.cfg.ConsensusP2PPort(), Protocol: firewall.TCP, Comment: "consensus p2p"},
		{Port: p.cfg.ConsensusP2PPort(), Protocol: firewall.UDP, Comment: "consensus p2p"},
	}
	if p.cfg.MonitoringEnabled() {
		candidates = append(candidates, firewall.Rule{
			Port: p.cfg.GrafanaPort(), Protocol: firewall.TCP, Comment: "grafana",
		})
	}
	// The execution and consensus clients may be configured onto the
	// same p2p port; only ask for each port/protocol pair once.
	seen := set.NewStrings()
	var rules []firewall.Rule
	for _, rule := range candidates {
		key := fmt.Sprintf("%d/%s", rule.Port, rule.Protocol)
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		rules = append(rules, rule)
	}
	if err := p.deps.Firewall.Allow(rules...); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.deps.Firewall.Enable())
}

func (p *Provisioner) applyHardening(ctx context.Context) error {
	if err := p.deps.Packages.Install(hardening.Packages()...); err != nil {
		return errors.Trace(err)
	}
	dropIn, err := hardening.SSHDDropIn(p.cfg.SSHPort())
	if err != nil {
		return errors.Trace(err)
	}
	if err := hardening.WriteDropIn(p.paths.SSHDDropInPath, dropIn); err != nil {
		return errors.Trace(err)
	}
	jail, err := hardening.Fail2banJail(p.cfg.SSHPort())
	if err != nil {
		return errors.Trace(err)
	}
	if err := hardening.WriteDropIn(p.paths.Fail2banJailPath, jail); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.run("systemctl", "restart", "ssh", "fail2ban"))
}

func (p *Provisioner) configureBackups(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.BackupDir(), 0700); err != nil {
		return errors.Trace(err)
	}
	command := fmt.Sprintf("%s backup --config %s",
		filepath.Join(p.paths.BinDir, "noderig"), p.paths.ConfigPath)
	if p.paths.PassphraseFile != "" {
		command += " --passphrase-file " + p.paths.PassphraseFile
	}
	cronPath := filepath.Join(p.paths.CronDir, "noderig-backup")
	if err := backup.WriteCron(cronPath, p.cfg.BackupSchedule(), command); err != nil {
		return errors.Trace(err)
	}
	// Take the first archive now rather than waiting for cron.
	archive, err := p.deps.Backups.Create(backup.Params{
		SourceDirs: []string{
			filepath.Dir(p.paths.ConfigPath),
			filepath.Dir(p.cfg.JWTSecretPath()),
			filepath.Join(p.cfg.DataDir(), "keystores"),
		},
		TargetDir: p.cfg.BackupDir(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("initial backup at %q", archive)
	_, err = p.deps.Backups.Prune(p.cfg.BackupDir(), p.cfg.BackupRetentionDays())
	return errors.Trace(err)
}

func (p *Provisioner) installLogrotate(ctx context.Context) error {
	contents := fmt.Sprintf(`%s/*.log {
    weekly
    rotate 4
    compress
    delaycompress
    missingok
    notifempty
    copytruncate
}
`, p.cfg.LogDir())
	path := filepath.Join(p.paths.LogrotateDir, "noderig")
	return errors.Trace(utils.AtomicWriteFile(path, []byte(contents), 0644))
}

// fetchBinary downloads a client release and installs its binary into
// BinDir, returning the installed path.
func (p *Provisioner) fetchBinary(ctx context.Context, client clients.Client) (string, error) {
	u, err := client.URL(p.goarch)
	if err != nil {
		return "", errors.Trace(err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", errors.Trace(err)
	}
	archive := filepath.Join(p.paths.TmpDir, filepath.Base(parsed.Path))
	if err := p.deps.Download.Download(ctx, downloader.Request{URL: u, TargetPath: archive}); err != nil {
		return "", errors.Trace(err)
	}
	binPath := filepath.Join(p.paths.BinDir, client.Binary)
	if err := downloader.ExtractBinary(archive, client.ArchivePath(), binPath); err != nil {
		return "", errors.Trace(err)
	}
	logger.Infof("installed %s %s to %q", client.Name, client.Version, binPath)
	return binPath, nil
}

func (p *Provisioner) nodeParams(client clients.Client) (clients.NodeParams, error) {
	network, err := chain.ByName(p.cfg.Network())
	if err != nil {
		return clients.NodeParams{}, errors.Trace(err)
	}
	params := clients.NodeParams{
		Network:       network,
		DataDir:       filepath.Join(p.cfg.DataDir(), client.Name),
		JWTSecretPath: p.cfg.JWTSecretPath(),
		MetricsPort:   client.DefaultMetricsPort,
		MaxPeers:      p.cfg.MaxPeers(),
	}
	switch client.Kind {
	case clients.Execution:
		params.P2PPort = p.cfg.ExecutionP2PPort()
	case clients.Consensus:
		params.P2PPort = p.cfg.ConsensusP2PPort()
		params.ExecutionEndpoint = "http://127.0.0.1:8551"
		params.CheckpointSyncURL = p.cfg.CheckpointSyncURL()
		if params.CheckpointSyncURL == "" {
			params.CheckpointSyncURL = network.CheckpointSyncURL
		}
		params.FeeRecipient = p.cfg.FeeRecipient()
		params.Graffiti = p.cfg.Graffiti()
	}
	return params, nil
}

func (p *Provisioner) serviceConf(desc, execStart string) common.Conf {
	user := p.cfg.ServiceUser()
	return common.Conf{
		Desc:       desc,
		ExecStart:  execStart,
		User:       user,
		Group:      user,
		WorkingDir: p.cfg.DataDir(),
		Restart:    "always",
		RestartSec: 5,
		After:      []string{"network-online.target"},
		Wants:      []string{"network-online.target"},
		Limit:      map[string]string{"nofile": "1000000"},
	}
}

// installService writes and enables the unit, replacing a stale one, and
// (re)starts the process.
func (p *Provisioner) installService(name string, conf common.Conf) error {
	svc, err := newService(name, conf)
	if err != nil {
		return errors.Trace(err)
	}
	same, err := svc.Exists()
	if err != nil {
		return errors.Trace(err)
	}
	if !same {
		if err := svc.Install(); err != nil {
			return errors.Trace(err)
		}
	}
	running, err := svc.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if running && same {
		logger.Debugf("service %q already up to date and running", name)
		return nil
	}
	if running {
		if err := svc.Stop(); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(svc.Start())
}
