// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package monitoring renders the prometheus and grafana configuration
// for a node host.
package monitoring

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("noderig.monitoring")

const (
	// PrometheusConfigPath is where the scrape config is installed.
	PrometheusConfigPath = "/etc/prometheus/prometheus.yml"

	// GrafanaConfigPath is where the grafana server config is installed.
	GrafanaConfigPath = "/etc/grafana/grafana.ini"

	// NodeExporterPort is the default node_exporter listen port.
	NodeExporterPort = 9100
)

// ScrapeTarget is one job in the prometheus scrape config.
type ScrapeTarget struct {
	Job  string
	Port int
	Path string
}

type promConfig struct {
	Global        promGlobal        `yaml:"global"`
	ScrapeConfigs []promScrapeEntry `yaml:"scrape_configs"`
}

type promGlobal struct {
	ScrapeInterval string `yaml:"scrape_interval"`
}

type promScrapeEntry struct {
	JobName       string             `yaml:"job_name"`
	MetricsPath   string             `yaml:"metrics_path,omitempty"`
	StaticConfigs []promStaticConfig `yaml:"static_configs"`
}

type promStaticConfig struct {
	Targets []string `yaml:"targets"`
}

// PrometheusConfig renders a prometheus scrape config for the given
// targets, all on localhost. Target order is preserved so the rendered
// file is stable across runs.
func PrometheusConfig(scrapeInterval time.Duration, targets []ScrapeTarget) ([]byte, error) {
	cfg := promConfig{
		Global: promGlobal{ScrapeInterval: scrapeInterval.String()},
	}
	for _, t := range targets {
		if t.Port < 1 || t.Port > 65535 {
			return nil, errors.NotValidf("scrape port %d for job %q", t.Port, t.Job)
		}
		cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, promScrapeEntry{
			JobName:     t.Job,
			MetricsPath: t.Path,
			StaticConfigs: []promStaticConfig{{
				Targets: []string{fmt.Sprintf("localhost:%d", t.Port)},
			}},
		})
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// GrafanaConfig renders a grafana.ini with the admin password and listen
// port set. Everything else is left to grafana's defaults.
func GrafanaConfig(port int, adminPassword string) ([]byte, error) {
	if port < 1 || port > 65535 {
		return nil, errors.NotValidf("grafana port %d", port)
	}
	if adminPassword == "" {
		return nil, errors.NotValidf("empty grafana admin password")
	}
	file := ini.Empty()
	server, err := file.NewSection("server")
	if err != nil {
		return nil, errors.Trace(err)
	}
	server.NewKey("http_port", strconv.Itoa(port))
	security, err := file.NewSection("security")
	if err != nil {
		return nil, errors.Trace(err)
	}
	security.NewKey("admin_user", "admin")
	security.NewKey("admin_password", adminPassword)
	security.NewKey("disable_gravatar", "true")
	analytics, err := file.NewSection("analytics")
	if err != nil {
		return nil, errors.Trace(err)
	}
	analytics.NewKey("reporting_enabled", "false")

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// WriteConfig atomically installs rendered config at path. Grafana's ini
// carries the admin password so it must not be world readable; 0640 with
// the service group owning the file is what the packages expect.
func WriteConfig(path string, data []byte) error {
	logger.Debugf("writing monitoring config %q", path)
	return errors.Trace(utils.AtomicWriteFile(path, data, 0640))
}
