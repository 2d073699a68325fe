// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package clients holds the catalog of supported Ethereum execution and
// consensus clients: where their release binaries come from, and how their
// processes are invoked on a provisioned host.
package clients

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/version/v2"

	"github.com/noderig/noderig/core/chain"
)

// Kind distinguishes the two halves of a node: the execution layer and the
// consensus (proof-of-stake) layer. A host runs exactly one client of each
// kind; the pair selection is mutually exclusive within each kind.
type Kind string

const (
	Execution Kind = "execution"
	Consensus Kind = "consensus"
)

// NodeParams carries the host-specific values a client's command line is
// rendered from.
type NodeParams struct {
	Network chain.Network

	// DataDir is the client's chain data directory.
	DataDir string

	// JWTSecretPath is the shared secret authenticating the engine API
	// connection between the execution and consensus clients.
	JWTSecretPath string

	P2PPort     int
	MetricsPort int
	MaxPeers    int

	// CheckpointSyncURL is only meaningful for consensus clients.
	CheckpointSyncURL string

	// ExecutionEndpoint is the engine API URL a consensus client dials.
	ExecutionEndpoint string

	// FeeRecipient and Graffiti are only meaningful for validator
	// processes.
	FeeRecipient string
	Graffiti     string
}

// Client describes one supported client release and how to run it.
type Client struct {
	// Name is the selection key used in configuration.
	Name string

	Kind Kind

	// Version is the pinned release installed by the provisioner.
	Version version.Number

	// Binary is the name the client binary is installed under in
	// /usr/local/bin.
	Binary string

	// url renders the release download URL for a GOARCH value.
	url func(v version.Number, goarch string) (string, error)

	// archivePath is the path of the client binary inside the downloaded
	// archive; empty means the download is the raw binary.
	archivePath func(v version.Number) string

	// runArgs renders the client process command line arguments.
	runArgs func(p NodeParams) []string

	// validatorArgs renders the separate validator process arguments,
	// or is nil for clients without a validator process.
	validatorArgs func(p NodeParams) []string

	// DefaultP2PPort and DefaultMetricsPort are the catalog defaults,
	// overridable from configuration.
	DefaultP2PPort     int
	DefaultMetricsPort int
}

// URL returns the release download URL for the given GOARCH.
func (c Client) URL(goarch string) (string, error) {
	u, err := c.url(c.Version, goarch)
	if err != nil {
		return "", errors.Annotatef(err, "no %v release of %q", goarch, c.Name)
	}
	return u, nil
}

// ArchivePath returns the path of the binary inside the release archive,
// or "" if the release is a raw binary.
func (c Client) ArchivePath() string {
	if c.archivePath == nil {
		return ""
	}
	return c.archivePath(c.Version)
}

// RunArgs renders the client's process arguments.
func (c Client) RunArgs(p NodeParams) []string {
	return c.runArgs(p)
}

// SupportsValidator reports whether the client runs a separate validator
// process.
func (c Client) SupportsValidator() bool {
	return c.validatorArgs != nil
}

// ValidatorArgs renders the validator process arguments.
func (c Client) ValidatorArgs(p NodeParams) ([]string, error) {
	if c.validatorArgs == nil {
		return nil, errors.NotSupportedf("validator process for %q", c.Name)
	}
	return c.validatorArgs(p), nil
}

// ServiceName returns the systemd service name managing the client process.
func (c Client) ServiceName() string {
	return "noderig-" + c.Name
}

// ValidatorServiceName returns the systemd service name of the validator
// process.
func (c Client) ValidatorServiceName() string {
	return "noderig-" + c.Name + "-validator"
}

func mustVersion(s string) version.Number {
	return version.MustParse(s)
}

// ByName returns the catalog entry for the named client of the given kind.
func ByName(kind Kind, name string) (Client, error) {
	var catalog []Client
	switch kind {
	case Execution:
		catalog = executionClients
	case Consensus:
		catalog = consensusClients
	default:
		return Client{}, errors.NotValidf("client kind %q", kind)
	}
	for _, c := range catalog {
		if c.Name == name {
			return c, nil
		}
	}
	return Client{}, errors.NotFoundf("%s client %q", kind, name)
}

// Names returns the selection keys of the catalog for the given kind.
func Names(kind Kind) []string {
	var catalog []Client
	switch kind {
	case Execution:
		catalog = executionClients
	case Consensus:
		catalog = consensusClients
	}
	names := make([]string, len(catalog))
	for i, c := range catalog {
		names[i] = c.Name
	}
	return names
}

func lighthouseArch(goarch string) (string, error) {
	switch goarch {
	case "amd64":
		return "x86_64-unknown-linux-gnu", nil
	case "arm64":
		return "aarch64-unknown-linux-gnu", nil
	}
	return "", errors.Errorf("unsupported architecture %q", goarch)
}

func linuxArch(goarch string) (string, error) {
	switch goarch {
	case "amd64", "arm64":
		return goarch, nil
	}
	return "", errors.Errorf("unsupported architecture %q", goarch)
}

var executionClients = []Client{{
	Name:               "geth",
	Kind:               Execution,
	Version:            mustVersion("1.14.12"),
	Binary:             "geth",
	DefaultP2PPort:     30303,
	DefaultMetricsPort: 6060,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := linuxArch(goarch)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://gethstore.blob.core.windows.net/builds/geth-linux-%s-%s.tar.gz", arch, v), nil
	},
	archivePath: func(v version.Number) string {
		return "geth"
	},
	runArgs: func(p NodeParams) []string {
		args := []string{
			"--" + networkFlag(p.Network),
			"--datadir", p.DataDir,
			"--authrpc.jwtsecret", p.JWTSecretPath,
			"--authrpc.addr", "127.0.0.1",
			"--authrpc.port", "8551",
			"--port", fmt.Sprint(p.P2PPort),
			"--http",
			"--http.addr", "127.0.0.1",
			"--http.api", "eth,net,engine,admin",
			"--metrics",
			"--metrics.port", fmt.Sprint(p.MetricsPort),
		}
		if p.MaxPeers > 0 {
			args = append(args, "--maxpeers", fmt.Sprint(p.MaxPeers))
		}
		return args
	},
}, {
	Name:               "nethermind",
	Kind:               Execution,
	Version:            mustVersion("1.29.1"),
	Binary:             "nethermind",
	DefaultP2PPort:     30303,
	DefaultMetricsPort: 6060,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := linuxArch(goarch)
		if err != nil {
			return "", err
		}
		arch = map[string]string{"amd64": "x64", "arm64": "arm64"}[arch]
		return fmt.Sprintf("https://github.com/NethermindEth/nethermind/releases/download/%v/nethermind-%v-linux-%s.zip", v, v, arch), nil
	},
	archivePath: func(v version.Number) string {
		return "nethermind"
	},
	runArgs: func(p NodeParams) []string {
		args := []string{
			"--config", p.Network.Name,
			"--datadir", p.DataDir,
			"--JsonRpc.JwtSecretFile", p.JWTSecretPath,
			"--JsonRpc.EngineHost", "127.0.0.1",
			"--JsonRpc.EnginePort", "8551",
			"--Network.P2PPort", fmt.Sprint(p.P2PPort),
			"--Metrics.Enabled", "true",
			"--Metrics.ExposePort", fmt.Sprint(p.MetricsPort),
		}
		if p.MaxPeers > 0 {
			args = append(args, "--Network.MaxActivePeers", fmt.Sprint(p.MaxPeers))
		}
		return args
	},
}, {
	Name:               "erigon",
	Kind:               Execution,
	Version:            mustVersion("2.60.10"),
	Binary:             "erigon",
	DefaultP2PPort:     30303,
	DefaultMetricsPort: 6060,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := linuxArch(goarch)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://github.com/erigontech/erigon/releases/download/v%v/erigon_v%v_linux_%s.tar.gz", v, v, arch), nil
	},
	archivePath: func(v version.Number) string {
		return "erigon"
	},
	runArgs: func(p NodeParams) []string {
		args := []string{
			"--chain", p.Network.Name,
			"--datadir", p.DataDir,
			"--authrpc.jwtsecret", p.JWTSecretPath,
			"--authrpc.addr", "127.0.0.1",
			"--authrpc.port", "8551",
			"--port", fmt.Sprint(p.P2PPort),
			"--metrics",
			"--metrics.port", fmt.Sprint(p.MetricsPort),
		}
		if p.MaxPeers > 0 {
			args = append(args, "--maxpeers", fmt.Sprint(p.MaxPeers))
		}
		return args
	},
}}

// networkFlag maps a network to geth's bare network selection flag;
// mainnet is geth's default and has no flag of its own.
func networkFlag(n chain.Network) string {
	if n.Name == chain.Mainnet {
		return "mainnet"
	}
	return n.Name
}

var consensusClients = []Client{{
	Name:               "lighthouse",
	Kind:               Consensus,
	Version:            mustVersion("5.3.0"),
	Binary:             "lighthouse",
	DefaultP2PPort:     9000,
	DefaultMetricsPort: 5054,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := lighthouseArch(goarch)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://github.com/sigp/lighthouse/releases/download/v%v/lighthouse-v%v-%s.tar.gz", v, v, arch), nil
	},
	archivePath: func(v version.Number) string {
		return "lighthouse"
	},
	runArgs: func(p NodeParams) []string {
		return []string{
			"bn",
			"--network", p.Network.Name,
			"--datadir", p.DataDir,
			"--execution-endpoint", p.ExecutionEndpoint,
			"--execution-jwt", p.JWTSecretPath,
			"--port", fmt.Sprint(p.P2PPort),
			"--checkpoint-sync-url", p.CheckpointSyncURL,
			"--metrics",
			"--metrics-port", fmt.Sprint(p.MetricsPort),
		}
	},
	validatorArgs: func(p NodeParams) []string {
		args := []string{
			"vc",
			"--network", p.Network.Name,
			"--datadir", p.DataDir,
			"--suggested-fee-recipient", p.FeeRecipient,
		}
		if p.Graffiti != "" {
			args = append(args, "--graffiti", p.Graffiti)
		}
		return args
	},
}, {
	Name:               "prysm",
	Kind:               Consensus,
	Version:            mustVersion("5.1.2"),
	Binary:             "beacon-chain",
	DefaultP2PPort:     9000,
	DefaultMetricsPort: 8080,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := linuxArch(goarch)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://github.com/prysmaticlabs/prysm/releases/download/v%v/beacon-chain-v%v-linux-%s", v, v, arch), nil
	},
	runArgs: func(p NodeParams) []string {
		return []string{
			"--" + p.Network.Name,
			"--accept-terms-of-use",
			"--datadir", p.DataDir,
			"--execution-endpoint", p.ExecutionEndpoint,
			"--jwt-secret", p.JWTSecretPath,
			"--p2p-tcp-port", fmt.Sprint(p.P2PPort),
			"--p2p-udp-port", fmt.Sprint(p.P2PPort),
			"--checkpoint-sync-url", p.CheckpointSyncURL,
			"--monitoring-port", fmt.Sprint(p.MetricsPort),
		}
	},
	validatorArgs: func(p NodeParams) []string {
		args := []string{
			"--" + p.Network.Name,
			"--accept-terms-of-use",
			"--datadir", p.DataDir,
			"--suggested-fee-recipient", p.FeeRecipient,
		}
		if p.Graffiti != "" {
			args = append(args, "--graffiti", p.Graffiti)
		}
		return args
	},
}, {
	Name:               "teku",
	Kind:               Consensus,
	Version:            mustVersion("24.10.3"),
	Binary:             "teku",
	DefaultP2PPort:     9000,
	DefaultMetricsPort: 8008,
	url: func(v version.Number, goarch string) (string, error) {
		// Teku ships a single JVM archive for every architecture.
		return fmt.Sprintf("https://artifacts.consensys.net/public/teku/raw/names/teku.tar.gz/versions/%v/teku-%v.tar.gz", v, v), nil
	},
	archivePath: func(v version.Number) string {
		return fmt.Sprintf("teku-%v/bin/teku", v)
	},
	runArgs: func(p NodeParams) []string {
		return []string{
			"--network", p.Network.Name,
			"--data-path", p.DataDir,
			"--ee-endpoint", p.ExecutionEndpoint,
			"--ee-jwt-secret-file", p.JWTSecretPath,
			"--p2p-port", fmt.Sprint(p.P2PPort),
			"--initial-state", p.CheckpointSyncURL,
			"--metrics-enabled",
			"--metrics-port", fmt.Sprint(p.MetricsPort),
		}
	},
	validatorArgs: func(p NodeParams) []string {
		args := []string{
			"validator-client",
			"--network", p.Network.Name,
			"--data-path", p.DataDir,
			"--validators-proposer-default-fee-recipient", p.FeeRecipient,
		}
		if p.Graffiti != "" {
			args = append(args, "--validators-graffiti", p.Graffiti)
		}
		return args
	},
}, {
	Name:               "nimbus",
	Kind:               Consensus,
	Version:            mustVersion("24.10.0"),
	Binary:             "nimbus_beacon_node",
	DefaultP2PPort:     9000,
	DefaultMetricsPort: 8008,
	url: func(v version.Number, goarch string) (string, error) {
		arch, err := linuxArch(goarch)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://github.com/status-im/nimbus-eth2/releases/download/v%v/nimbus-eth2_Linux_%s_%v.tar.gz", v, arch, v), nil
	},
	archivePath: func(v version.Number) string {
		return "build/nimbus_beacon_node"
	},
	runArgs: func(p NodeParams) []string {
		return []string{
			"--network=" + p.Network.Name,
			"--data-dir=" + p.DataDir,
			"--web3-url=" + p.ExecutionEndpoint,
			"--jwt-secret=" + p.JWTSecretPath,
			"--tcp-port=" + fmt.Sprint(p.P2PPort),
			"--udp-port=" + fmt.Sprint(p.P2PPort),
			"--external-beacon-api-url=" + p.CheckpointSyncURL,
			"--metrics",
			"--metrics-port=" + fmt.Sprint(p.MetricsPort),
		}
	},
}}
