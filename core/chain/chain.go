// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package chain holds the catalog of Ethereum networks a host can be
// provisioned for.
package chain

import (
	"github.com/juju/errors"
)

const (
	Mainnet = "mainnet"
	Sepolia = "sepolia"
	Holesky = "holesky"
	Hoodi   = "hoodi"
)

// Network describes one Ethereum network.
type Network struct {
	// Name is the canonical network name, as understood by every
	// execution and consensus client's --network style flag.
	Name string

	// ID is the network's chain ID.
	ID uint64

	// CheckpointSyncURL is a public checkpoint sync endpoint used as the
	// default for consensus clients on this network.
	CheckpointSyncURL string
}

var networks = map[string]Network{
	Mainnet: {
		Name:              Mainnet,
		ID:                1,
		CheckpointSyncURL: "https://beaconstate.info",
	},
	Sepolia: {
		Name:              Sepolia,
		ID:                11155111,
		CheckpointSyncURL: "https://sepolia.beaconstate.info",
	},
	Holesky: {
		Name:              Holesky,
		ID:                17000,
		CheckpointSyncURL: "https://holesky.beaconstate.info",
	},
	Hoodi: {
		Name:              Hoodi,
		ID:                560048,
		CheckpointSyncURL: "https://hoodi.beaconstate.info",
	},
}

// All returns the names of the supported networks in a stable order.
var All = []string{Mainnet, Sepolia, Holesky, Hoodi}

// ByName returns the network with the given name.
func ByName(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, errors.NotFoundf("network %q", name)
	}
	return n, nil
}

// IsSupported reports whether name is a known network name.
func IsSupported(name string) bool {
	_, ok := networks[name]
	return ok
}
