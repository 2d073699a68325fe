// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

var (
	Serialize   = serialize
	Deserialize = deserialize
	Validate    = validate

	NewChan = &newChan
)
