// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provision

var (
	RunCommand   = &runCommand
	NewService   = &newService
	AcquireMutex = &acquireMutex

	MEVBoostURL     = mevBoostURL
	NodeExporterURL = nodeExporterURL
)
