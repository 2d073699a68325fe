// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package version holds the released version of the tool.
package version

import (
	"github.com/juju/version/v2"
)

// Current is the version of the running noderig binary.
var Current = version.MustParse("1.0.0")
