// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backup

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// CronPath is where the backup schedule is installed.
const CronPath = "/etc/cron.d/noderig-backup"

// CronEntry renders an /etc/cron.d entry running the backup command on
// the given five-field schedule.
func CronEntry(schedule, command string) (string, error) {
	if len(strings.Fields(schedule)) != 5 {
		return "", errors.NotValidf("cron schedule %q", schedule)
	}
	var b strings.Builder
	b.WriteString("# Installed by noderig. Do not edit; changes are overwritten\n")
	b.WriteString("# on the next provisioning run.\n")
	b.WriteString("SHELL=/bin/sh\n")
	b.WriteString("PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin\n")
	fmt.Fprintf(&b, "%s root %s\n", schedule, command)
	return b.String(), nil
}

// WriteCron installs the schedule at CronPath. cron.d files must not be
// writable by anyone but root or cron ignores them.
func WriteCron(path, schedule, command string) error {
	entry, err := CronEntry(schedule, command)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.AtomicWriteFile(path, []byte(entry), 0644))
}
