// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/noderig/noderig/service/common"
)

// limitMap maps the friendly limit names used in common.Conf to the
// corresponding systemd directives.
var limitMap = map[string]string{
	"core":    "LimitCORE",
	"cpu":     "LimitCPU",
	"data":    "LimitDATA",
	"fsize":   "LimitFSIZE",
	"memlock": "LimitMEMLOCK",
	"nofile":  "LimitNOFILE",
	"nproc":   "LimitNPROC",
	"rss":     "LimitRSS",
	"stack":   "LimitSTACK",
}

// normalize fills in the conf defaults that serialization would otherwise
// make implicit, so that a conf round-trips through serialize and
// deserialize unchanged.
func normalize(conf common.Conf) common.Conf {
	if conf.Restart == "" {
		conf.Restart = "on-failure"
	}
	return conf
}

// serialize returns the data that, if written to disk, would be recognized
// by systemd as a unit file corresponding to the given conf.
func serialize(conf common.Conf) ([]byte, error) {
	if err := validate(conf); err != nil {
		return nil, errors.Trace(err)
	}

	var opts []*unit.UnitOption
	opts = append(opts, &unit.UnitOption{
		Section: "Unit",
		Name:    "Description",
		Value:   conf.Desc,
	})
	for _, after := range conf.After {
		opts = append(opts, &unit.UnitOption{
			Section: "Unit",
			Name:    "After",
			Value:   after,
		})
	}
	for _, wants := range conf.Wants {
		opts = append(opts, &unit.UnitOption{
			Section: "Unit",
			Name:    "Wants",
			Value:   wants,
		})
	}

	opts = append(opts, &unit.UnitOption{
		Section: "Service",
		Name:    "Type",
		Value:   "simple",
	})
	if conf.User != "" {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    "User",
			Value:   conf.User,
		})
	}
	if conf.Group != "" {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    "Group",
			Value:   conf.Group,
		})
	}
	if conf.WorkingDir != "" {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    "WorkingDirectory",
			Value:   conf.WorkingDir,
		})
	}
	for _, k := range sortedKeys(conf.Env) {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    "Environment",
			Value:   fmt.Sprintf(`"%s=%s"`, k, conf.Env[k]),
		})
	}
	for _, k := range sortedKeys(conf.Limit) {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    limitMap[k],
			Value:   conf.Limit[k],
		})
	}
	opts = append(opts, &unit.UnitOption{
		Section: "Service",
		Name:    "ExecStart",
		Value:   conf.ExecStart,
	})
	restart := conf.Restart
	if restart == "" {
		restart = "on-failure"
	}
	opts = append(opts, &unit.UnitOption{
		Section: "Service",
		Name:    "Restart",
		Value:   restart,
	})
	if conf.RestartSec > 0 {
		opts = append(opts, &unit.UnitOption{
			Section: "Service",
			Name:    "RestartSec",
			Value:   fmt.Sprint(conf.RestartSec),
		})
	}

	opts = append(opts, &unit.UnitOption{
		Section: "Install",
		Name:    "WantedBy",
		Value:   "multi-user.target",
	})

	data, err := io.ReadAll(unit.Serialize(opts))
	return data, errors.Trace(err)
}

// deserialize parses the provided unit file data into a Conf. Only the
// directives serialize writes are recognized; anything else is an error,
// so drift in a hand-edited unit file is noticed rather than ignored.
func deserialize(data []byte) (common.Conf, error) {
	opts, err := unit.Deserialize(strings.NewReader(string(data)))
	if err != nil {
		return common.Conf{}, errors.Trace(err)
	}

	var conf common.Conf
	for _, opt := range opts {
		switch opt.Section {
		case "Unit":
			switch opt.Name {
			case "Description":
				conf.Desc = opt.Value
			case "After":
				conf.After = append(conf.After, opt.Value)
			case "Wants":
				conf.Wants = append(conf.Wants, opt.Value)
			default:
				return conf, errors.NotSupportedf("Unit directive %q", opt.Name)
			}
		case "Service":
			switch {
			case opt.Name == "Type":
				// Ignored on the way back in.
			case opt.Name == "RestartSec":
				sec, err := strconv.Atoi(opt.Value)
				if err != nil {
					return conf, errors.NotValidf("RestartSec %q", opt.Value)
				}
				conf.RestartSec = sec
			case opt.Name == "ExecStart":
				conf.ExecStart = opt.Value
			case opt.Name == "User":
				conf.User = opt.Value
			case opt.Name == "Group":
				conf.Group = opt.Value
			case opt.Name == "WorkingDirectory":
				conf.WorkingDir = opt.Value
			case opt.Name == "Restart":
				conf.Restart = opt.Value
			case opt.Name == "Environment":
				if conf.Env == nil {
					conf.Env = make(map[string]string)
				}
				kv := strings.Trim(opt.Value, `"`)
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return conf, errors.NotValidf("environment value %q", opt.Value)
				}
				conf.Env[key] = value
			case strings.HasPrefix(opt.Name, "Limit"):
				found := false
				for k, v := range limitMap {
					if v == opt.Name {
						if conf.Limit == nil {
							conf.Limit = make(map[string]string)
						}
						conf.Limit[k] = opt.Value
						found = true
					}
				}
				if !found {
					return conf, errors.NotSupportedf("Service directive %q", opt.Name)
				}
			default:
				return conf, errors.NotSupportedf("Service directive %q", opt.Name)
			}
		case "Install":
			if opt.Name != "WantedBy" || opt.Value != "multi-user.target" {
				return conf, errors.NotSupportedf("Install directive %q=%q", opt.Name, opt.Value)
			}
		default:
			return conf, errors.NotSupportedf("section %q", opt.Section)
		}
	}
	return conf, errors.Trace(validate(conf))
}

// validate returns an error if the conf is not valid.
func validate(conf common.Conf) error {
	if conf.Desc == "" {
		return errors.NotValidf("missing Desc")
	}
	if conf.ExecStart == "" {
		return errors.NotValidf("missing ExecStart")
	}
	parts, err := shellquote.Split(conf.ExecStart)
	if err != nil || len(parts) == 0 {
		return errors.NotValidf("ExecStart %q", conf.ExecStart)
	}
	if !path.IsAbs(parts[0]) {
		return errors.NotValidf("relative ExecStart command %q", parts[0])
	}
	for k := range conf.Limit {
		if _, ok := limitMap[k]; !ok {
			return errors.NotValidf("unknown limit %q", k)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
