// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd_test

import (
	"io/fs"
	"os"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/testing"

	"github.com/noderig/noderig/service/systemd"
)

// stubDBusAPI stubs out the systemd dbus connection.
type stubDBusAPI struct {
	*testing.Stub

	Units      []dbus.UnitStatus
	UnitStatus string
}

func (fda *stubDBusAPI) ListUnits() ([]dbus.UnitStatus, error) {
	fda.AddCall("ListUnits")
	return fda.Units, fda.NextErr()
}

func (fda *stubDBusAPI) StartUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.AddCall("StartUnit", name, mode, ch)

	status := fda.UnitStatus
	if status == "" {
		status = "done"
	}
	go func() {
		ch <- status
	}()
	return 0, fda.NextErr()
}

func (fda *stubDBusAPI) StopUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.AddCall("StopUnit", name, mode, ch)

	status := fda.UnitStatus
	if status == "" {
		status = "done"
	}
	go func() {
		ch <- status
	}()
	return 0, fda.NextErr()
}

func (fda *stubDBusAPI) LinkUnitFiles(files []string, runtime, force bool) ([]dbus.LinkUnitFileChange, error) {
	fda.AddCall("LinkUnitFiles", files, runtime, force)
	return nil, fda.NextErr()
}

func (fda *stubDBusAPI) EnableUnitFiles(files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	fda.AddCall("EnableUnitFiles", files, runtime, force)
	return true, nil, fda.NextErr()
}

func (fda *stubDBusAPI) DisableUnitFiles(files []string, runtime bool) ([]dbus.DisableUnitFileChange, error) {
	fda.AddCall("DisableUnitFiles", files, runtime)
	return nil, fda.NextErr()
}

func (fda *stubDBusAPI) Reload() error {
	fda.AddCall("Reload")
	return fda.NextErr()
}

func (fda *stubDBusAPI) Close() {
	fda.AddCall("Close")
	fda.PopNoErr()
}

// stubFileOps stubs out the file operations the service performs, backed
// by an in-memory map.
type stubFileOps struct {
	*testing.Stub

	Files map[string][]byte
}

func newStubFileOps(stub *testing.Stub) *stubFileOps {
	return &stubFileOps{
		Stub:  stub,
		Files: make(map[string][]byte),
	}
}

func (fso *stubFileOps) WriteFile(name string, data []byte, perm os.FileMode) error {
	fso.AddCall("WriteFile", name, data, perm)
	fso.Files[name] = data
	return fso.NextErr()
}

func (fso *stubFileOps) ReadFile(name string) ([]byte, error) {
	fso.AddCall("ReadFile", name)
	if err := fso.NextErr(); err != nil {
		return nil, err
	}
	data, ok := fso.Files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (fso *stubFileOps) Remove(name string) error {
	fso.AddCall("Remove", name)
	delete(fso.Files, name)
	return fso.NextErr()
}

var _ systemd.FileSystemOps = (*stubFileOps)(nil)
var _ systemd.DBusAPI = (*stubDBusAPI)(nil)
