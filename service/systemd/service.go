// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"os"
	"path"
	"reflect"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/noderig/noderig/service/common"
)

const (
	// EtcSystemdDir is where unit files are written.
	EtcSystemdDir = "/etc/systemd/system"
)

var logger = loggo.GetLogger("noderig.service.systemd")

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return util.IsRunningSystemd()
}

// DBusAPI is the subset of the go-systemd dbus connection the Service
// needs; it exists so tests can substitute a stub.
type DBusAPI interface {
	Close()
	ListUnits() ([]dbus.UnitStatus, error)
	StartUnit(string, string, chan<- string) (int, error)
	StopUnit(string, string, chan<- string) (int, error)
	LinkUnitFiles([]string, bool, bool) ([]dbus.LinkUnitFileChange, error)
	EnableUnitFiles([]string, bool, bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFiles([]string, bool) ([]dbus.DisableUnitFileChange, error)
	Reload() error
}

// DBusAPIFactory produces a connection to systemd's dbus API.
type DBusAPIFactory = func() (DBusAPI, error)

var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

// FileSystemOps is the subset of file operations the Service performs,
// substituted in tests.
type FileSystemOps interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
}

type fileSystemOps struct{}

func (fileSystemOps) WriteFile(name string, data []byte, perm os.FileMode) error {
	return utils.AtomicWriteFile(name, data, perm)
}

func (fileSystemOps) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fileSystemOps) Remove(name string) error {
	return os.Remove(name)
}

// Service provides visibility into and control over a systemd service.
type Service struct {
	// SvcName is the service name, without the unit suffix.
	SvcName string

	// SvcConf is the target configuration of the service.
	SvcConf common.Conf

	// UnitName is the service name with the ".service" suffix.
	UnitName string

	// DirName is the directory the unit file is written under.
	DirName string

	fileOps FileSystemOps
	newDBus DBusAPIFactory
}

// NewServiceWithDefaults returns a new systemd service reference populated
// with sensible defaults.
func NewServiceWithDefaults(name string, conf common.Conf) (*Service, error) {
	svc, err := NewService(name, conf, EtcSystemdDir, NewDBusAPI, fileSystemOps{})
	return svc, errors.Trace(err)
}

// NewService returns a new reference to an object that implements the
// Service interface for systemd.
func NewService(
	name string, conf common.Conf, dataDir string, newDBus DBusAPIFactory, fileOps FileSystemOps,
) (*Service, error) {
	if name == "" {
		return nil, errors.NotValidf("missing service name")
	}
	if !conf.IsZero() {
		conf = normalize(conf)
		if err := validate(conf); err != nil {
			return nil, errors.Annotatef(err, "invalid conf for service %q", name)
		}
	}
	return &Service{
		SvcName:  name,
		SvcConf:  conf,
		UnitName: name + ".service",
		DirName:  dataDir,
		fileOps:  fileOps,
		newDBus:  newDBus,
	}, nil
}

func (s *Service) errorf(err error, msg string, args ...interface{}) error {
	msg += " for service %q"
	args = append(args, s.SvcName)
	if err == nil {
		err = errors.Errorf(msg, args...)
	} else {
		err = errors.Annotatef(err, msg, args...)
	}
	err.(*errors.Err).SetLocation(1)
	logger.Errorf("%v", err)
	logger.Debugf("stack trace:\n%s", errors.ErrorStack(err))
	return err
}

// Name implements service.Service.
func (s *Service) Name() string {
	return s.SvcName
}

// Conf implements service.Service.
func (s *Service) Conf() common.Conf {
	return s.SvcConf
}

func (s *Service) confPath() string {
	return path.Join(s.DirName, s.UnitName)
}

// Installed implements Service: the unit file exists on disk.
func (s *Service) Installed() (bool, error) {
	_, err := s.fileOps.ReadFile(s.confPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, s.errorf(err, "failed to read unit file")
	}
	return true, nil
}

// Exists implements Service: the service is installed with the expected
// configuration.
func (s *Service) Exists() (bool, error) {
	if s.SvcConf.IsZero() {
		return false, s.errorf(nil, "no conf expected")
	}
	installed, err := s.Installed()
	if err != nil || !installed {
		return false, errors.Trace(err)
	}
	same, err := s.check()
	if err != nil {
		return false, errors.Trace(err)
	}
	return same, nil
}

func (s *Service) check() (bool, error) {
	data, err := s.fileOps.ReadFile(s.confPath())
	if err != nil {
		return false, s.errorf(err, "failed to read unit file")
	}
	conf, err := deserialize(data)
	if err != nil {
		return false, s.errorf(err, "failed to deserialize conf")
	}
	return reflect.DeepEqual(s.SvcConf, conf), nil
}

func (s *Service) newConn() (DBusAPI, error) {
	conn, err := s.newDBus()
	if err != nil {
		logger.Errorf("failed to connect to dbus for service %q: %v", s.SvcName, err)
	}
	return conn, err
}

var newChan = func() chan string {
	return make(chan string)
}

// Running implements Service.
func (s *Service) Running() (bool, error) {
	conn, err := s.newConn()
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	units, err := conn.ListUnits()
	if err != nil {
		return false, s.errorf(err, "failed to query services from dbus")
	}

	for _, u := range units {
		if u.Name == s.UnitName {
			running := u.LoadState == "loaded" && u.ActiveState == "active"
			return running, nil
		}
	}
	return false, nil
}

// Start implements Service.
func (s *Service) Start() error {
	err := s.start()
	if errors.Is(err, errors.AlreadyExists) {
		logger.Debugf("service %q already running", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("service %q failed to start: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully started", s.Name())
	return nil
}

func (s *Service) start() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if !installed {
		return errors.NotFoundf("service " + s.SvcName)
	}
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		return errors.AlreadyExistsf("running service %s", s.SvcName)
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err = conn.StartUnit(s.UnitName, "fail", statusCh); err != nil {
		return s.errorf(err, "dbus start request failed")
	}
	return errors.Trace(s.wait("start", statusCh))
}

func (s *Service) wait(op string, statusCh chan string) error {
	status := <-statusCh
	if status != "done" {
		return s.errorf(nil, "failed to %s (API status %q)", op, status)
	}
	return nil
}

// Stop implements Service.
func (s *Service) Stop() error {
	err := s.stop()
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("service %q not running", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("service %q failed to stop: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully stopped", s.Name())
	return nil
}

func (s *Service) stop() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		return errors.NotFoundf("running service %s", s.SvcName)
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err = conn.StopUnit(s.UnitName, "fail", statusCh); err != nil {
		return s.errorf(err, "dbus stop request failed")
	}
	return errors.Trace(s.wait("stop", statusCh))
}

// Remove implements Service.
func (s *Service) Remove() error {
	err := s.remove()
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("service %q not installed", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("failed to remove service %q: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully removed", s.Name())
	return nil
}

func (s *Service) remove() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if !installed {
		return errors.NotFoundf("service %s", s.SvcName)
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	if _, err = conn.DisableUnitFiles([]string{s.UnitName}, false); err != nil {
		return s.errorf(err, "dbus disable request failed")
	}
	if err := conn.Reload(); err != nil {
		return s.errorf(err, "dbus post-disable daemon reload request failed")
	}
	if err := s.fileOps.Remove(s.confPath()); err != nil {
		return s.errorf(err, "failed to delete unit file")
	}
	return nil
}

// Install implements Service: the unit file is written, linked and enabled,
// replacing any stale copy already present.
func (s *Service) Install() error {
	if s.SvcConf.IsZero() {
		return s.errorf(nil, "missing conf")
	}

	err := s.install()
	if errors.Is(err, errors.AlreadyExists) {
		logger.Debugf("service %q already installed", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("failed to install service %q: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully installed", s.Name())
	return nil
}

func (s *Service) install() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if installed {
		same, err := s.check()
		if err != nil {
			return errors.Trace(err)
		}
		if same {
			return errors.AlreadyExistsf("service %s", s.SvcName)
		}
		// An old copy may be running so stop it first.
		if err := s.Stop(); err != nil {
			return errors.Annotate(err, "systemd: could not stop old service")
		}
		if err := s.Remove(); err != nil {
			return errors.Annotate(err, "systemd: could not remove old service")
		}
	}
	return s.WriteService()
}

// WriteService writes a systemd unit file for the service and ensures that
// it is linked and enabled by systemd.
func (s *Service) WriteService() error {
	data, err := serialize(s.SvcConf)
	if err != nil {
		return s.errorf(err, "failed to serialize conf")
	}
	filename := s.confPath()
	if err := s.fileOps.WriteFile(filename, data, 0644); err != nil {
		return s.errorf(err, "failed to write unit file %q", filename)
	}

	// If systemd is not the running init system, then do not attempt to
	// use it for linking unit files.
	if !IsRunning() {
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	const runtime, force = false, true
	if _, err = conn.LinkUnitFiles([]string{filename}, runtime, force); err != nil {
		return s.errorf(err, "dbus link request failed")
	}
	if err = conn.Reload(); err != nil {
		return s.errorf(err, "dbus post-link daemon reload request failed")
	}
	if _, _, err = conn.EnableUnitFiles([]string{filename}, runtime, force); err != nil {
		return s.errorf(err, "dbus enable request failed")
	}
	return nil
}
