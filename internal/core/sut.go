package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/hypervisor"
)

// SUTConfig describes a system under test as loaded from configuration.
type SUTConfig struct {
	Alias          string
	MachineType    models.MachineType
	NetworkAddress string
	InstallRoot    string
	Credentials    map[string]string
	OSType         models.OSType
	OSLabel        string
	OSArch         string
	Role           string
	CheckPoints    map[string][]string
	Tools          []string
}

// SystemUnderTest wraps a hypervisor machine with identity and a
// time-bounded checkout lock. The lock is cooperative: a caller that
// crashes while holding it does not deadlock the system, the next
// checkout after expiry reclaims the machine.
type SystemUnderTest struct {
	cfg     SUTConfig
	machine hypervisor.VirtualMachine

	mu             sync.Mutex
	inUse          bool
	lockExpiration time.Time

	// now is swapped out by tests exercising stale-lock reclamation.
	now func() time.Time
}

func NewSystemUnderTest(cfg SUTConfig, machine hypervisor.VirtualMachine) (*SystemUnderTest, error) {
	if !cfg.MachineType.Valid() {
		return nil, bkErrors.NewValidationError("machine_type",
			"the machine type %q is not supported", cfg.MachineType)
	}

	return &SystemUnderTest{
		cfg:            cfg,
		machine:        machine,
		lockExpiration: time.Now(),
		now:            time.Now,
	}, nil
}

// Clone returns a copy of the SUT's configuration bound to a fresh
// machine handle, with a fresh unheld lock. Template resources are handed
// out this way so test cases never share mutable state.
func (s *SystemUnderTest) Clone(machine hypervisor.VirtualMachine) *SystemUnderTest {
	cfg := s.cfg
	cfg.Credentials = copyMap(s.cfg.Credentials)
	cfg.CheckPoints = make(map[string][]string, len(s.cfg.CheckPoints))
	for name, tools := range s.cfg.CheckPoints {
		cfg.CheckPoints[name] = append([]string(nil), tools...)
	}
	cfg.Tools = append([]string(nil), s.cfg.Tools...)

	return &SystemUnderTest{
		cfg:            cfg,
		machine:        machine,
		lockExpiration: time.Now(),
		now:            time.Now,
	}
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *SystemUnderTest) Alias() string                    { return s.cfg.Alias }
func (s *SystemUnderTest) MachineType() models.MachineType  { return s.cfg.MachineType }
func (s *SystemUnderTest) NetworkAddress() string           { return s.cfg.NetworkAddress }
func (s *SystemUnderTest) InstallRoot() string              { return s.cfg.InstallRoot }
func (s *SystemUnderTest) Credentials() map[string]string   { return s.cfg.Credentials }
func (s *SystemUnderTest) OSType() models.OSType            { return s.cfg.OSType }
func (s *SystemUnderTest) OSLabel() string                  { return s.cfg.OSLabel }
func (s *SystemUnderTest) OSArch() string                   { return s.cfg.OSArch }
func (s *SystemUnderTest) Role() string                     { return s.cfg.Role }
func (s *SystemUnderTest) CheckPoints() map[string][]string { return s.cfg.CheckPoints }
func (s *SystemUnderTest) Tools() []string                  { return s.cfg.Tools }

// InUse reports whether the SUT is currently checked out.
func (s *SystemUnderTest) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Checkout reserves the SUT for timeout seconds. An expired lock is
// reclaimed with an implicit checkin first. On success the machine's
// Setup runs; a Setup failure rolls the lock back so the SUT is not left
// reserved by a test case that can never use it.
func (s *SystemUnderTest) Checkout(ctx context.Context, timeout int) error {
	if timeout <= 0 || timeout > MaxCheckoutTime {
		return bkErrors.NewRangeError(timeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse {
		if s.now().Before(s.lockExpiration) {
			return bkErrors.NewBusyError(s.cfg.Alias)
		}
		// Stale lock, force a checkin before granting the new one.
		if err := s.checkinLocked(ctx); err != nil {
			return err
		}
	}

	s.inUse = true
	s.lockExpiration = s.now().Add(time.Duration(timeout) * time.Second)

	if err := s.machine.Setup(ctx); err != nil {
		s.inUse = false
		s.lockExpiration = s.now()
		return fmt.Errorf("failed to provision %q: %w", s.cfg.Alias, err)
	}

	return nil
}

// UpdateLockTimeout resets the lock expiration to now plus timeout
// seconds. The reset is absolute, not additive.
func (s *SystemUnderTest) UpdateLockTimeout(timeout int) error {
	if timeout <= 0 || timeout > MaxCheckoutTime {
		return bkErrors.NewRangeError(timeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inUse {
		return bkErrors.NewNotCheckedOutError(s.cfg.Alias)
	}

	s.lockExpiration = s.now().Add(time.Duration(timeout) * time.Second)
	return nil
}

// Checkin releases the lock and tears the machine down. Checking in a SUT
// that is not checked out is a no-op.
func (s *SystemUnderTest) Checkin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inUse {
		return nil
	}
	return s.checkinLocked(ctx)
}

func (s *SystemUnderTest) checkinLocked(ctx context.Context) error {
	s.inUse = false
	s.lockExpiration = s.now()

	if err := s.machine.TearDown(ctx); err != nil {
		return fmt.Errorf("failed to tear down %q: %w", s.cfg.Alias, err)
	}
	return nil
}

func (s *SystemUnderTest) CurrentState(ctx context.Context) (models.MachineState, error) {
	state, err := s.machine.CurrentState(ctx)
	if err != nil {
		return models.MachineStateBad, s.wrap(err)
	}
	return state, nil
}

func (s *SystemUnderTest) Start(ctx context.Context) error {
	return s.wrap(s.machine.Start(ctx))
}

func (s *SystemUnderTest) Stop(ctx context.Context) error {
	return s.wrap(s.machine.Stop(ctx))
}

func (s *SystemUnderTest) Restart(ctx context.Context) error {
	return s.wrap(s.machine.Restart(ctx))
}

func (s *SystemUnderTest) Shutdown(ctx context.Context, wait bool) error {
	return s.wrap(s.machine.Shutdown(ctx, wait))
}

func (s *SystemUnderTest) ApplySnapshot(ctx context.Context, name string) error {
	return s.wrap(s.machine.ApplySnapshot(ctx, name))
}

// Destroy is exposed for completeness; the orchestration layer only ever
// destroys template machines through Checkin's TearDown.
func (s *SystemUnderTest) Destroy(ctx context.Context) error {
	return s.wrap(s.machine.Destroy(ctx))
}

func (s *SystemUnderTest) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("host %q, virtual machine %q: %w", s.machine.Host(), s.machine.Name(), err)
}
