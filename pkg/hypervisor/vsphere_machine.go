package hypervisor

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// VsphereMachine drives a statically provisioned virtual machine on a
// vSphere host. The machine is expected to already exist in the inventory.
type VsphereMachine struct {
	client *govmomi.Client
	host   string
	name   string
	finder *vsphereFinder
}

// NewVsphereMachine creates a driver for an existing vSphere VM.
func NewVsphereMachine(ctx context.Context, client *govmomi.Client, host, name string) (*VsphereMachine, error) {
	finder, err := newVsphereFinder(ctx, client.Client)
	if err != nil {
		return nil, err
	}

	// Resolve eagerly so a bad machine name fails at load time, not
	// mid-run.
	if _, err := finder.vm(ctx, name); err != nil {
		return nil, err
	}

	return &VsphereMachine{client: client, host: host, name: name, finder: finder}, nil
}

func (m *VsphereMachine) Host() string { return m.host }
func (m *VsphereMachine) Name() string { return m.name }

func (m *VsphereMachine) vm(ctx context.Context) (*object.VirtualMachine, error) {
	return m.finder.vm(ctx, m.name)
}

func (m *VsphereMachine) CurrentState(ctx context.Context) (models.MachineState, error) {
	vm, err := m.vm(ctx)
	if err != nil {
		return models.MachineStateBad, err
	}

	state, err := vm.PowerState(ctx)
	if err != nil {
		return models.MachineStateBad, fmt.Errorf("failed to query power state of '%s': %w", m.name, err)
	}

	return machineState(state), nil
}

// Setup is a no-op: static machines are provisioned out of band.
func (m *VsphereMachine) Setup(ctx context.Context) error { return nil }

// TearDown is a no-op: static machines outlive any single checkout.
func (m *VsphereMachine) TearDown(ctx context.Context) error { return nil }

func (m *VsphereMachine) Start(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.PowerOn(ctx)
	if err != nil {
		return fmt.Errorf("failed to power on '%s': %w", m.name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("power on of '%s' failed: %w", m.name, err)
	}
	return nil
}

func (m *VsphereMachine) Stop(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.PowerOff(ctx)
	if err != nil {
		return fmt.Errorf("failed to power off '%s': %w", m.name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("power off of '%s' failed: %w", m.name, err)
	}
	return nil
}

func (m *VsphereMachine) Shutdown(ctx context.Context, wait bool) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	if err := vm.ShutdownGuest(ctx); err != nil {
		return fmt.Errorf("failed to shut down guest on '%s': %w", m.name, err)
	}

	if wait {
		if err := vm.WaitForPowerState(ctx, types.VirtualMachinePowerStatePoweredOff); err != nil {
			return fmt.Errorf("waiting for '%s' to power off: %w", m.name, err)
		}
	}
	return nil
}

func (m *VsphereMachine) Restart(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	if err := vm.RebootGuest(ctx); err != nil {
		return fmt.Errorf("failed to reboot guest on '%s': %w", m.name, err)
	}
	return nil
}

func (m *VsphereMachine) ApplySnapshot(ctx context.Context, name string) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.RevertToSnapshot(ctx, name, true)
	if err != nil {
		return fmt.Errorf("failed to revert '%s' to snapshot '%s': %w", m.name, name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("snapshot revert of '%s' to '%s' failed: %w", m.name, name, err)
	}
	return nil
}

// Destroy is not supported for statically provisioned machines.
func (m *VsphereMachine) Destroy(ctx context.Context) error {
	return bkErrors.NewNotSupportedError("destroy")
}

func machineState(state types.VirtualMachinePowerState) models.MachineState {
	switch state {
	case types.VirtualMachinePowerStatePoweredOn:
		return models.MachineStateRunning
	case types.VirtualMachinePowerStatePoweredOff:
		return models.MachineStateStopped
	case types.VirtualMachinePowerStateSuspended:
		return models.MachineStateSuspended
	default:
		return models.MachineStateBad
	}
}
