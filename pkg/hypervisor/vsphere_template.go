package hypervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/fancylads/bespoke/internal/models"
)

// VsphereTemplateMachine drives a virtual machine cloned on demand from a
// vSphere template. Setup provisions the clone, TearDown destroys it; both
// are idempotent so a stale-lock reclamation cannot double-provision.
type VsphereTemplateMachine struct {
	client   *govmomi.Client
	host     string
	template string
	name     string
	finder   *vsphereFinder

	mu    sync.Mutex
	clone *object.VirtualMachine
}

// NewVsphereTemplateMachine creates a driver that clones the given template
// into a VM named name when Setup is called.
func NewVsphereTemplateMachine(ctx context.Context, client *govmomi.Client, host, template, name string) (*VsphereTemplateMachine, error) {
	finder, err := newVsphereFinder(ctx, client.Client)
	if err != nil {
		return nil, err
	}

	if _, err := finder.vm(ctx, template); err != nil {
		return nil, err
	}

	return &VsphereTemplateMachine{
		client:   client,
		host:     host,
		template: template,
		name:     name,
		finder:   finder,
	}, nil
}

func (m *VsphereTemplateMachine) Host() string { return m.host }
func (m *VsphereTemplateMachine) Name() string { return m.name }

func (m *VsphereTemplateMachine) vm(ctx context.Context) (*object.VirtualMachine, error) {
	m.mu.Lock()
	clone := m.clone
	m.mu.Unlock()

	if clone == nil {
		return nil, fmt.Errorf("template machine '%s' has not been provisioned", m.name)
	}
	return clone, nil
}

// Setup clones the template into a fresh instance. Calling Setup on an
// already provisioned machine is a no-op.
func (m *VsphereTemplateMachine) Setup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clone != nil {
		return nil
	}

	src, err := m.finder.vm(ctx, m.template)
	if err != nil {
		return err
	}

	folder, pool, err := m.finder.placement(ctx)
	if err != nil {
		return err
	}

	poolRef := pool.Reference()
	spec := types.VirtualMachineCloneSpec{
		Location: types.VirtualMachineRelocateSpec{Pool: &poolRef},
		PowerOn:  false,
	}

	task, err := src.Clone(ctx, folder, m.name, spec)
	if err != nil {
		return fmt.Errorf("failed to clone template '%s' to '%s': %w", m.template, m.name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("clone of template '%s' to '%s' failed: %w", m.template, m.name, err)
	}

	clone, err := m.finder.vm(ctx, m.name)
	if err != nil {
		return err
	}
	m.clone = clone

	return nil
}

// TearDown powers off and destroys the provisioned clone. A machine that
// was never provisioned tears down as a no-op.
func (m *VsphereTemplateMachine) TearDown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clone == nil {
		return nil
	}

	if err := m.destroyClone(ctx, m.clone); err != nil {
		return err
	}
	m.clone = nil

	return nil
}

func (m *VsphereTemplateMachine) destroyClone(ctx context.Context, vm *object.VirtualMachine) error {
	state, err := vm.PowerState(ctx)
	if err != nil {
		return fmt.Errorf("failed to query power state of '%s': %w", m.name, err)
	}

	if state == types.VirtualMachinePowerStatePoweredOn {
		task, err := vm.PowerOff(ctx)
		if err != nil {
			return fmt.Errorf("failed to power off '%s': %w", m.name, err)
		}
		if err := task.Wait(ctx); err != nil {
			return fmt.Errorf("power off of '%s' failed: %w", m.name, err)
		}
	}

	task, err := vm.Destroy(ctx)
	if err != nil {
		return fmt.Errorf("failed to destroy '%s': %w", m.name, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("destroy of '%s' failed: %w", m.name, err)
	}

	return nil
}

func (m *VsphereTemplateMachine) CurrentState(ctx context.Context) (models.MachineState, error) {
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

func (m *VsphereTemplateMachine) Start(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.PowerOn(ctx)
	if err != nil {
		return fmt.Errorf("failed to power on '%s': %w", m.name, err)
	}
	return task.Wait(ctx)
}

func (m *VsphereTemplateMachine) Stop(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.PowerOff(ctx)
	if err != nil {
		return fmt.Errorf("failed to power off '%s': %w", m.name, err)
	}
	return task.Wait(ctx)
}

func (m *VsphereTemplateMachine) Shutdown(ctx context.Context, wait bool) error {
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

func (m *VsphereTemplateMachine) Restart(ctx context.Context) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	if err := vm.RebootGuest(ctx); err != nil {
		return fmt.Errorf("failed to reboot guest on '%s': %w", m.name, err)
	}
	return nil
}

func (m *VsphereTemplateMachine) ApplySnapshot(ctx context.Context, name string) error {
	vm, err := m.vm(ctx)
	if err != nil {
		return err
	}

	task, err := vm.RevertToSnapshot(ctx, name, true)
	if err != nil {
		return fmt.Errorf("failed to revert '%s' to snapshot '%s': %w", m.name, name, err)
	}
	return task.Wait(ctx)
}

// Destroy forcibly removes the provisioned clone. The execution engine never
// calls this directly; clone teardown happens through checkin.
func (m *VsphereTemplateMachine) Destroy(ctx context.Context) error {
	return m.TearDown(ctx)
}
