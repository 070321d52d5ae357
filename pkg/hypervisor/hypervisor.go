package hypervisor

import (
	"context"

	"github.com/fancylads/bespoke/internal/models"
)

// VirtualMachine abstracts a hypervisor-controlled machine. Implementations
// vary by provider; the execution engine only ever talks to this interface.
type VirtualMachine interface {
	// Host returns the hypervisor host that owns the machine.
	Host() string
	// Name returns the machine name on the hypervisor.
	Name() string

	// CurrentState reports the machine's power/activity state.
	CurrentState(ctx context.Context) (models.MachineState, error)

	// Setup prepares the machine for use. For statically provisioned
	// machines this is a no-op; for template-backed machines it provisions
	// a fresh instance and must be idempotent.
	Setup(ctx context.Context) error
	// TearDown releases whatever Setup provisioned. No-op for static
	// machines; destroys the provisioned clone for template machines.
	TearDown(ctx context.Context) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Shutdown requests a guest-level shutdown. If wait is set the call
	// blocks until the machine reaches the stopped state.
	Shutdown(ctx context.Context, wait bool) error
	Restart(ctx context.Context) error

	// ApplySnapshot reverts the machine to the named snapshot.
	ApplySnapshot(ctx context.Context, name string) error

	// Destroy removes the machine from the hypervisor. Drivers may return
	// NotSupportedError, e.g. for statically provisioned machines.
	Destroy(ctx context.Context) error
}
