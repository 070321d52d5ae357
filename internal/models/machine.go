package models

// MachineState represents the current power/activity state of a managed
// virtual machine as reported by the hypervisor driver.
type MachineState string

const (
	MachineStateBad          MachineState = "Bad"
	MachineStateRunning      MachineState = "Running"
	MachineStateStopped      MachineState = "Stopped"
	MachineStatePaused       MachineState = "Paused"
	MachineStateSuspended    MachineState = "Suspended"
	MachineStateStarting     MachineState = "Starting"
	MachineStateSnapshotting MachineState = "Snapshotting"
	MachineStateSaving       MachineState = "Saving"
	MachineStateStopping     MachineState = "Stopping"
	MachineStatePausing      MachineState = "Pausing"
	MachineStateResuming     MachineState = "Resuming"
)

// MachineType distinguishes statically provisioned machines from machines
// cloned per-use from a template.
type MachineType string

const (
	MachineTypeStatic   MachineType = "static"
	MachineTypeTemplate MachineType = "template"
)

// Valid reports whether the machine type is one of the supported kinds.
func (t MachineType) Valid() bool {
	return t == MachineTypeStatic || t == MachineTypeTemplate
}

// OSType identifies the guest operating system family, which decides the
// power-control command set used against the machine.
type OSType string

const (
	OSTypeLinux   OSType = "Linux"
	OSTypeWindows OSType = "Windows"
)
