package core_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

var _ = Describe("Test units", func() {
	var (
		ctx     context.Context
		fs      afero.Fs
		dialer  *fakeDialer
		env     *core.Environment
		machine *fakeMachine
		sut     *core.SystemUnderTest
	)

	makeSUT := func(osType models.OSType, state models.MachineState) {
		machine = newFakeMachine("vm-a", state)
		var err error
		sut, err = core.NewSystemUnderTest(core.SUTConfig{
			Alias:          "VM-A",
			MachineType:    models.MachineTypeStatic,
			NetworkAddress: "vm-a.lab",
			InstallRoot:    "/opt/bespoke",
			OSType:         osType,
		}, machine)
		Expect(err).ToNot(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		fs = afero.NewMemMapFs()
		dialer = newFakeDialer()
		env = &core.Environment{
			LocalResults:   "/srv/bespoke/results",
			LocalTools:     "/srv/bespoke/tools",
			LocalTests:     "/srv/bespoke/tests",
			ServerHostname: "bespoke.lab",
			Dialer:         dialer,
			Fs:             fs,
		}
		makeSUT(models.OSTypeLinux, models.MachineStateRunning)
	})

	Describe("TestPrep", func() {
		It("should boot a stopped machine when no checkpoint is named", func() {
			// Arrange
			makeSUT(models.OSTypeLinux, models.MachineStateStopped)
			prep := core.NewTestPrep("r1", sut, env, 600, 0, "")

			// Act
			err := prep.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(prep.Status()).To(Equal(models.StatusPass))
			Expect(machine.Ops).To(ContainElement("start"))
		})

		It("should record a fatal for a machine stuck in a transient state", func() {
			// Arrange
			makeSUT(models.OSTypeLinux, models.MachineStateSuspended)
			prep := core.NewTestPrep("r1", sut, env, 600, 0, "")

			// Act
			err := prep.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(prep.Status()).To(Equal(models.StatusFatal))
			Expect(prep.Message()).To(ContainSubstring("not in a valid state for testing"))
		})
	})

	Describe("TestStep", func() {
		It("should pass the exec and sorted parameters to the interpreter", func() {
			// Arrange
			Expect(fs.MkdirAll("/srv/bespoke/tests/perf", 0o755)).To(Succeed())
			agent := dialer.agent("vm-a.lab")

			step := core.NewTestStep("Perf", sut, env, "perf", "/bin/sh", "run.sh",
				map[string]string{"-iterations": "5", "-burst": "2", "-verbose": ""}, 600, 0)

			// Act
			err := step.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(agent.Commands).To(Equal([]string{"/bin/sh"}))
			Expect(agent.Params[0]).To(Equal([]string{"run.sh", "-burst", "2", "-iterations", "5", "-verbose"}))
			Expect(agent.CopiedDirs).To(ContainElement("/srv/bespoke/tests/perf->/opt/bespoke/tests/perf"))
		})

		It("should fail when the test directory is not staged locally", func() {
			// Arrange
			step := core.NewTestStep("Perf", sut, env, "missing", "", "run.sh", nil, 600, 0)

			// Act
			err := step.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFailure(err)).To(BeTrue())
			Expect(step.Status()).To(Equal(models.StatusFail))
			Expect(step.Message()).To(ContainSubstring("does not exist"))
		})

		It("should fail on a non-zero exit code and pull results anyway", func() {
			// Arrange
			Expect(fs.MkdirAll("/srv/bespoke/tests/perf", 0o755)).To(Succeed())
			agent := dialer.agent("vm-a.lab")
			agent.exitCodes = map[string]int{"run.sh": 2}

			step := core.NewTestStep("Perf", sut, env, "perf", "", "run.sh", nil, 600, 0)

			// Act
			err := step.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFailure(err)).To(BeTrue())
			Expect(step.Message()).To(ContainSubstring(`test step "Perf" failed`))
		})
	})

	Describe("MSIInstaller", func() {
		It("should stage the package and invoke msiexec with its properties", func() {
			// Arrange
			Expect(afero.WriteFile(fs, "/srv/bespoke/tools/agent.msi", []byte("msi"), 0o644)).To(Succeed())
			agent := dialer.agent("vm-a.lab")

			makeSUT(models.OSTypeWindows, models.MachineStateRunning)
			installer := core.NewMSIInstaller(models.Tool{
				Name:        "Agent",
				InstallType: models.InstallTypeMSI,
				InstallProperties: map[string]string{
					"source_file": "agent.msi",
					"INSTALLDIR":  `C:\bespoke`,
					"AGENTPORT":   "8357",
				},
			}, sut, env, 300)

			// Act
			err := installer.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(installer.Status()).To(Equal(models.StatusPass))
			Expect(agent.CopiedFiles).To(ContainElement(
				"/srv/bespoke/tools/agent.msi->/opt/bespoke/tools/agent.msi"))
			Expect(agent.Commands).To(Equal([]string{"msiexec"}))
			Expect(agent.Params[0]).To(Equal([]string{
				"/i", "/opt/bespoke/tools/agent.msi",
				"/qn",
				"/L", installer.RemoteResults() + "/msi_install.log",
				"AGENTPORT=8357",
				`INSTALLDIR=C:\bespoke`,
			}))
		})

		It("should record a fatal when the package is missing locally", func() {
			// Arrange
			installer := core.NewMSIInstaller(models.Tool{
				Name:              "Agent",
				InstallType:       models.InstallTypeMSI,
				InstallProperties: map[string]string{"source_file": "agent.msi"},
			}, sut, env, 300)

			// Act
			err := installer.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(installer.Status()).To(Equal(models.StatusFatal))
		})

		It("should record a fatal on a non-zero msiexec exit", func() {
			// Arrange
			Expect(afero.WriteFile(fs, "/srv/bespoke/tools/agent.msi", []byte("msi"), 0o644)).To(Succeed())
			dialer.agent("vm-a.lab").exitCodes = map[string]int{"msiexec": 1603}

			installer := core.NewMSIInstaller(models.Tool{
				Name:              "Agent",
				InstallType:       models.InstallTypeMSI,
				InstallProperties: map[string]string{"source_file": "agent.msi"},
			}, sut, env, 300)

			// Act
			err := installer.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(installer.Message()).To(ContainSubstring(`failed to install tool "Agent"`))
		})
	})

	Describe("BasicInstaller", func() {
		It("should copy a single file artifact", func() {
			// Arrange
			Expect(afero.WriteFile(fs, "/srv/bespoke/tools/agent.bin", []byte("bin"), 0o644)).To(Succeed())
			agent := dialer.agent("vm-a.lab")

			installer := core.NewBasicInstaller(models.Tool{
				Name:        "Agent",
				InstallType: models.InstallTypeBasic,
				InstallProperties: map[string]string{
					"source_path": "agent.bin",
					"target_path": "/opt/bespoke/tools/agent.bin",
				},
			}, sut, env, 300)

			// Act
			err := installer.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(agent.CopiedFiles).To(ContainElement(
				"/srv/bespoke/tools/agent.bin->/opt/bespoke/tools/agent.bin"))
			Expect(agent.CopiedDirs).To(BeEmpty())
		})
	})

	Describe("PowerControl", func() {
		DescribeTable("shutdown command selection",
			func(osType models.OSType, event core.PowerEvent, wantParams []string) {
				makeSUT(osType, models.MachineStateRunning)
				agent := dialer.agent("vm-a.lab")

				power := core.NewPowerControl("r1_PowerControl", sut, env, event, false)
				Expect(power.Execute(ctx)).To(Succeed())

				Expect(agent.Commands).To(Equal([]string{"shutdown"}))
				Expect(agent.Params[0]).To(Equal(wantParams))
			},
			Entry("linux restart", models.OSTypeLinux, core.PowerEventRestart, []string{"-r", "now"}),
			Entry("linux shutdown", models.OSTypeLinux, core.PowerEventShutdown, []string{"-h", "now"}),
			Entry("windows restart", models.OSTypeWindows, core.PowerEventRestart, []string{"/r", "/t", "3"}),
			Entry("windows shutdown", models.OSTypeWindows, core.PowerEventShutdown, []string{"/h", "/t", "3"}),
		)

		It("should record a fatal for an unknown OS platform", func() {
			// Arrange
			makeSUT(models.OSType("plan9"), models.MachineStateRunning)
			power := core.NewPowerControl("r1_PowerControl", sut, env, core.PowerEventRestart, false)

			// Act
			err := power.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(power.Message()).To(ContainSubstring("unknown OS platform"))
		})

		It("should record a fatal on a non-zero shutdown exit", func() {
			// Arrange
			dialer.agent("vm-a.lab").exitCodes = map[string]int{"shutdown": 1}
			power := core.NewPowerControl("r1_PowerControl", sut, env, core.PowerEventShutdown, false)

			// Act
			err := power.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(power.Message()).To(ContainSubstring("power control event"))
		})
	})
})
