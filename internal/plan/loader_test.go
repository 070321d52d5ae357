package plan_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/plan"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// nullMachine satisfies hypervisor.VirtualMachine for loader tests that
// never execute anything.
type nullMachine struct{ name string }

func (m *nullMachine) Host() string { return "esx-01.lab" }
func (m *nullMachine) Name() string { return m.name }
func (m *nullMachine) CurrentState(context.Context) (models.MachineState, error) {
	return models.MachineStateRunning, nil
}
func (m *nullMachine) Setup(context.Context) error                 { return nil }
func (m *nullMachine) TearDown(context.Context) error              { return nil }
func (m *nullMachine) Start(context.Context) error                 { return nil }
func (m *nullMachine) Stop(context.Context) error                  { return nil }
func (m *nullMachine) Shutdown(context.Context, bool) error        { return nil }
func (m *nullMachine) Restart(context.Context) error               { return nil }
func (m *nullMachine) ApplySnapshot(context.Context, string) error { return nil }
func (m *nullMachine) Destroy(context.Context) error               { return nil }

// mapLookup is an in-memory ResourceLookup.
type mapLookup map[string]*core.SystemUnderTest

func (m mapLookup) Get(alias string) (*core.SystemUnderTest, error) {
	sut, ok := m[alias]
	if !ok {
		return nil, bkErrors.NewResourceNotFoundError("resource", alias)
	}
	return sut, nil
}

var _ = Describe("Loader", func() {
	var (
		fs        afero.Fs
		loader    *plan.Loader
		env       *core.Environment
		resources mapLookup
	)

	write := func(path, content string) {
		Expect(afero.WriteFile(fs, path, []byte(content), 0o644)).To(Succeed())
	}

	makeSUT := func(alias string) *core.SystemUnderTest {
		sut, err := core.NewSystemUnderTest(core.SUTConfig{
			Alias:          alias,
			MachineType:    models.MachineTypeStatic,
			NetworkAddress: alias + ".lab",
			InstallRoot:    "/opt/bespoke",
			OSType:         models.OSTypeLinux,
		}, &nullMachine{name: alias})
		Expect(err).ToNot(HaveOccurred())
		return sut
	}

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		loader = plan.NewLoader(fs)
		env = &core.Environment{
			LocalResults:   "/srv/bespoke/results",
			LocalTools:     "/srv/bespoke/tools",
			LocalTests:     "/srv/bespoke/tests",
			ServerHostname: "bespoke.lab",
		}
		resources = mapLookup{"VM-A": makeSUT("VM-A"), "VM-B": makeSUT("VM-B")}
	})

	Describe("LoadGlobal", func() {
		It("should load a valid global config", func() {
			// Arrange
			write("/etc/bespoke/global.yaml", `
server_hostname: bespoke.lab
tests_path: /srv/bespoke/tests
tools_path: /srv/bespoke/tools
results_path: /srv/bespoke/results
resource_configs:
  - /etc/bespoke/resources.yaml
`)

			// Act
			global, err := loader.LoadGlobal("/etc/bespoke/global.yaml")

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(global.ServerHostname).To(Equal("bespoke.lab"))
			Expect(global.ResourceConfigs).To(HaveLen(1))
		})

		It("should reject a config missing required fields", func() {
			// Arrange
			write("/etc/bespoke/global.yaml", `server_hostname: bespoke.lab`)

			// Act
			_, err := loader.LoadGlobal("/etc/bespoke/global.yaml")

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("/etc/bespoke/global.yaml"))
		})

		It("should name the file when it does not exist", func() {
			// Act
			_, err := loader.LoadGlobal("/etc/bespoke/missing.yaml")

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing.yaml"))
		})
	})

	Describe("LoadResources", func() {
		It("should reject a duplicate alias across hosts", func() {
			// Arrange
			write("/etc/bespoke/resources.yaml", `
vsphere_hosts:
  - host: esx-01.lab
    username: root
    password: secret
    machines:
      - alias: VM-A
        name: bespoke-a
        network_address: vm-a.lab
        install_root: /opt/bespoke
        os_type: Linux
  - host: esx-02.lab
    username: root
    password: secret
    templates:
      - alias: VM-A
        template: rhel9-template
        network_address: vm-tpl.lab
        install_root: /opt/bespoke
        os_type: Linux
`)

			// Act
			_, err := loader.LoadResources("/etc/bespoke/resources.yaml")

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("used more than once"))
		})

		It("should load machines and templates with their checkpoints", func() {
			// Arrange
			write("/etc/bespoke/resources.yaml", `
vsphere_hosts:
  - host: esx-01.lab
    username: root
    password: secret
    insecure: true
    machines:
      - alias: VM-A
        name: bespoke-a
        network_address: vm-a.lab
        install_root: /opt/bespoke
        os_type: Linux
        os_arch: x86_64
        checkpoints:
          Clean: []
          WithAgent: [Agent]
    templates:
      - alias: TPL-WIN
        template: win2022-template
        network_address: vm-win.lab
        install_root: 'C:\bespoke'
        os_type: Windows
`)

			// Act
			resourcesFile, err := loader.LoadResources("/etc/bespoke/resources.yaml")

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(resourcesFile.VsphereHosts).To(HaveLen(1))
			host := resourcesFile.VsphereHosts[0]
			Expect(host.Machines[0].CheckPoints).To(HaveKey("WithAgent"))
			Expect(host.Templates[0].OSType).To(Equal("Windows"))
		})
	})

	Describe("LoadTools", func() {
		It("should split tools and builds into their catalogs", func() {
			// Arrange
			write("/etc/bespoke/tools.yaml", `
tools:
  - name: Agent
    version: "1.2"
    os_type: Linux
    source:
      type: local
      copy_once: true
      properties:
        source_path: /mnt/share/agent
    install:
      type: basic_install
      properties:
        source_path: agent
        target_path: /opt/bespoke/tools/agent
builds:
  - name: Product
    os_type: Windows
    install:
      type: msi_install
      properties:
        source_file: product.msi
`)
			tools := map[string]models.Tool{}
			builds := map[string]models.Tool{}

			// Act
			err := loader.LoadTools("/etc/bespoke/tools.yaml", tools, builds)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(tools["Agent"].SourceType).To(Equal(models.SourceTypeLocal))
			Expect(tools["Agent"].SourceCopyOnce).To(BeTrue())
			Expect(tools["Agent"].Build).To(BeFalse())
			Expect(builds["Product"].InstallType).To(Equal(models.InstallTypeMSI))
			Expect(builds["Product"].Build).To(BeTrue())
		})

		It("should default a missing source to no_source", func() {
			// Arrange
			write("/etc/bespoke/tools.yaml", `
tools:
  - name: Agent
    os_type: Linux
    install:
      type: no_install
`)
			tools := map[string]models.Tool{}

			// Act
			err := loader.LoadTools("/etc/bespoke/tools.yaml", tools, nil)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(tools["Agent"].SourceType).To(Equal(models.SourceTypeNone))
		})

		It("should reject an unknown install type", func() {
			// Arrange
			write("/etc/bespoke/tools.yaml", `
tools:
  - name: Agent
    os_type: Linux
    install:
      type: registry_install
`)

			// Act
			err := loader.LoadTools("/etc/bespoke/tools.yaml", map[string]models.Tool{}, nil)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
		})

		It("should reject a duplicate tool name", func() {
			// Arrange
			write("/etc/bespoke/tools.yaml", `
tools:
  - name: Agent
    os_type: Linux
    install: {type: no_install}
`)
			tools := map[string]models.Tool{"Agent": {Name: "Agent"}}

			// Act
			err := loader.LoadTools("/etc/bespoke/tools.yaml", tools, nil)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("must be unique"))
		})
	})

	Describe("BuildTestPlan", func() {
		tools := map[string]models.Tool{
			"Agent": {Name: "Agent", InstallType: models.InstallTypeBasic,
				InstallProperties: map[string]string{"source_path": "agent", "target_path": "/opt/bespoke/tools/agent"}},
		}
		builds := map[string]models.Tool{
			"Product": {Name: "Product", InstallType: models.InstallTypeBasic, Build: true,
				InstallProperties: map[string]string{"source_path": "product", "target_path": "/opt/bespoke/builds/product"}},
		}

		It("should assemble the queue in declaration order", func() {
			// Arrange
			write("/etc/bespoke/plans/nightly.yaml", `
name: nightly
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        checkpoint: Clean
        timeout: 600
        tools: [Agent]
        builds: [Product]
    steps:
      - step:
          description: Run
          resource_id: r1
          directory: smoke
          interpreter: /bin/sh
          executable: run.sh
          timeout: 600
      - refresh_resource:
          resource_id: r1
      - step:
          description: Verify
          resource_id: r1
          directory: verify
          executable: verify.sh
          timeout: 300
`)

			// Act
			testPlan, err := loader.BuildTestPlan("/etc/bespoke/plans/nightly.yaml", env, resources, tools, builds)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(testPlan.Name()).To(Equal("nightly"))

			cases := testPlan.TestCases()
			Expect(cases).To(HaveLen(1))
			units := cases[0].Units()
			names := make([]string, 0, len(units))
			for _, unit := range units {
				names = append(names, unit.Name())
			}
			Expect(names).To(Equal([]string{"r1", "Agent_Installer", "Product_Installer", "Run", "r1", "Verify"}))
		})

		It("should reject an unknown machine reference", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-Z
        timeout: 600
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(`"VM-Z"`))
			Expect(err.Error()).To(ContainSubstring("bad.yaml"))
		})

		It("should reject an unknown tool reference", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
        tools: [Debugger]
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(`"Debugger"`))
		})

		It("should reject a tool used twice in one test case", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
        tools: [Agent, Agent]
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("more than once"))
		})

		It("should reject a duplicate resource id via the test case builder", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
      - resource_id: r1
        machine: VM-B
        timeout: 600
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("already in use"))
		})

		It("should reject duplicate test case names", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-B
        timeout: 600
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("duplicate test case name"))
		})

		It("should reject an ambiguous steps entry", func() {
			// Arrange
			write("/etc/bespoke/plans/bad.yaml", `
name: bad
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
    steps:
      - step:
          description: Run
          resource_id: r1
          directory: smoke
          executable: run.sh
          timeout: 600
        refresh_resource:
          resource_id: r1
`)

			// Act
			_, err := loader.BuildTestPlan("/etc/bespoke/plans/bad.yaml", env, resources, tools, builds)

			// Assert
			Expect(bkErrors.IsValidationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("both a step and a resource refresh"))
		})
	})

	Describe("BuildTestRun", func() {
		It("should assemble plans in order", func() {
			// Arrange
			write("/etc/bespoke/run.yaml", `
name: release-42
description: nightly regression pass
test_plans:
  - /etc/bespoke/plans/first.yaml
  - /etc/bespoke/plans/second.yaml
`)
			planYAML := `
name: %s
test_cases:
  - name: smoke
    prepare_machines:
      - resource_id: r1
        machine: VM-A
        timeout: 600
`
			write("/etc/bespoke/plans/first.yaml", fmt.Sprintf(planYAML, "first"))
			write("/etc/bespoke/plans/second.yaml", fmt.Sprintf(planYAML, "second"))

			runFile, err := loader.LoadTestRun("/etc/bespoke/run.yaml")
			Expect(err).ToNot(HaveOccurred())

			// Act
			testRun, err := loader.BuildTestRun(runFile, env, resources, nil, nil)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(testRun.Name()).To(Equal("release-42"))
			plans := testRun.TestPlans()
			Expect(plans).To(HaveLen(2))
			Expect(plans[0].Name()).To(Equal("first"))
			Expect(plans[1].Name()).To(Equal("second"))
		})
	})
})
