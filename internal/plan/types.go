package plan

// GlobalFile is the top-level bespoke server configuration: where local
// content lives and which resource files to load.
type GlobalFile struct {
	ServerHostname  string   `yaml:"server_hostname" validate:"required,hostname|fqdn"`
	TestsPath       string   `yaml:"tests_path" validate:"required"`
	ToolsPath       string   `yaml:"tools_path" validate:"required"`
	ResultsPath     string   `yaml:"results_path" validate:"required"`
	ResourceConfigs []string `yaml:"resource_configs" validate:"required,min=1,dive,required"`
}

// ResourcesFile declares the machines tests may claim, grouped by the
// vSphere host that owns them.
type ResourcesFile struct {
	VsphereHosts []VsphereHost `yaml:"vsphere_hosts" validate:"dive"`
}

type VsphereHost struct {
	Host     string `yaml:"host" validate:"required"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Insecure bool   `yaml:"insecure"`

	Machines  []MachineDecl  `yaml:"machines" validate:"dive"`
	Templates []TemplateDecl `yaml:"templates" validate:"dive"`
}

// MachineDecl is a statically provisioned virtual machine.
type MachineDecl struct {
	Alias          string `yaml:"alias" validate:"required"`
	Name           string `yaml:"name" validate:"required"`
	NetworkAddress string `yaml:"network_address" validate:"required"`
	InstallRoot    string `yaml:"install_root" validate:"required"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	OSType         string `yaml:"os_type" validate:"required,oneof=Linux Windows"`
	OSArch         string `yaml:"os_arch"`
	OSLabel        string `yaml:"os_label"`
	Role           string `yaml:"role"`
	// CheckPoints maps a checkpoint name to the tools baked into it.
	CheckPoints map[string][]string `yaml:"checkpoints"`
	Tools       []string            `yaml:"tools"`
}

// TemplateDecl is a template-backed machine: each checkout provisions a
// fresh clone of the named template.
type TemplateDecl struct {
	Alias          string   `yaml:"alias" validate:"required"`
	Template       string   `yaml:"template" validate:"required"`
	NetworkAddress string   `yaml:"network_address" validate:"required"`
	InstallRoot    string   `yaml:"install_root" validate:"required"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	OSType         string   `yaml:"os_type" validate:"required,oneof=Linux Windows"`
	OSArch         string   `yaml:"os_arch"`
	OSLabel        string   `yaml:"os_label"`
	Role           string   `yaml:"role"`
	Tools          []string `yaml:"tools"`
}

// ToolsFile declares installable artifacts: supporting tools and builds
// under test share the same shape.
type ToolsFile struct {
	Tools  []ToolDecl `yaml:"tools" validate:"dive"`
	Builds []ToolDecl `yaml:"builds" validate:"dive"`
}

type ToolDecl struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`
	OSType  string `yaml:"os_type" validate:"required,oneof=Linux Windows"`
	OSArch  string `yaml:"os_arch"`

	Source  SourceDecl  `yaml:"source"`
	Install InstallDecl `yaml:"install" validate:"required"`
}

type SourceDecl struct {
	Type       string            `yaml:"type" validate:"omitempty,oneof=no_source local http"`
	CopyOnce   bool              `yaml:"copy_once"`
	Properties map[string]string `yaml:"properties"`
}

type InstallDecl struct {
	Type       string            `yaml:"type" validate:"required,oneof=no_install basic_install msi_install"`
	Properties map[string]string `yaml:"properties"`
}

// TestPlanFile declares an ordered list of test cases.
type TestPlanFile struct {
	Name      string         `yaml:"name" validate:"required"`
	TestCases []TestCaseDecl `yaml:"test_cases" validate:"required,min=1,dive"`
}

type TestCaseDecl struct {
	Name            string      `yaml:"name" validate:"required"`
	PrepareMachines []PrepDecl  `yaml:"prepare_machines" validate:"required,min=1,dive"`
	Steps           []StepEntry `yaml:"steps" validate:"dive"`
}

// PrepDecl binds a machine to a resource id and lists what gets installed
// on it before the steps run.
type PrepDecl struct {
	ResourceID  string   `yaml:"resource_id" validate:"required"`
	Machine     string   `yaml:"machine" validate:"required"`
	Checkpoint  string   `yaml:"checkpoint"`
	PostWait    int      `yaml:"post_wait" validate:"gte=0"`
	Timeout     int      `yaml:"timeout" validate:"gt=0"`
	Restart     bool     `yaml:"restart"`
	RestartWait bool     `yaml:"restart_wait"`
	Tools       []string `yaml:"tools"`
	Builds      []string `yaml:"builds"`
}

// StepEntry is a union: exactly one of Step or RefreshResource is set.
type StepEntry struct {
	Step            *StepDecl    `yaml:"step"`
	RefreshResource *RefreshDecl `yaml:"refresh_resource"`
}

type StepDecl struct {
	Description string            `yaml:"description" validate:"required"`
	ResourceID  string            `yaml:"resource_id" validate:"required"`
	Directory   string            `yaml:"directory" validate:"required"`
	Interpreter string            `yaml:"interpreter"`
	Executable  string            `yaml:"executable" validate:"required"`
	Params      map[string]string `yaml:"params"`
	Timeout     int               `yaml:"timeout" validate:"gt=0"`
	PostWait    int               `yaml:"post_wait" validate:"gte=0"`
	Restart     bool              `yaml:"restart"`
	RestartWait bool              `yaml:"restart_wait"`
}

type RefreshDecl struct {
	ResourceID  string `yaml:"resource_id" validate:"required"`
	Restart     bool   `yaml:"restart"`
	RestartWait bool   `yaml:"restart_wait"`
}

// TestRunFile is the entry point config: which tool, build, and plan
// files make up the run.
type TestRunFile struct {
	Name         string   `yaml:"name" validate:"required"`
	Description  string   `yaml:"description"`
	ToolConfigs  []string `yaml:"tool_configs" validate:"dive,required"`
	BuildConfigs []string `yaml:"build_configs" validate:"dive,required"`
	TestPlans    []string `yaml:"test_plans" validate:"required,min=1,dive,required"`
}
