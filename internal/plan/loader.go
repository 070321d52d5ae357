// Package plan loads the YAML configuration files that describe a test
// run: global settings, resources, tools and builds, test plans, and the
// test run file tying them together. Reference errors always name the
// offending file.
package plan

import (
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// ResourceLookup resolves a machine alias to its system under test.
type ResourceLookup interface {
	Get(alias string) (*core.SystemUnderTest, error)
}

type Loader struct {
	fs       afero.Fs
	validate *validator.Validate
}

func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		fs:       fs,
		validate: validator.New(),
	}
}

// load reads, unmarshals, and struct-validates one YAML file.
func (l *Loader) load(path string, out any) error {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return bkErrors.NewValidationError(path, "config file not found: %v", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return bkErrors.NewValidationError(path, "invalid YAML: %v", err)
	}
	if err := l.validate.Struct(out); err != nil {
		return bkErrors.NewValidationError(path, "invalid config: %v", err)
	}
	return nil
}

func (l *Loader) LoadGlobal(path string) (*GlobalFile, error) {
	var global GlobalFile
	if err := l.load(path, &global); err != nil {
		return nil, err
	}
	return &global, nil
}

func (l *Loader) LoadResources(path string) (*ResourcesFile, error) {
	var resources ResourcesFile
	if err := l.load(path, &resources); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, host := range resources.VsphereHosts {
		for _, machine := range host.Machines {
			if seen[machine.Alias] {
				return nil, bkErrors.NewValidationError(path,
					"the resource alias %q is used more than once", machine.Alias)
			}
			seen[machine.Alias] = true
		}
		for _, template := range host.Templates {
			if seen[template.Alias] {
				return nil, bkErrors.NewValidationError(path,
					"the resource alias %q is used more than once", template.Alias)
			}
			seen[template.Alias] = true
		}
	}
	return &resources, nil
}

func (l *Loader) LoadTestRun(path string) (*TestRunFile, error) {
	var run TestRunFile
	if err := l.load(path, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// LoadTools merges one tools file into the given catalogs, rejecting
// duplicate names. Tools land in tools, builds in builds; either catalog
// may be nil when the caller only wants the other.
func (l *Loader) LoadTools(path string, tools, builds map[string]models.Tool) error {
	var file ToolsFile
	if err := l.load(path, &file); err != nil {
		return err
	}

	if tools != nil {
		for _, decl := range file.Tools {
			if _, exists := tools[decl.Name]; exists {
				return bkErrors.NewValidationError(path,
					"duplicate tool name %q specified, tool names must be unique", decl.Name)
			}
			tools[decl.Name] = toolFromDecl(decl, false)
		}
	}
	if builds != nil {
		for _, decl := range file.Builds {
			if _, exists := builds[decl.Name]; exists {
				return bkErrors.NewValidationError(path,
					"duplicate build name %q specified, build names must be unique", decl.Name)
			}
			builds[decl.Name] = toolFromDecl(decl, true)
		}
	}
	return nil
}

func toolFromDecl(decl ToolDecl, build bool) models.Tool {
	sourceType := models.SourceType(decl.Source.Type)
	if decl.Source.Type == "" {
		sourceType = models.SourceTypeNone
	}
	return models.Tool{
		Name:              decl.Name,
		OSType:            models.OSType(decl.OSType),
		OSArch:            decl.OSArch,
		Version:           decl.Version,
		SourceType:        sourceType,
		SourceCopyOnce:    decl.Source.CopyOnce,
		InstallType:       models.InstallType(decl.Install.Type),
		SourceProperties:  decl.Source.Properties,
		InstallProperties: decl.Install.Properties,
		Build:             build,
	}
}

// BuildTestPlan loads a test plan file and assembles the executable
// TestPlan against the given catalogs and resources.
func (l *Loader) BuildTestPlan(
	path string,
	env *core.Environment,
	resources ResourceLookup,
	tools, builds map[string]models.Tool,
) (*core.TestPlan, error) {
	var file TestPlanFile
	if err := l.load(path, &file); err != nil {
		return nil, err
	}

	testPlan := core.NewTestPlan(file.Name)
	for _, caseDecl := range file.TestCases {
		if _, exists := find(testPlan.TestCases(), caseDecl.Name); exists {
			return nil, bkErrors.NewValidationError(path,
				"duplicate test case name %q was discovered in the %q test plan", caseDecl.Name, file.Name)
		}

		testCase, err := l.buildTestCase(path, caseDecl, env, resources, tools, builds)
		if err != nil {
			return nil, err
		}
		testPlan.AddTestCase(caseDecl.Name, testCase)
	}
	return testPlan, nil
}

func find(cases []*core.TestCase, name string) (*core.TestCase, bool) {
	for _, testCase := range cases {
		if testCase.Name() == name {
			return testCase, true
		}
	}
	return nil, false
}

func (l *Loader) buildTestCase(
	path string,
	decl TestCaseDecl,
	env *core.Environment,
	resources ResourceLookup,
	tools, builds map[string]models.Tool,
) (*core.TestCase, error) {
	testCase := core.NewTestCase(decl.Name, env)

	for _, prep := range decl.PrepareMachines {
		sut, err := resources.Get(prep.Machine)
		if err != nil {
			return nil, bkErrors.NewValidationError(path,
				"the machine %q specified in the %q test case is not defined in any resource config",
				prep.Machine, decl.Name)
		}

		if err := testCase.AddTestPrep(prep.ResourceID, sut, prep.Checkpoint,
			prep.PostWait, prep.Timeout, prep.Restart, prep.RestartWait); err != nil {
			return nil, bkErrors.NewValidationError(path, "%v", err)
		}

		if err := l.addInstallers(path, testCase, decl.Name, sut, prep, tools, builds); err != nil {
			return nil, err
		}
	}

	for _, entry := range decl.Steps {
		switch {
		case entry.Step != nil && entry.RefreshResource != nil:
			return nil, bkErrors.NewValidationError(path,
				"a steps entry in the %q test case declares both a step and a resource refresh", decl.Name)
		case entry.Step != nil:
			step := entry.Step
			if err := testCase.AddTestStep(step.Description, step.ResourceID, step.Directory,
				step.Interpreter, step.Executable, step.Params,
				step.Timeout, step.PostWait, step.Restart, step.RestartWait); err != nil {
				return nil, bkErrors.NewValidationError(path, "%v", err)
			}
		case entry.RefreshResource != nil:
			refresh := entry.RefreshResource
			if err := testCase.AddResourceRefresh(refresh.ResourceID,
				refresh.Restart, refresh.RestartWait); err != nil {
				return nil, bkErrors.NewValidationError(path, "%v", err)
			}
		default:
			return nil, bkErrors.NewValidationError(path,
				"a steps entry in the %q test case declares neither a step nor a resource refresh", decl.Name)
		}
	}

	return testCase, nil
}

// addInstallers queues the prep's tools and builds, each name used at
// most once per test case and resolved against its catalog.
func (l *Loader) addInstallers(
	path string,
	testCase *core.TestCase,
	caseName string,
	sut *core.SystemUnderTest,
	prep PrepDecl,
	tools, builds map[string]models.Tool,
) error {
	addAll := func(names []string, catalog map[string]models.Tool, kind string,
		add func(models.Tool) error) error {

		used := map[string]bool{}
		for _, name := range names {
			if used[name] {
				return bkErrors.NewValidationError(path,
					"the %s %q is used more than once in the %q test case", kind, name, caseName)
			}
			used[name] = true

			artifact, ok := catalog[name]
			if !ok {
				return bkErrors.NewValidationError(path,
					"the %s %q specified in the %q test case is not defined in any %s config",
					kind, name, caseName, kind)
			}
			if err := add(artifact); err != nil {
				return bkErrors.NewValidationError(path, "%v", err)
			}
		}
		return nil
	}

	if err := addAll(prep.Tools, tools, "tool", func(t models.Tool) error {
		return testCase.AddTool(sut, t, prep.Timeout)
	}); err != nil {
		return err
	}
	return addAll(prep.Builds, builds, "build", func(b models.Tool) error {
		return testCase.AddBuild(sut, b, prep.Timeout)
	})
}

// BuildTestRun assembles the full executable run from a test run file.
func (l *Loader) BuildTestRun(
	runFile *TestRunFile,
	env *core.Environment,
	resources ResourceLookup,
	tools, builds map[string]models.Tool,
) (*core.TestRun, error) {
	testRun := core.NewTestRun(runFile.Name)
	for _, planPath := range runFile.TestPlans {
		testPlan, err := l.BuildTestPlan(planPath, env, resources, tools, builds)
		if err != nil {
			return nil, err
		}
		testRun.AddTestPlan(testPlan)
	}
	return testRun, nil
}

// Catalogs loads every tool and build config a run file references.
func (l *Loader) Catalogs(runFile *TestRunFile) (tools, builds map[string]models.Tool, err error) {
	tools = map[string]models.Tool{}
	builds = map[string]models.Tool{}

	for _, toolPath := range runFile.ToolConfigs {
		if err := l.LoadTools(toolPath, tools, nil); err != nil {
			return nil, nil, err
		}
	}
	for _, buildPath := range runFile.BuildConfigs {
		if err := l.LoadTools(buildPath, nil, builds); err != nil {
			return nil, nil, err
		}
	}
	return tools, builds, nil
}
