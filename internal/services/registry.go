package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/plan"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/hypervisor"
)

// TemplateMachineFactory provisions a machine driver for one clone of a
// template, named cloneName on the hypervisor.
type TemplateMachineFactory func(cloneName string) (hypervisor.VirtualMachine, error)

type templateEntry struct {
	sut     *core.SystemUnderTest
	factory TemplateMachineFactory
}

// ResourceRegistry resolves aliases to systems under test. Static
// machines resolve to one shared instance so the checkout lock is global;
// template machines resolve to a fresh copy with its own lock and its own
// clone on every lookup.
type ResourceRegistry struct {
	mu        sync.Mutex
	statics   map[string]*core.SystemUnderTest
	templates map[string]*templateEntry
}

func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		statics:   map[string]*core.SystemUnderTest{},
		templates: map[string]*templateEntry{},
	}
}

func (r *ResourceRegistry) AddStatic(sut *core.SystemUnderTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(sut.Alias()) {
		return bkErrors.NewValidationError(sut.Alias(), "the resource alias %q is used more than once", sut.Alias())
	}
	r.statics[sut.Alias()] = sut
	return nil
}

func (r *ResourceRegistry) AddTemplate(sut *core.SystemUnderTest, factory TemplateMachineFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(sut.Alias()) {
		return bkErrors.NewValidationError(sut.Alias(), "the resource alias %q is used more than once", sut.Alias())
	}
	r.templates[sut.Alias()] = &templateEntry{sut: sut, factory: factory}
	return nil
}

func (r *ResourceRegistry) exists(alias string) bool {
	_, static := r.statics[alias]
	_, template := r.templates[alias]
	return static || template
}

// Get resolves an alias. Template lookups provision nothing yet; the
// clone is only created on the hypervisor when the test case checks the
// resource out.
func (r *ResourceRegistry) Get(alias string) (*core.SystemUnderTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sut, ok := r.statics[alias]; ok {
		return sut, nil
	}
	if entry, ok := r.templates[alias]; ok {
		cloneName := fmt.Sprintf("%s-%s", strings.ToLower(alias), uuid.NewString()[:8])
		machine, err := entry.factory(cloneName)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare a clone of %q: %w", alias, err)
		}
		return entry.sut.Clone(machine), nil
	}
	return nil, bkErrors.NewResourceNotFoundError("resource", alias)
}

// Aliases lists every registered alias, statics first.
func (r *ResourceRegistry) Aliases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	aliases := make([]string, 0, len(r.statics)+len(r.templates))
	for alias := range r.statics {
		aliases = append(aliases, alias)
	}
	for alias := range r.templates {
		aliases = append(aliases, alias)
	}
	return aliases
}

// NewRegistryFromConfig connects to each declared vSphere host and
// registers its machines and templates.
func NewRegistryFromConfig(ctx context.Context, resources *plan.ResourcesFile) (*ResourceRegistry, error) {
	registry := NewResourceRegistry()
	if err := registry.AddFromConfig(ctx, resources); err != nil {
		return nil, err
	}
	return registry, nil
}

// AddFromConfig registers every machine and template a resources file
// declares. A deployment may split its lab across several files; they all
// land in the same registry so alias uniqueness holds across files.
func (r *ResourceRegistry) AddFromConfig(ctx context.Context, resources *plan.ResourcesFile) error {
	for _, host := range resources.VsphereHosts {
		client, err := hypervisor.NewVsphereClient(ctx,
			fmt.Sprintf("https://%s/sdk", host.Host), host.Username, host.Password, host.Insecure)
		if err != nil {
			return fmt.Errorf("failed to connect to vSphere host %q: %w", host.Host, err)
		}

		for _, decl := range host.Machines {
			machine, err := hypervisor.NewVsphereMachine(ctx, client, host.Host, decl.Name)
			if err != nil {
				return fmt.Errorf("failed to find machine %q on %q: %w", decl.Name, host.Host, err)
			}
			sut, err := core.NewSystemUnderTest(staticConfig(decl), machine)
			if err != nil {
				return err
			}
			if err := r.AddStatic(sut); err != nil {
				return err
			}
		}

		for _, decl := range host.Templates {
			decl := decl
			hostName := host.Host
			// The prototype never executes anything; Get attaches a real
			// clone driver before the copy leaves the registry.
			sut, err := core.NewSystemUnderTest(templateConfig(decl), nil)
			if err != nil {
				return err
			}
			err = r.AddTemplate(sut, func(cloneName string) (hypervisor.VirtualMachine, error) {
				return hypervisor.NewVsphereTemplateMachine(ctx, client, hostName, decl.Template, cloneName)
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func staticConfig(decl plan.MachineDecl) core.SUTConfig {
	return core.SUTConfig{
		Alias:          decl.Alias,
		MachineType:    models.MachineTypeStatic,
		NetworkAddress: decl.NetworkAddress,
		InstallRoot:    decl.InstallRoot,
		Credentials:    credentials(decl.Username, decl.Password),
		OSType:         models.OSType(decl.OSType),
		OSLabel:        decl.OSLabel,
		OSArch:         decl.OSArch,
		Role:           decl.Role,
		CheckPoints:    decl.CheckPoints,
		Tools:          decl.Tools,
	}
}

func templateConfig(decl plan.TemplateDecl) core.SUTConfig {
	return core.SUTConfig{
		Alias:          decl.Alias,
		MachineType:    models.MachineTypeTemplate,
		NetworkAddress: decl.NetworkAddress,
		InstallRoot:    decl.InstallRoot,
		Credentials:    credentials(decl.Username, decl.Password),
		OSType:         models.OSType(decl.OSType),
		OSLabel:        decl.OSLabel,
		OSArch:         decl.OSArch,
		Role:           decl.Role,
		Tools:          decl.Tools,
	}
}

func credentials(username, password string) map[string]string {
	if username == "" && password == "" {
		return nil
	}
	return map[string]string{"username": username, "password": password}
}
