package services_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fancylads/bespoke/internal/core"
	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/services"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/hypervisor"
)

func newStaticSUT(alias string, machine hypervisor.VirtualMachine) *core.SystemUnderTest {
	sut, err := core.NewSystemUnderTest(core.SUTConfig{
		Alias:          alias,
		MachineType:    models.MachineTypeStatic,
		NetworkAddress: alias + ".lab",
		InstallRoot:    "/opt/bespoke",
		OSType:         models.OSTypeLinux,
	}, machine)
	Expect(err).ToNot(HaveOccurred())
	return sut
}

func newTemplateSUT(alias string) *core.SystemUnderTest {
	sut, err := core.NewSystemUnderTest(core.SUTConfig{
		Alias:          alias,
		MachineType:    models.MachineTypeTemplate,
		NetworkAddress: alias + ".lab",
		InstallRoot:    "/opt/bespoke",
		OSType:         models.OSTypeLinux,
	}, nil)
	Expect(err).ToNot(HaveOccurred())
	return sut
}

var _ = Describe("ResourceRegistry", func() {
	var registry *services.ResourceRegistry

	BeforeEach(func() {
		registry = services.NewResourceRegistry()
	})

	Context("static resources", func() {
		It("resolves every lookup to the same instance", func() {
			// Given
			sut := newStaticSUT("VM-A", &stubMachine{name: "vm-a"})
			Expect(registry.AddStatic(sut)).To(Succeed())

			// When
			first, err := registry.Get("VM-A")
			Expect(err).ToNot(HaveOccurred())
			second, err := registry.Get("VM-A")
			Expect(err).ToNot(HaveOccurred())

			// Then
			Expect(first).To(BeIdenticalTo(sut))
			Expect(second).To(BeIdenticalTo(sut))
		})

		It("shares one checkout lock across lookups", func() {
			sut := newStaticSUT("VM-A", &stubMachine{name: "vm-a"})
			Expect(registry.AddStatic(sut)).To(Succeed())

			first, err := registry.Get("VM-A")
			Expect(err).ToNot(HaveOccurred())
			Expect(first.Checkout(context.Background(), 60)).To(Succeed())

			second, err := registry.Get("VM-A")
			Expect(err).ToNot(HaveOccurred())
			err = second.Checkout(context.Background(), 60)
			Expect(bkErrors.IsBusyError(err)).To(BeTrue())
		})
	})

	Context("template resources", func() {
		It("hands out an independent copy per lookup", func() {
			// Given
			var provisioned []string
			err := registry.AddTemplate(newTemplateSUT("Scratch"), func(cloneName string) (hypervisor.VirtualMachine, error) {
				provisioned = append(provisioned, cloneName)
				return &stubMachine{name: cloneName}, nil
			})
			Expect(err).ToNot(HaveOccurred())

			// When
			first, err := registry.Get("Scratch")
			Expect(err).ToNot(HaveOccurred())
			second, err := registry.Get("Scratch")
			Expect(err).ToNot(HaveOccurred())

			// Then: distinct copies, distinct clone names, independent locks.
			Expect(first).ToNot(BeIdenticalTo(second))
			Expect(provisioned).To(HaveLen(2))
			Expect(provisioned[0]).ToNot(Equal(provisioned[1]))
			Expect(provisioned[0]).To(HavePrefix("scratch-"))

			Expect(first.Checkout(context.Background(), 60)).To(Succeed())
			Expect(second.Checkout(context.Background(), 60)).To(Succeed())
			Expect(first.InUse()).To(BeTrue())
			Expect(second.InUse()).To(BeTrue())
		})

		It("fails the lookup when the clone cannot be prepared", func() {
			err := registry.AddTemplate(newTemplateSUT("Scratch"), func(string) (hypervisor.VirtualMachine, error) {
				return nil, fmt.Errorf("datastore full")
			})
			Expect(err).ToNot(HaveOccurred())

			_, err = registry.Get("Scratch")
			Expect(err).To(MatchError(ContainSubstring("datastore full")))
		})
	})

	It("rejects a duplicate alias across kinds", func() {
		Expect(registry.AddStatic(newStaticSUT("VM-A", &stubMachine{name: "vm-a"}))).To(Succeed())

		err := registry.AddTemplate(newTemplateSUT("VM-A"), func(string) (hypervisor.VirtualMachine, error) {
			return &stubMachine{}, nil
		})
		Expect(bkErrors.IsValidationError(err)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("used more than once")))
	})

	It("reports an unknown alias as not found", func() {
		_, err := registry.Get("VM-Z")
		Expect(bkErrors.IsResourceNotFoundError(err)).To(BeTrue())
	})

	It("lists every registered alias", func() {
		Expect(registry.AddStatic(newStaticSUT("VM-A", &stubMachine{name: "vm-a"}))).To(Succeed())
		err := registry.AddTemplate(newTemplateSUT("Scratch"), func(string) (hypervisor.VirtualMachine, error) {
			return &stubMachine{}, nil
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(registry.Aliases()).To(ConsistOf("VM-A", "Scratch"))
	})
})
