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

var _ = Describe("Containers", func() {
	var (
		ctx    context.Context
		fs     afero.Fs
		dialer *fakeDialer
		env    *core.Environment
	)

	nextAddress := 0

	// makeCase builds a single-resource test case with the requested
	// outcome: a clean pass, a failing test step, or a fatal checkout.
	makeCase := func(name string, outcome models.Status) *core.TestCase {
		nextAddress++
		address := string(rune('a'+nextAddress)) + ".lab"

		machine := newFakeMachine(name, models.MachineStateRunning)
		sut, err := core.NewSystemUnderTest(core.SUTConfig{
			Alias:          name,
			MachineType:    models.MachineTypeStatic,
			NetworkAddress: address,
			InstallRoot:    "/opt/bespoke",
			OSType:         models.OSTypeLinux,
		}, machine)
		Expect(err).ToNot(HaveOccurred())

		tc := core.NewTestCase(name, env)
		switch outcome {
		case models.StatusPass:
			Expect(tc.AddTestPrep("r1", sut, "", 0, 600, false, false)).To(Succeed())
		case models.StatusFail:
			Expect(tc.AddTestPrep("r1", sut, "", 0, 600, false, false)).To(Succeed())
			Expect(fs.MkdirAll("/srv/bespoke/tests/broken", 0o755)).To(Succeed())
			dialer.agent(address).exitCodes = map[string]int{"run_broken.sh": 1}
			Expect(tc.AddTestStep("Broken", "r1", "broken", "", "run_broken.sh", nil, 600, 0, false, false)).To(Succeed())
		case models.StatusFatal:
			Expect(tc.AddTestPrep("r1", sut, "", 0, core.MaxCheckoutTime+1, false, false)).To(Succeed())
		}
		return tc
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
	})

	Describe("TestPlan", func() {
		It("should pass when every case passes", func() {
			// Arrange
			plan := core.NewTestPlan("nightly")
			plan.AddTestCase("one", makeCase("one", models.StatusPass))
			plan.AddTestCase("two", makeCase("two", models.StatusPass))

			// Act
			err := plan.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(plan.Status()).To(Equal(models.StatusPass))
		})

		It("should keep running cases after a failure", func() {
			// Arrange
			plan := core.NewTestPlan("nightly")
			plan.AddTestCase("broken", makeCase("broken", models.StatusFail))
			trailing := makeCase("trailing", models.StatusPass)
			plan.AddTestCase("trailing", trailing)

			// Act
			err := plan.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFailure(err)).To(BeTrue())
			Expect(plan.Status()).To(Equal(models.StatusFail))
			Expect(plan.Message()).To(ContainSubstring(`"broken"`))
			Expect(trailing.Status()).To(Equal(models.StatusPass))
		})

		It("should abort and re-raise on a fatal case", func() {
			// Arrange
			plan := core.NewTestPlan("nightly")
			plan.AddTestCase("doomed", makeCase("doomed", models.StatusFatal))
			trailing := makeCase("trailing", models.StatusPass)
			plan.AddTestCase("trailing", trailing)

			// Act
			err := plan.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(plan.Status()).To(Equal(models.StatusFail))
			Expect(trailing.Status()).To(Equal(models.StatusNotRan))
		})

		It("should keep cases in insertion order", func() {
			// Arrange
			plan := core.NewTestPlan("ordered")
			plan.AddTestCase("zeta", makeCase("zeta", models.StatusPass))
			plan.AddTestCase("alpha", makeCase("alpha", models.StatusPass))

			// Act
			cases := plan.TestCases()

			// Assert
			Expect(cases).To(HaveLen(2))
			Expect(cases[0].Name()).To(Equal("zeta"))
			Expect(cases[1].Name()).To(Equal("alpha"))
		})
	})

	Describe("TestRun", func() {
		It("should aggregate a failing plan without stopping siblings", func() {
			// Arrange
			failing := core.NewTestPlan("failing")
			failing.AddTestCase("broken", makeCase("broken", models.StatusFail))
			passing := core.NewTestPlan("passing")
			passing.AddTestCase("fine", makeCase("fine", models.StatusPass))

			run := core.NewTestRun("release-42")
			run.AddTestPlan(failing)
			run.AddTestPlan(passing)

			// Act
			err := run.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFailure(err)).To(BeTrue())
			Expect(run.Status()).To(Equal(models.StatusFail))
			Expect(run.Message()).To(ContainSubstring(`"failing"`))
			Expect(passing.Status()).To(Equal(models.StatusPass))
		})

		It("should abort on a fatal plan", func() {
			// Arrange
			doomed := core.NewTestPlan("doomed")
			doomed.AddTestCase("doomed", makeCase("doomed", models.StatusFatal))
			trailing := core.NewTestPlan("trailing")
			trailing.AddTestCase("fine", makeCase("fine", models.StatusPass))

			run := core.NewTestRun("release-42")
			run.AddTestPlan(doomed)
			run.AddTestPlan(trailing)

			// Act
			err := run.Execute(ctx)

			// Assert
			Expect(bkErrors.IsFatal(err)).To(BeTrue())
			Expect(run.Status()).To(Equal(models.StatusFail))
			Expect(trailing.Status()).To(Equal(models.StatusNotRan))
		})

		It("should pass when every plan passes", func() {
			// Arrange
			plan := core.NewTestPlan("only")
			plan.AddTestCase("fine", makeCase("fine", models.StatusPass))
			run := core.NewTestRun("release-42")
			run.AddTestPlan(plan)

			// Act
			err := run.Execute(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(run.Status()).To(Equal(models.StatusPass))
		})
	})
})
