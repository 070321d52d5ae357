package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// TestCase owns a set of named resource slots and an ordered queue of
// test units. It checks every declared resource out before the first unit
// runs and guarantees every resource is checked back in no matter how the
// run ends. Insertion order is execution order.
type TestCase struct {
	name    string
	env     *Environment
	status  models.Status
	message string

	testPreps  map[string]*TestPrep
	sutAliases []string
	units      []Unit

	log *zap.SugaredLogger
}

func NewTestCase(name string, env *Environment) *TestCase {
	return &TestCase{
		name:      name,
		env:       env,
		status:    models.StatusNotRan,
		testPreps: map[string]*TestPrep{},
		log:       zap.S().Named("core").With("test_case", name),
	}
}

func (tc *TestCase) Name() string          { return tc.name }
func (tc *TestCase) Status() models.Status { return tc.status }
func (tc *TestCase) Message() string       { return tc.message }

// Units exposes the execution queue in order.
func (tc *TestCase) Units() []Unit { return tc.units }

// AddTestPrep registers a resource slot and queues its TestPrep. The
// resource id must be new and the SUT must not already be claimed by
// another slot in this test case.
func (tc *TestCase) AddTestPrep(
	resourceID string,
	sut *SystemUnderTest,
	checkpoint string,
	postWait, timeout int,
	restart, restartWait bool,
) error {
	if _, exists := tc.testPreps[resourceID]; exists {
		return bkErrors.NewValidationError(resourceID,
			"the %q resource_id specified for TestPrep in TestCase %q is already in use", resourceID, tc.name)
	}
	for _, alias := range tc.sutAliases {
		if alias == sut.Alias() {
			return bkErrors.NewValidationError(resourceID,
				"the alias %q referenced by resource_id %q for the TestPrep in TestCase %q is already in use",
				sut.Alias(), resourceID, tc.name)
		}
	}

	prep := NewTestPrep(resourceID, sut, tc.env, timeout, postWait, checkpoint)
	tc.sutAliases = append(tc.sutAliases, sut.Alias())
	tc.testPreps[resourceID] = prep
	tc.units = append(tc.units, prep)

	if restart {
		tc.addPowerEvent(resourceID, sut, PowerEventRestart, restartWait)
	}
	return nil
}

// AddTool queues the installer matching the tool's install type.
// no_install tools contribute nothing.
func (tc *TestCase) AddTool(sut *SystemUnderTest, tool models.Tool, timeout int) error {
	return tc.addInstaller(sut, tool, timeout)
}

// AddBuild queues the installer for a build the same way AddTool does.
func (tc *TestCase) AddBuild(sut *SystemUnderTest, build models.Tool, timeout int) error {
	return tc.addInstaller(sut, build, timeout)
}

func (tc *TestCase) addInstaller(sut *SystemUnderTest, tool models.Tool, timeout int) error {
	switch tool.InstallType {
	case models.InstallTypeBasic:
		tc.units = append(tc.units, NewBasicInstaller(tool, sut, tc.env, timeout))
	case models.InstallTypeMSI:
		tc.units = append(tc.units, NewMSIInstaller(tool, sut, tc.env, timeout))
	case models.InstallTypeNone:
	default:
		return bkErrors.NewValidationError(tool.Name,
			"the install_type %q for tool %q is unsupported", tool.InstallType, tool.Name)
	}
	return nil
}

// AddTestStep queues a TestStep against a previously registered resource.
func (tc *TestCase) AddTestStep(
	desc, resourceID string,
	testDirectory, interpreter, testExec string,
	testParams map[string]string,
	timeout, postWait int,
	restart, restartWait bool,
) error {
	prep, ok := tc.testPreps[resourceID]
	if !ok {
		return bkErrors.NewValidationError(resourceID,
			"the %q resource_id specified for TestStep %q in TestCase %q is not valid", resourceID, desc, tc.name)
	}

	tc.units = append(tc.units, NewTestStep(desc, prep.SUT(), tc.env,
		testDirectory, interpreter, testExec, testParams, timeout, postWait))

	if restart {
		tc.addPowerEvent(desc, prep.SUT(), PowerEventRestart, restartWait)
	}
	return nil
}

// AddResourceRefresh re-enqueues the existing TestPrep for a resource so
// its checkpoint is re-applied later in the sequence.
func (tc *TestCase) AddResourceRefresh(resourceID string, restart, restartWait bool) error {
	prep, ok := tc.testPreps[resourceID]
	if !ok {
		return bkErrors.NewValidationError(resourceID,
			"the %q resource_id specified for ResourceRefresh in TestCase %q is not valid", resourceID, tc.name)
	}

	tc.units = append(tc.units, prep)

	if restart {
		tc.addPowerEvent(resourceID, prep.SUT(), PowerEventRestart, restartWait)
	}
	return nil
}

func (tc *TestCase) addPowerEvent(name string, sut *SystemUnderTest, event PowerEvent, wait bool) {
	tc.units = append(tc.units, NewPowerControl(name+"_PowerControl", sut, tc.env, event, wait))
}

// Execute runs the queue in insertion order. Resource checkout is
// all-or-nothing; a Failure records Fail and continues; a FatalError
// checks everything in and aborts.
func (tc *TestCase) Execute(ctx context.Context) error {
	tc.status = models.StatusRunning

	if err := tc.checkoutResources(ctx); err != nil {
		return err
	}

	for _, unit := range tc.units {
		if err := tc.updateResourceTimeouts(ctx, unit.Timeout()); err != nil {
			return err
		}

		err := unit.Execute(ctx)
		switch {
		case err == nil:
		case bkErrors.IsFailure(err):
			tc.status = models.StatusFail
			tc.message = fmt.Sprintf("the %q test in the test case %q failed with the message: %q",
				unit.Name(), tc.name, unit.Message())
		default:
			tc.checkinResources(ctx)
			tc.status = models.StatusFatal
			tc.message = fmt.Sprintf("the %q test in the test case %q encountered the fatal error: %q",
				unit.Name(), tc.name, errMessage(err))
			return bkErrors.NewFatal("%s", tc.message)
		}
	}

	if tc.status == models.StatusFail {
		tc.checkinResources(ctx)
		return bkErrors.NewFailure("%s", tc.message)
	}

	tc.status = models.StatusPass
	tc.checkinResources(ctx)
	return nil
}

// checkoutResources claims every registered resource, releasing all of
// them on the first error so no machine is left locked by a test case
// that never ran.
func (tc *TestCase) checkoutResources(ctx context.Context) error {
	for resourceID, prep := range tc.testPreps {
		if err := prep.SUT().Checkout(ctx, prep.Timeout()); err != nil {
			tc.checkinResources(ctx)
			tc.status = models.StatusFatal

			switch {
			case bkErrors.IsRangeError(err):
				tc.message = fmt.Sprintf("the timeout %d is not valid for resource %q in the %q test case",
					prep.Timeout(), resourceID, tc.name)
			case bkErrors.IsBusyError(err):
				tc.message = fmt.Sprintf("the %q resource is busy and cannot be checked out by the %q test case",
					resourceID, tc.name)
			default:
				tc.message = err.Error()
			}
			return bkErrors.NewFatal("%s", tc.message)
		}
	}
	return nil
}

// updateResourceTimeouts pushes a unit's timeout as the new lock timeout
// for every resource so long-running steps keep their locks alive.
func (tc *TestCase) updateResourceTimeouts(ctx context.Context, timeout int) error {
	for resourceID, prep := range tc.testPreps {
		if err := prep.SUT().UpdateLockTimeout(timeout); err != nil {
			tc.checkinResources(ctx)
			tc.status = models.StatusFatal
			tc.message = fmt.Sprintf("failed to update the lock for resource %q in the %q test case: %v",
				resourceID, tc.name, err)
			return bkErrors.NewFatal("%s", tc.message)
		}
	}
	return nil
}

func (tc *TestCase) checkinResources(ctx context.Context) {
	for resourceID, prep := range tc.testPreps {
		if err := prep.SUT().Checkin(ctx); err != nil {
			tc.log.Errorw("failed to check in resource", "resource_id", resourceID, "error", err)
		}
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
