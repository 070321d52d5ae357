package core

import (
	"context"
	"fmt"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// TestPlan sequences test cases in insertion order. A Fail never stops
// siblings; a Fatal stops everything and is re-raised.
type TestPlan struct {
	name    string
	status  models.Status
	message string

	caseNames []string
	testCases map[string]*TestCase
}

func NewTestPlan(name string) *TestPlan {
	return &TestPlan{
		name:      name,
		status:    models.StatusNotRan,
		testCases: map[string]*TestCase{},
	}
}

func (tp *TestPlan) Name() string          { return tp.name }
func (tp *TestPlan) Status() models.Status { return tp.status }
func (tp *TestPlan) Message() string       { return tp.message }

func (tp *TestPlan) AddTestCase(name string, testCase *TestCase) {
	if _, exists := tp.testCases[name]; !exists {
		tp.caseNames = append(tp.caseNames, name)
	}
	tp.testCases[name] = testCase
}

// TestCases returns the plan's test cases in execution order.
func (tp *TestPlan) TestCases() []*TestCase {
	cases := make([]*TestCase, 0, len(tp.caseNames))
	for _, name := range tp.caseNames {
		cases = append(cases, tp.testCases[name])
	}
	return cases
}

func (tp *TestPlan) Execute(ctx context.Context) error {
	tp.status = models.StatusRunning

	for _, name := range tp.caseNames {
		testCase := tp.testCases[name]

		err := testCase.Execute(ctx)
		switch {
		case err == nil:
		case bkErrors.IsFailure(err):
			tp.status = models.StatusFail
			tp.message = fmt.Sprintf("the %q test case in the test plan %q failed with the message: %q",
				testCase.Name(), tp.name, testCase.Message())
		default:
			tp.status = models.StatusFail
			tp.message = fmt.Sprintf("the %q test case in the test plan %q encountered the fatal error: %q",
				testCase.Name(), tp.name, errMessage(err))
			return bkErrors.NewFatal("%s", tp.message)
		}
	}

	if tp.status == models.StatusFail {
		return bkErrors.NewFailure("%s", tp.message)
	}

	tp.status = models.StatusPass
	return nil
}

// TestRun is the top-level container: an ordered list of test plans with
// the same aggregation rule as TestPlan.
type TestRun struct {
	name    string
	status  models.Status
	message string

	testPlans []*TestPlan
}

func NewTestRun(name string) *TestRun {
	return &TestRun{
		name:   name,
		status: models.StatusNotRan,
	}
}

func (tr *TestRun) Name() string          { return tr.name }
func (tr *TestRun) Status() models.Status { return tr.status }
func (tr *TestRun) Message() string       { return tr.message }

func (tr *TestRun) AddTestPlan(testPlan *TestPlan) {
	tr.testPlans = append(tr.testPlans, testPlan)
}

// TestPlans returns the run's plans in execution order.
func (tr *TestRun) TestPlans() []*TestPlan { return tr.testPlans }

func (tr *TestRun) Execute(ctx context.Context) error {
	tr.status = models.StatusRunning

	for _, testPlan := range tr.testPlans {
		err := testPlan.Execute(ctx)
		switch {
		case err == nil:
		case bkErrors.IsFailure(err):
			tr.status = models.StatusFail
			tr.message = fmt.Sprintf("the %q test plan in the test run %q failed with the message: %q",
				testPlan.Name(), tr.name, testPlan.Message())
		default:
			tr.status = models.StatusFail
			tr.message = fmt.Sprintf("the %q test plan in the test run %q encountered the fatal error: %q",
				testPlan.Name(), tr.name, errMessage(err))
			return bkErrors.NewFatal("%s", tr.message)
		}
	}

	if tr.status == models.StatusFail {
		return bkErrors.NewFailure("%s", tr.message)
	}

	tr.status = models.StatusPass
	return nil
}
