package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/remote"
)

// TestStep copies a test script directory to the SUT, runs it, and pulls
// the results back. A failing script is a Fail, not a Fatal: the machine
// is still usable and sibling steps keep running.
type TestStep struct {
	resultsBase

	testDirectory string
	interpreter   string
	testExec      string
	testParams    map[string]string
	postWait      int
	remoteTarget  string
}

func NewTestStep(
	description string,
	sut *SystemUnderTest,
	env *Environment,
	testDirectory, interpreter, testExec string,
	testParams map[string]string,
	timeout, postWait int,
) *TestStep {
	return &TestStep{
		resultsBase:   newResultsBase(description, sut, env, timeout),
		testDirectory: testDirectory,
		interpreter:   interpreter,
		testExec:      testExec,
		testParams:    testParams,
		postWait:      postWait,
		remoteTarget:  remotePath(sut.InstallRoot(), DirTests, testDirectory),
	}
}

func (t *TestStep) Execute(ctx context.Context) error {
	t.status = models.StatusRunning

	err := func() error {
		session, err := t.dial(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		if err := t.setupResults(ctx, session); err != nil {
			return err
		}
		if err := t.stage(ctx, session); err != nil {
			return err
		}
		if err := t.runScript(ctx, session); err != nil {
			return err
		}

		sleepSeconds(ctx, t.postWait)
		return t.fetchResults(ctx, session)
	}()
	if err != nil {
		t.status = models.StatusFail
		t.message = err.Error()
		return bkErrors.NewFailure("%s", t.message)
	}

	t.status = models.StatusPass
	return nil
}

func (t *TestStep) stage(ctx context.Context, session remote.Session) error {
	localSource := filepath.Join(t.env.LocalTests, t.testDirectory)

	if isDir, err := afero.DirExists(t.env.Fs, localSource); err != nil || !isDir {
		return fmt.Errorf("failed to stage test step %q on remote machine: the test directory %q does not exist",
			t.name, localSource)
	}

	return session.CopyDir(ctx, localSource, t.remoteTarget)
}

func (t *TestStep) runScript(ctx context.Context, session remote.Session) error {
	command := t.testExec
	params := make([]string, 0, 2*len(t.testParams)+1)
	if t.interpreter != "" {
		command = t.interpreter
		params = append(params, t.testExec)
	}

	keys := make([]string, 0, len(t.testParams))
	for key := range t.testParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		params = append(params, key)
		if value := t.testParams[key]; value != "" {
			params = append(params, value)
		}
	}

	exitCode, out, err := session.RunCommand(ctx, command, t.remoteTarget, t.timeout, params, nil)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("test step %q failed: %s", t.name, out)
	}
	return nil
}
