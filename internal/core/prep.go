package core

import (
	"context"
	"fmt"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
	"github.com/fancylads/bespoke/pkg/remote"
)

// TestPrep puts a SUT into a ready-for-testing state: optionally reverts
// to a checkpoint, boots the machine, verifies agent reachability, and
// rebuilds the on-SUT directory layout. Any failure is Fatal, a machine
// that cannot be prepared invalidates the whole test case.
type TestPrep struct {
	unitBase

	checkpoint string
	postWait   int
}

func NewTestPrep(name string, sut *SystemUnderTest, env *Environment, timeout, postWait int, checkpoint string) *TestPrep {
	return &TestPrep{
		unitBase:   newUnitBase(name, sut, env, timeout),
		checkpoint: checkpoint,
		postWait:   postWait,
	}
}

func (t *TestPrep) Execute(ctx context.Context) error {
	t.status = models.StatusRunning

	if err := t.run(ctx); err != nil {
		t.status = models.StatusFatal
		t.message = err.Error()
		return bkErrors.NewFatal("%s", t.message)
	}

	t.status = models.StatusPass
	return nil
}

func (t *TestPrep) run(ctx context.Context) error {
	if err := t.prepVM(ctx); err != nil {
		return err
	}

	session, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	if err := t.ping(ctx, session); err != nil {
		return err
	}
	if err := t.installLayout(ctx, session); err != nil {
		return err
	}

	sleepSeconds(ctx, t.postWait)
	return nil
}

// prepVM applies the checkpoint if one is named, otherwise just makes
// sure the machine is powered on.
func (t *TestPrep) prepVM(ctx context.Context) error {
	if t.checkpoint != "" {
		state, err := t.sut.CurrentState(ctx)
		if err != nil {
			return err
		}
		if state == models.MachineStateRunning {
			if err := t.sut.Stop(ctx); err != nil {
				return err
			}
		}
		if err := t.sut.ApplySnapshot(ctx, t.checkpoint); err != nil {
			return err
		}
		if err := t.sut.Start(ctx); err != nil {
			return err
		}
		sleepSeconds(ctx, t.env.BootWait)
		return nil
	}

	state, err := t.sut.CurrentState(ctx)
	if err != nil {
		return err
	}
	if state == models.MachineStateStopped {
		if err := t.sut.Start(ctx); err != nil {
			return err
		}
		sleepSeconds(ctx, t.env.BootWait)
	}

	state, err = t.sut.CurrentState(ctx)
	if err != nil {
		return err
	}
	if state != models.MachineStateStopped && state != models.MachineStateRunning {
		return fmt.Errorf("the system under test %q is not in a valid state for testing", t.sut.Alias())
	}
	return nil
}

// installLayout wipes any previous install and recreates the fixed
// directory layout under the SUT's install root.
func (t *TestPrep) installLayout(ctx context.Context, session remote.Session) error {
	if err := session.DeleteDir(ctx, t.sut.InstallRoot()); err != nil {
		return err
	}
	for _, dir := range layoutDirs() {
		if err := session.CreateDir(ctx, remotePath(t.sut.InstallRoot(), dir)); err != nil {
			return err
		}
	}
	return nil
}
