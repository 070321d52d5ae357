package core

import (
	"context"
	"fmt"
	"time"

	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/pkg/remote"
)

// Unit is a single schedulable piece of work targeting one SUT. Variants
// are TestPrep, BasicInstaller, MSIInstaller, TestStep, and PowerControl;
// each produces a Pass, Fail, or Fatal outcome. Execute returns a
// FailureError for recoverable outcomes and a FatalError for outcomes
// that invalidate the enclosing test case's resources.
type Unit interface {
	Name() string
	Status() models.Status
	Message() string
	Timeout() int
	SUT() *SystemUnderTest
	Execute(ctx context.Context) error
}

type unitBase struct {
	name    string
	sut     *SystemUnderTest
	env     *Environment
	timeout int
	status  models.Status
	message string
}

func newUnitBase(name string, sut *SystemUnderTest, env *Environment, timeout int) unitBase {
	return unitBase{
		name:    name,
		sut:     sut,
		env:     env,
		timeout: timeout,
		status:  models.StatusNotRan,
	}
}

func (b *unitBase) Name() string          { return b.name }
func (b *unitBase) Status() models.Status { return b.status }
func (b *unitBase) Message() string       { return b.message }
func (b *unitBase) Timeout() int          { return b.timeout }
func (b *unitBase) SUT() *SystemUnderTest { return b.sut }

// dial opens an agent session scoped to one Execute call. Callers must
// close it on every exit path.
func (b *unitBase) dial(ctx context.Context) (remote.Session, error) {
	session, err := b.env.Dialer.Dial(ctx, b.sut.NetworkAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to reach the agent on %q: %w", b.sut.NetworkAddress(), err)
	}
	return session, nil
}

// ping probes the agent, retrying up to PingRetryCount times.
func (b *unitBase) ping(ctx context.Context, session remote.Session) error {
	var err error
	for attempt := 0; attempt < PingRetryCount; attempt++ {
		if err = session.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(PingRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("could not ping %q network address: %w", b.sut.NetworkAddress(), err)
}
