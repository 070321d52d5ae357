package core

import (
	"context"
	"fmt"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

// PowerEvent is the kind of power transition PowerControl issues.
type PowerEvent string

const (
	PowerEventRestart  PowerEvent = "restart"
	PowerEventShutdown PowerEvent = "shutdown"
)

// PowerControl issues an OS-appropriate power command over the agent.
// A machine that cannot even shut down is not trustworthy, so failures
// are Fatal.
type PowerControl struct {
	unitBase

	event PowerEvent
	wait  bool
}

func NewPowerControl(name string, sut *SystemUnderTest, env *Environment, event PowerEvent, wait bool) *PowerControl {
	return &PowerControl{
		unitBase: newUnitBase(name, sut, env, PowerCommandTimeout),
		event:    event,
		wait:     wait,
	}
}

func (p *PowerControl) Execute(ctx context.Context) error {
	p.status = models.StatusRunning

	if err := p.run(ctx); err != nil {
		p.status = models.StatusFatal
		p.message = err.Error()
		return bkErrors.NewFatal("%s", p.message)
	}

	p.status = models.StatusPass
	return nil
}

func (p *PowerControl) run(ctx context.Context) error {
	session, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	if err := p.ping(ctx, session); err != nil {
		return err
	}

	var params []string
	switch p.sut.OSType() {
	case models.OSTypeLinux:
		if p.event == PowerEventRestart {
			params = []string{"-r", "now"}
		} else {
			params = []string{"-h", "now"}
		}
	case models.OSTypeWindows:
		if p.event == PowerEventRestart {
			params = []string{"/r", "/t", "3"}
		} else {
			params = []string{"/h", "/t", "3"}
		}
	default:
		return fmt.Errorf("unknown OS platform: %s", p.sut.OSType())
	}

	exitCode, out, err := session.RunCommand(ctx, "shutdown", p.sut.InstallRoot(), PowerCommandTimeout, params, nil)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("power control event %q failed: %s", p.name, out)
	}

	if p.wait {
		sleepSeconds(ctx, p.env.BootWait)
	}
	return nil
}
