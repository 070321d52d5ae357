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

// installerBase holds the shared execute skeleton of the installer
// variants: set up the results directory, stage, install, pull results.
// Any failure is Fatal, a machine with a half-installed tool is not
// trustworthy for subsequent steps.
type installerBase struct {
	resultsBase

	tool models.Tool
}

func newInstallerBase(tool models.Tool, sut *SystemUnderTest, env *Environment, timeout int) installerBase {
	return installerBase{
		resultsBase: newResultsBase(fmt.Sprintf("%s_Installer", tool.Name), sut, env, timeout),
		tool:        tool,
	}
}

func (i *installerBase) execute(ctx context.Context, stage, install func(context.Context, remote.Session) error) error {
	i.status = models.StatusRunning

	err := func() error {
		session, err := i.dial(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		if err := i.setupResults(ctx, session); err != nil {
			return err
		}
		if err := stage(ctx, session); err != nil {
			return err
		}
		if err := install(ctx, session); err != nil {
			return err
		}
		return i.fetchResults(ctx, session)
	}()
	if err != nil {
		i.status = models.StatusFatal
		i.message = err.Error()
		return bkErrors.NewFatal("%s", i.message)
	}

	i.status = models.StatusPass
	return nil
}

// BasicInstaller copies a tool's artifact from local tool storage
// directly onto the SUT. There is no separate staging step, the copy is
// the installation.
type BasicInstaller struct {
	installerBase
}

func NewBasicInstaller(tool models.Tool, sut *SystemUnderTest, env *Environment, timeout int) *BasicInstaller {
	return &BasicInstaller{installerBase: newInstallerBase(tool, sut, env, timeout)}
}

func (b *BasicInstaller) Execute(ctx context.Context) error {
	return b.execute(ctx, b.stage, b.install)
}

func (b *BasicInstaller) stage(context.Context, remote.Session) error {
	return nil
}

func (b *BasicInstaller) install(ctx context.Context, session remote.Session) error {
	localSource := filepath.Join(b.env.LocalTools, b.tool.InstallProperties["source_path"])
	remoteTarget := b.tool.InstallProperties["target_path"]

	if isDir, err := afero.DirExists(b.env.Fs, localSource); err == nil && isDir {
		return session.CopyDir(ctx, localSource, remoteTarget)
	}
	if isFile, err := afero.Exists(b.env.Fs, localSource); err == nil && isFile {
		return session.CopyFile(ctx, localSource, remoteTarget)
	}

	return fmt.Errorf("failed to stage tool %q on remote machine: the file or directory %q does not exist",
		b.tool.Name, localSource)
}

// MSIInstaller copies an MSI package to the SUT's tools directory and
// runs msiexec against it, logging into the results directory.
type MSIInstaller struct {
	installerBase

	remoteTarget string
}

func NewMSIInstaller(tool models.Tool, sut *SystemUnderTest, env *Environment, timeout int) *MSIInstaller {
	installer := &MSIInstaller{installerBase: newInstallerBase(tool, sut, env, timeout)}
	installer.remoteTarget = remotePath(sut.InstallRoot(), DirTools, tool.InstallProperties["source_file"])
	return installer
}

func (m *MSIInstaller) Execute(ctx context.Context) error {
	return m.execute(ctx, m.stage, m.install)
}

func (m *MSIInstaller) stage(ctx context.Context, session remote.Session) error {
	localSource := filepath.Join(m.env.LocalTools, m.tool.InstallProperties["source_file"])

	if isFile, err := afero.Exists(m.env.Fs, localSource); err != nil || !isFile {
		return fmt.Errorf("failed to stage tool %q on remote machine: the file %q does not exist",
			m.tool.Name, localSource)
	}

	return session.CopyFile(ctx, localSource, m.remoteTarget)
}

func (m *MSIInstaller) install(ctx context.Context, session remote.Session) error {
	params := []string{
		"/i", m.remoteTarget,
		"/qn",
		"/L", remotePath(m.remoteResults, "msi_install.log"),
	}

	keys := make([]string, 0, len(m.tool.InstallProperties))
	for key := range m.tool.InstallProperties {
		if key != "source_file" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		params = append(params, fmt.Sprintf("%s=%s", key, m.tool.InstallProperties[key]))
	}

	exitCode, out, err := session.RunCommand(ctx, "msiexec", m.sut.InstallRoot(), m.timeout, params, nil)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("failed to install tool %q: %s", m.tool.Name, out)
	}
	return nil
}
