// Package remote provides access to the bespoke agent running on a system
// under test. Callers obtain a Session from a Dialer for the duration of a
// test and drive the SUT through the Agent interface.
package remote

import (
	"context"
)

// Agent is the operation surface of a system under test. All paths on the
// remote side are absolute, in the path syntax of the SUT's operating
// system.
type Agent interface {
	// Ping verifies the agent is up and reachable.
	Ping(ctx context.Context) error
	// CreateDir creates a directory and any missing parents.
	CreateDir(ctx context.Context, path string) error
	// DeleteDir removes a directory tree. A missing directory is not an
	// error.
	DeleteDir(ctx context.Context, path string) error
	// CopyFile uploads a local file to an absolute remote path,
	// overwriting any existing file.
	CopyFile(ctx context.Context, localPath, remotePath string) error
	// CopyDir uploads a local directory tree under the given remote
	// directory.
	CopyDir(ctx context.Context, localDir, remoteDir string) error
	// FetchDir downloads a remote directory tree under the given local
	// directory.
	FetchDir(ctx context.Context, remoteDir, localDir string) error
	// RunCommand executes a command on the SUT and returns its exit code
	// and combined output. A non-zero exit code is reported through the
	// return value, not the error.
	RunCommand(ctx context.Context, command, workDir string, timeout int, params []string, env map[string]string) (int, string, error)
}

// Session is a live connection to one SUT's agent. Sessions are not safe
// for concurrent use.
type Session interface {
	Agent
	Close() error
}

// Dialer connects to the agent on the named host.
type Dialer interface {
	Dial(ctx context.Context, host string) (Session, error)
}
