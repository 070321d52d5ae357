// Package v1 defines the wire types of the bespoke agent HTTP API. The
// agent runs on every system under test and performs filesystem and process
// operations on behalf of the bespoke server.
package v1

// PingResponse is returned by GET /ping.
type PingResponse struct {
	Status   string `json:"status"`
	Hostname string `json:"hostname"`
}

// DirRequest addresses a directory on the agent host.
type DirRequest struct {
	Path string `json:"path" binding:"required"`
	// FailIfExists makes directory creation fail when the path already
	// exists instead of silently succeeding.
	FailIfExists bool `json:"fail_if_exists,omitempty"`
}

// RunCommandRequest is the body of POST /process/run. The timeout bounds
// the remote process itself: the agent kills the process and returns once
// TimeoutSeconds elapse.
type RunCommandRequest struct {
	Command        string            `json:"command" binding:"required"`
	WorkDir        string            `json:"work_dir"`
	TimeoutSeconds int               `json:"timeout_seconds" binding:"required"`
	Params         []string          `json:"params,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// RunCommandResponse carries the remote process outcome. ExitCode is the
// process exit code, with stderr folded into Output.
type RunCommandResponse struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// ErrorResponse is the uniform error body for all agent endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
