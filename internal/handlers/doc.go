// Package handlers implements the HTTP API layer of the bespoke agent.
//
// The agent runs on every system under test and gives the bespoke server a
// uniform way to move files and run processes regardless of the SUT's
// operating system. Handlers focus on request validation, response
// formatting, and HTTP semantics; the actual work happens through an
// afero.Fs and os/exec.
//
// # API Endpoints
//
// Liveness (ping.go):
//
//	┌────────┬──────────┬─────────────────────────────────────────────┐
//	│ Method │ Endpoint │ Description                                 │
//	├────────┼──────────┼─────────────────────────────────────────────┤
//	│ GET    │ /ping    │ Report agent liveness and hostname          │
//	└────────┴──────────┴─────────────────────────────────────────────┘
//
// Filesystem (fs.go):
//
//	┌────────┬─────────────┬──────────────────────────────────────────┐
//	│ Method │ Endpoint    │ Description                              │
//	├────────┼─────────────┼──────────────────────────────────────────┤
//	│ POST   │ /fs/dir     │ Create a directory and missing parents   │
//	│ DELETE │ /fs/dir     │ Remove a directory tree (missing is ok)  │
//	│ POST   │ /fs/file    │ Upload a file (multipart, max 64MB)      │
//	│ GET    │ /fs/archive │ Download a directory tree as a tar stream│
//	└────────┴─────────────┴──────────────────────────────────────────┘
//
// Process (exec.go):
//
//	┌────────┬──────────────┬─────────────────────────────────────────┐
//	│ Method │ Endpoint     │ Description                             │
//	├────────┼──────────────┼─────────────────────────────────────────┤
//	│ POST   │ /process/run │ Run a command, return exit code + output│
//	└────────┴──────────────┴─────────────────────────────────────────┘
//
// # Path Confinement
//
// When the agent is started with a work folder, every path a client
// supplies must resolve beneath it; anything else is rejected with
// 403 Forbidden. An empty work folder disables confinement, which matches
// throwaway lab VMs that get reverted between tests anyway.
//
// # Process Execution
//
// POST /process/run executes the command with os/exec, bounded by the
// request's timeout. A process that exits on its own reports its real exit
// code with stdout and stderr combined into Output; a process killed by
// the timeout reports exit code -1. Both cases are 200 OK: a failing test
// script is a valid result, not a transport error.
//
// # Error Handling
//
// Handlers use a consistent error response format:
//
//	{ "error": "error message" }
package handlers
