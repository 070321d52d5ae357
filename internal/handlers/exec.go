package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/fancylads/bespoke/api/v1"
)

const timedOutExitCode = -1

// (POST /process/run)
func (h *Handler) PostRunCommand(c *gin.Context) {
	var req v1.RunCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TimeoutSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeout_seconds must be positive"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.Command, req.Params...)
	cmd.Dir = req.WorkDir
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range req.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()

	result := v1.RunCommandResponse{Output: output.String()}

	switch {
	case err == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		result.ExitCode = timedOutExitCode
		result.Output += "\ncommand timed out"
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		result.ExitCode = exitErr.ExitCode()
	}

	c.JSON(http.StatusOK, result)
}
