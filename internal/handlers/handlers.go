package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

type Handler struct {
	fs       afero.Fs
	hostname string
	// workRoot, when set, rejects filesystem operations outside it.
	workRoot string
}

func New(fs afero.Fs, hostname, workRoot string) *Handler {
	if workRoot != "" {
		workRoot = filepath.Clean(workRoot)
	}
	return &Handler{
		fs:       fs,
		hostname: hostname,
		workRoot: workRoot,
	}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ping", h.GetPing)
	router.POST("/fs/dir", h.PostDir)
	router.DELETE("/fs/dir", h.DeleteDir)
	router.POST("/fs/file", h.PostFile)
	router.GET("/fs/archive", h.GetArchive)
	router.POST("/process/run", h.PostRunCommand)
}

// resolve validates a client supplied path against the work root. The
// cleaned absolute path comes back, or false when the path escapes.
func (h *Handler) resolve(c *gin.Context, p string) (string, bool) {
	if p == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return "", false
	}

	cleaned := filepath.Clean(p)
	if h.workRoot != "" && cleaned != h.workRoot && !strings.HasPrefix(cleaned, h.workRoot+string(filepath.Separator)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "path is outside the agent work folder"})
		return "", false
	}

	return cleaned, true
}
