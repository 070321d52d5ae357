package handlers

import (
	"archive/tar"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	v1 "github.com/fancylads/bespoke/api/v1"
)

const maxUploadSize = 64 << 20 // 64Mb

// (POST /fs/dir)
func (h *Handler) PostDir(c *gin.Context) {
	var req v1.DirRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target, ok := h.resolve(c, req.Path)
	if !ok {
		return
	}

	if req.FailIfExists {
		if exists, err := afero.DirExists(h.fs, target); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		} else if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "directory already exists"})
			return
		}
	}

	if err := h.fs.MkdirAll(target, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create directory"})
		return
	}

	c.Status(http.StatusCreated)
}

// (DELETE /fs/dir)
func (h *Handler) DeleteDir(c *gin.Context) {
	target, ok := h.resolve(c, c.Query("path"))
	if !ok {
		return
	}

	// RemoveAll treats a missing tree as success, which is what the
	// wipe-and-recreate cycle between tests relies on.
	if err := h.fs.RemoveAll(target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove directory"})
		return
	}

	c.Status(http.StatusNoContent)
}

// (POST /fs/file)
func (h *Handler) PostFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	target, ok := h.resolve(c, c.PostForm("path"))
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer src.Close()

	if err := h.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create parent directory"})
		return
	}

	dst, err := h.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create file"})
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bytes": written})
}

// (GET /fs/archive)
func (h *Handler) GetArchive(c *gin.Context) {
	target, ok := h.resolve(c, c.Query("path"))
	if !ok {
		return
	}

	if exists, err := afero.DirExists(h.fs, target); err != nil || !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "directory not found"})
		return
	}

	c.Header("Content-Type", "application/x-tar")
	writer := tar.NewWriter(c.Writer)

	err := afero.Walk(h.fs, target, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(target, walkPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := writer.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := h.fs.Open(walkPath)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		// Headers are out already, closing the stream early is the
		// only signal left.
		c.Abort()
		return
	}

	if err := writer.Close(); err != nil {
		c.Abort()
	}
}
