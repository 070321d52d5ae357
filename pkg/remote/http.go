package remote

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	v1 "github.com/fancylads/bespoke/api/v1"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

const (
	defaultAgentPort    = 8357
	defaultRetryMax     = 3
	maxErrorBodyLength  = 2048
	archiveValueNameKey = "file"
)

// HTTPDialer dials bespoke agents over HTTP.
type HTTPDialer struct {
	port  int
	token string
	fs    afero.Fs
	log   *zap.SugaredLogger
}

// HTTPDialerOption configures an HTTPDialer.
type HTTPDialerOption func(*HTTPDialer)

// WithAgentPort overrides the port the agent listens on.
func WithAgentPort(port int) HTTPDialerOption {
	return func(d *HTTPDialer) {
		d.port = port
	}
}

// WithToken attaches a bearer token to every agent request.
func WithToken(token string) HTTPDialerOption {
	return func(d *HTTPDialer) {
		d.token = token
	}
}

// WithFs overrides the filesystem used for the local side of transfers.
func WithFs(fs afero.Fs) HTTPDialerOption {
	return func(d *HTTPDialer) {
		d.fs = fs
	}
}

// NewHTTPDialer returns a Dialer for agents reachable over plain HTTP.
func NewHTTPDialer(opts ...HTTPDialerOption) *HTTPDialer {
	dialer := &HTTPDialer{
		port: defaultAgentPort,
		fs:   afero.NewOsFs(),
		log:  zap.S().Named("remote"),
	}
	for _, opt := range opts {
		opt(dialer)
	}
	return dialer
}

// Dial returns a Session bound to the agent on host. Dial itself performs
// no network I/O, the first request does.
func (d *HTTPDialer) Dial(_ context.Context, host string) (Session, error) {
	if host == "" {
		return nil, bkErrors.NewValidationError("host", "host must not be empty")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = defaultRetryMax
	retryClient.Logger = nil

	return &httpSession{
		baseURL: fmt.Sprintf("http://%s:%d", host, d.port),
		token:   d.token,
		client:  retryClient,
		fs:      d.fs,
		log:     d.log.With("host", host),
	}, nil
}

type httpSession struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
	fs      afero.Fs
	log     *zap.SugaredLogger
}

func (s *httpSession) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/api/v1/ping", nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return s.checkStatus(resp, http.StatusOK)
}

func (s *httpSession) CreateDir(ctx context.Context, dirPath string) error {
	body, err := json.Marshal(v1.DirRequest{Path: dirPath})
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodPost, "/api/v1/fs/dir", body, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return s.checkStatus(resp, http.StatusCreated)
}

func (s *httpSession) DeleteDir(ctx context.Context, dirPath string) error {
	resp, err := s.do(ctx, http.MethodDelete, "/api/v1/fs/dir?"+pathQuery(dirPath), nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return s.checkStatus(resp, http.StatusNoContent)
}

func (s *httpSession) CopyFile(ctx context.Context, localPath, remotePath string) error {
	content, err := afero.ReadFile(s.fs, localPath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(archiveValueNameKey, filepath.Base(localPath))
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := writer.WriteField("path", remotePath); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodPost, "/api/v1/fs/file", buf.Bytes(), writer.FormDataContentType())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return s.checkStatus(resp, http.StatusCreated)
}

func (s *httpSession) CopyDir(ctx context.Context, localDir, remoteDir string) error {
	localDir = filepath.Clean(localDir)

	return afero.Walk(s.fs, localDir, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, walkPath)
		if err != nil {
			return err
		}
		remotePath := joinRemote(remoteDir, rel)

		if info.IsDir() {
			if rel == "." {
				return s.CreateDir(ctx, remoteDir)
			}
			return s.CreateDir(ctx, remotePath)
		}
		return s.CopyFile(ctx, walkPath, remotePath)
	})
}

func (s *httpSession) FetchDir(ctx context.Context, remoteDir, localDir string) error {
	resp, err := s.do(ctx, http.MethodGet, "/api/v1/fs/archive?"+pathQuery(remoteDir), nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := s.checkStatus(resp, http.StatusOK); err != nil {
		return err
	}

	return s.extract(resp.Body, localDir)
}

func (s *httpSession) RunCommand(
	ctx context.Context, command, workDir string, timeout int, params []string, env map[string]string,
) (int, string, error) {
	body, err := json.Marshal(v1.RunCommandRequest{
		Command:        command,
		WorkDir:        workDir,
		TimeoutSeconds: timeout,
		Params:         params,
		Env:            env,
	})
	if err != nil {
		return 0, "", err
	}

	resp, err := s.do(ctx, http.MethodPost, "/api/v1/process/run", body, "application/json")
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := s.checkStatus(resp, http.StatusOK); err != nil {
		return 0, "", err
	}

	var result v1.RunCommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, "", err
	}

	return result.ExitCode, result.Output, nil
}

func (s *httpSession) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (s *httpSession) do(ctx context.Context, method, route string, body []byte, contentType string) (*http.Response, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.baseURL+route, reqBody)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	s.log.Debugw("agent request", "method", method, "route", route)

	return s.client.Do(req)
}

func (s *httpSession) checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))

	var agentErr v1.ErrorResponse
	if err := json.Unmarshal(body, &agentErr); err == nil && agentErr.Error != "" {
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, agentErr.Error)
	}

	return fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(body))
}

// extract unpacks a tar stream under localDir.
func (s *httpSession) extract(r io.Reader, localDir string) error {
	reader := tar.NewReader(r)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(header.Name)
		if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return fmt.Errorf("archive entry escapes destination: %s", header.Name)
		}
		target := filepath.Join(localDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := s.fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			file, err := s.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, reader); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		}
	}
}

func pathQuery(p string) string {
	return url.Values{"path": []string{p}}.Encode()
}

// joinRemote joins remote path segments with forward slashes. Agents on
// Windows accept forward slashes in absolute paths.
func joinRemote(dir, rel string) string {
	return path.Join(strings.ReplaceAll(dir, "\\", "/"), filepath.ToSlash(rel))
}
