package services

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/pkg/scheduler"
)

// ToolStager copies tool and build artifacts into the local tools root
// before a run starts, so installers only ever read local files. Sources
// are fetched on a worker pool; one slow download does not serialize the
// rest.
type ToolStager struct {
	fs        afero.Fs
	client    *retryablehttp.Client
	toolsRoot string
	nbWorkers int
	log       *zap.SugaredLogger
}

func NewToolStager(fs afero.Fs, toolsRoot string, nbWorkers int) *ToolStager {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	return &ToolStager{
		fs:        fs,
		client:    client,
		toolsRoot: toolsRoot,
		nbWorkers: nbWorkers,
		log:       zap.S().Named("stager"),
	}
}

// Stage fetches every artifact that declares a source. Artifacts marked
// copy_once are skipped when their target already exists.
func (t *ToolStager) Stage(ctx context.Context, tools []models.Tool) error {
	pool := scheduler.NewScheduler(t.nbWorkers)
	defer pool.Close()

	futures := make(map[string]*models.Future[models.Result[any]], len(tools))
	for _, tool := range tools {
		if tool.SourceType == models.SourceTypeNone {
			continue
		}

		tool := tool
		futures[tool.Name] = pool.AddWork(func(ctx context.Context) (any, error) {
			return nil, t.stageOne(ctx, tool)
		})
	}

	var failed []string
	for name, future := range futures {
		result, err := future.Wait(ctx)
		if err != nil {
			return err
		}
		if result.Err != nil {
			t.log.Errorw("failed to stage artifact", "name", name, "error", result.Err)
			failed = append(failed, fmt.Sprintf("%s: %v", name, result.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to stage %d artifact(s): %v", len(failed), failed)
	}
	return nil
}

func (t *ToolStager) stageOne(ctx context.Context, tool models.Tool) error {
	target, err := t.target(tool)
	if err != nil {
		return err
	}

	if tool.SourceCopyOnce {
		exists, err := afero.Exists(t.fs, target)
		if err != nil {
			return err
		}
		if exists {
			t.log.Debugw("artifact already staged", "name", tool.Name, "target", target)
			return nil
		}
	}

	switch tool.SourceType {
	case models.SourceTypeLocal:
		return t.copyLocal(tool, target)
	case models.SourceTypeHTTP:
		return t.download(ctx, tool, target)
	default:
		return fmt.Errorf("unknown source type %q for artifact %q", tool.SourceType, tool.Name)
	}
}

// target is where the artifact lands under the tools root: target_path
// when given, otherwise the base name of the source.
func (t *ToolStager) target(tool models.Tool) (string, error) {
	if path := tool.SourceProperties["target_path"]; path != "" {
		return filepath.Join(t.toolsRoot, path), nil
	}

	switch tool.SourceType {
	case models.SourceTypeLocal:
		source := tool.SourceProperties["source_path"]
		if source == "" {
			return "", fmt.Errorf("artifact %q has a local source without a source_path", tool.Name)
		}
		return filepath.Join(t.toolsRoot, filepath.Base(source)), nil
	case models.SourceTypeHTTP:
		url := tool.SourceProperties["url"]
		if url == "" {
			return "", fmt.Errorf("artifact %q has an http source without a url", tool.Name)
		}
		return filepath.Join(t.toolsRoot, filepath.Base(url)), nil
	default:
		return "", fmt.Errorf("unknown source type %q for artifact %q", tool.SourceType, tool.Name)
	}
}

func (t *ToolStager) copyLocal(tool models.Tool, target string) error {
	source := tool.SourceProperties["source_path"]
	if source == "" {
		return fmt.Errorf("artifact %q has a local source without a source_path", tool.Name)
	}

	isDir, err := afero.DirExists(t.fs, source)
	if err != nil {
		return err
	}
	if isDir {
		if err := t.fs.RemoveAll(target); err != nil {
			return err
		}
		return t.copyDir(source, target)
	}

	exists, err := afero.Exists(t.fs, source)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("could not copy %q to %q: the source does not exist", source, target)
	}
	return t.copyFile(source, target)
}

func (t *ToolStager) copyDir(source, target string) error {
	return afero.Walk(t.fs, source, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(target, rel)
		if info.IsDir() {
			return t.fs.MkdirAll(dest, 0o755)
		}
		return t.copyFile(path, dest)
	})
}

func (t *ToolStager) copyFile(source, target string) error {
	if err := t.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	in, err := t.fs.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := t.fs.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (t *ToolStager) download(ctx context.Context, tool models.Tool, target string) error {
	url := tool.SourceProperties["url"]
	if url == "" {
		return fmt.Errorf("artifact %q has an http source without a url", tool.Name)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("could not download %q: unexpected status %d", url, resp.StatusCode)
	}

	if err := t.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := t.fs.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
