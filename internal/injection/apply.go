package injection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgeworks/appforge/internal/models"
)

const resourceSkeleton = "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<resources>\n</resources>\n"

// Engine applies an InjectionPlan to a workspace. Replace and insert are
// idempotent; append is applied once per fresh workspace by construction.
type Engine struct {
	log *slog.Logger
}

func NewEngine(log *slog.Logger) *Engine {
	return &Engine{log: log.With(slog.String("component", "injection"))}
}

// Apply executes every point in plan order. The first failing point aborts
// the run; earlier writes are not rolled back since the workspace is
// destroyed on failure anyway.
func (e *Engine) Apply(ctx context.Context, workspacePath string, plan *models.InjectionPlan) error {
	for i, pt := range plan.Points {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := resolveTarget(workspacePath, pt.TargetFile)
		if err != nil {
			return err
		}
		if err := e.applyPoint(target, pt); err != nil {
			return fmt.Errorf("point %d (%s %s %s): %w", i, pt.Kind, pt.Action, pt.TargetFile, err)
		}
		e.log.Debug("injection point applied",
			slog.String("job_id", plan.JobID),
			slog.String("file", pt.TargetFile),
			slog.String("action", string(pt.Action)))
	}
	return nil
}

func (e *Engine) applyPoint(target string, pt models.InjectionPoint) error {
	switch pt.Action {
	case models.ActionReplace:
		return applyReplace(target, pt)
	case models.ActionInsert:
		return applyInsert(target, pt)
	case models.ActionAppend:
		return applyAppend(target, pt)
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrInjection, pt.Action)
	}
}

// applyReplace substitutes the placeholder with the content. When the
// placeholder is gone but the content is already present the point is a
// no-op, so re-applying a plan converges.
func applyReplace(target string, pt models.InjectionPoint) error {
	if pt.Placeholder == "" {
		return fmt.Errorf("%w: replace point without placeholder", models.ErrInjection)
	}
	data, err := os.ReadFile(target) // #nosec G304 - resolved against workspace
	if err != nil {
		return fmt.Errorf("%w: read target: %v", models.ErrInjection, err)
	}
	text := string(data)
	if !strings.Contains(text, pt.Placeholder) {
		if strings.Contains(text, pt.Content) {
			return nil
		}
		return fmt.Errorf("%w: placeholder %q not found in %s", models.ErrInjection, pt.Placeholder, filepath.Base(target))
	}
	text = strings.ReplaceAll(text, pt.Placeholder, pt.Content)
	return writeBack(target, text)
}

// applyInsert places the content before the resources anchor, creating a
// skeleton file when the target does not exist yet. Inserting content that
// is already present is a no-op.
func applyInsert(target string, pt models.InjectionPoint) error {
	data, err := os.ReadFile(target) // #nosec G304 - resolved against workspace
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(target), 0o750); mkErr != nil {
			return fmt.Errorf("%w: create parent dir: %v", models.ErrInjection, mkErr)
		}
		data = []byte(resourceSkeleton)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%w: read target: %v", models.ErrInjection, err)
	}
	text := string(data)
	if strings.Contains(text, pt.Content) {
		return nil
	}
	idx := strings.LastIndex(text, ResourcesAnchor)
	if idx < 0 {
		return fmt.Errorf("%w: anchor %q not found in %s", models.ErrInjection, ResourcesAnchor, filepath.Base(target))
	}
	text = text[:idx] + pt.Content + "\n" + text[idx:]
	return writeBack(target, text)
}

func applyAppend(target string, pt models.InjectionPoint) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("%w: create parent dir: %v", models.ErrInjection, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304
	if err != nil {
		return fmt.Errorf("%w: open target: %v", models.ErrInjection, err)
	}
	defer f.Close()
	content := pt.Content
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("%w: append: %v", models.ErrInjection, err)
	}
	return nil
}

func writeBack(target, text string) error {
	if err := os.WriteFile(target, []byte(text), 0o640); err != nil {
		return fmt.Errorf("%w: write target: %v", models.ErrInjection, err)
	}
	return nil
}

// resolveTarget joins a workspace-relative path and rejects traversal out of
// the workspace root.
func resolveTarget(workspacePath, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute target path %q", models.ErrInjection, rel)
	}
	joined := filepath.Join(workspacePath, rel)
	root := filepath.Clean(workspacePath) + string(os.PathSeparator)
	if !strings.HasPrefix(joined, root) {
		return "", fmt.Errorf("%w: target %q escapes workspace", models.ErrInjection, rel)
	}
	return joined, nil
}
