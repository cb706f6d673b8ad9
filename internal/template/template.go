// Package template materializes the base app template into a job workspace,
// either from a local directory or a git remote, and resolves the
// {{PLACEHOLDER}} tokens the template carries.
package template

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)

// substitutable file extensions. Binary assets pass through untouched.
var textExtensions = map[string]bool{
	".xml": true, ".gradle": true, ".kts": true, ".properties": true,
	".kt": true, ".java": true, ".json": true, ".md": true, ".txt": true,
	".pro": true, ".yaml": true, ".yml": true,
}

// Materializer copies or clones the base template and rewrites its tokens.
type Materializer struct {
	cfg config.TemplateConfig
	log *slog.Logger
}

func NewMaterializer(cfg config.TemplateConfig, log *slog.Logger) *Materializer {
	return &Materializer{cfg: cfg, log: log.With(slog.String("component", "template"))}
}

// Materialize populates workspacePath with the template contents and
// resolves every placeholder from the partner configuration. A token with no
// known value fails the job: shipping a half-branded template is worse than
// failing loudly.
func (m *Materializer) Materialize(ctx context.Context, workspacePath string, cfg models.PartnerConfig) error {
	if isGitSource(m.cfg.Source) {
		if err := m.clone(ctx, workspacePath); err != nil {
			return err
		}
	} else {
		if err := copyTree(m.cfg.Source, workspacePath); err != nil {
			return err
		}
	}
	return m.substitute(ctx, workspacePath, cfg)
}

func (m *Materializer) clone(ctx context.Context, workspacePath string) error {
	opts := &git.CloneOptions{
		URL:   m.cfg.Source,
		Depth: 1,
	}
	if m.cfg.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(m.cfg.Branch)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, workspacePath, false, opts); err != nil {
		return fmt.Errorf("%w: clone template %s: %v", models.ErrSystem, m.cfg.Source, err)
	}
	// The job workspace is not a repository; drop the clone metadata.
	if err := os.RemoveAll(filepath.Join(workspacePath, ".git")); err != nil {
		return fmt.Errorf("%w: strip clone metadata: %v", models.ErrSystem, err)
	}
	m.log.Debug("template cloned", slog.String("source", m.cfg.Source), slog.String("branch", m.cfg.Branch))
	return nil
}

func (m *Materializer) substitute(ctx context.Context, workspacePath string, cfg models.PartnerConfig) error {
	values := placeholderValues(cfg)
	return filepath.WalkDir(workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walk template: %v", models.ErrSystem, err)
		}
		if d.IsDir() {
			return ctx.Err()
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path) // #nosec G304 - workspace-internal
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", models.ErrSystem, path, err)
		}
		if !placeholderRe.Match(data) {
			return nil
		}

		var unresolved []string
		out := placeholderRe.ReplaceAllFunc(data, func(tok []byte) []byte {
			name := string(placeholderRe.FindSubmatch(tok)[1])
			v, ok := values[name]
			if !ok {
				unresolved = append(unresolved, name)
				return tok
			}
			return []byte(v)
		})
		if len(unresolved) > 0 {
			rel, _ := filepath.Rel(workspacePath, path)
			return fmt.Errorf("%w: unresolved template placeholders %v in %s", models.ErrSystem, unresolved, rel)
		}
		if err := os.WriteFile(path, out, 0o640); err != nil {
			return fmt.Errorf("%w: write %s: %v", models.ErrSystem, path, err)
		}
		return nil
	})
}

func placeholderValues(cfg models.PartnerConfig) map[string]string {
	return map[string]string{
		"APP_NAME":        cfg.AppName,
		"PACKAGE_NAME":    cfg.PackageName,
		"VERSION_NAME":    cfg.Version,
		"VERSION_CODE":    strconv.Itoa(cfg.VersionCode),
		"API_BASE_URL":    cfg.API.BaseURL,
		"ENVIRONMENT":     cfg.API.Environment,
		"PRIMARY_COLOR":   cfg.Branding.PrimaryColor,
		"SECONDARY_COLOR": cfg.Branding.SecondaryColor,
	}
}

func isGitSource(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasSuffix(source, ".git")
}

// copyTree copies a local template directory, preserving layout but not
// permissions beyond the regular/executable split.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: template source %s: %v", models.ErrSystem, src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: template source %s is not a directory", models.ErrSystem, src)
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walk %s: %v", models.ErrSystem, src, err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrSystem, err)
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - template-internal
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", models.ErrSystem, src, err)
	}
	defer in.Close()

	mode := os.FileMode(0o640)
	if info, err := in.Stat(); err == nil && info.Mode()&0o100 != 0 {
		mode = 0o750
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrSystem, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy %s: %v", models.ErrSystem, dst, err)
	}
	return out.Close()
}
