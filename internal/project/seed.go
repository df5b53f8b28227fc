package project

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/validation"
)

// SeedDebounce lets a burst of editor events settle before the file is read.
const SeedDebounce = 200 * time.Millisecond

type SeedProject struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Geofence    geofence.Fence `yaml:"geofence"`
}

type SeedFile struct {
	Projects []SeedProject `yaml:"projects"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project seed %s: %w", path, err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse project seed %s: %w", path, err)
	}
	seen := map[string]bool{}
	for i, p := range f.Projects {
		if !validation.IsIdent(p.ID) {
			return nil, fmt.Errorf("project seed entry %d: invalid id %q", i, p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("project seed entry %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if strings.TrimSpace(p.Name) == "" {
			f.Projects[i].Name = p.ID
		}
		if err := p.Geofence.Validate(); err != nil {
			return nil, fmt.Errorf("project seed %q: geofence: %w", p.ID, err)
		}
	}
	return &f, nil
}

// ApplySeed creates missing projects and overwrites the name, description and
// geofence of existing ones. It returns how many projects were written.
func ApplySeed(ctx context.Context, repo Repository, f *SeedFile, now time.Time) (int, error) {
	var written int
	for _, sp := range f.Projects {
		p, err := repo.Get(ctx, sp.ID)
		switch {
		case cerr.IsCode(err, cerr.NotFound):
			p = &Project{ID: sp.ID, Name: sp.Name, Description: sp.Description, Geofence: sp.Geofence, CreatedAt: now, UpdatedAt: now}
			if err := repo.Create(ctx, p); err != nil {
				return written, err
			}
			written++
		case err != nil:
			return written, err
		default:
			if p.Name == sp.Name && p.Description == sp.Description && p.Geofence == sp.Geofence {
				continue
			}
			p.Name, p.Description, p.Geofence, p.UpdatedAt = sp.Name, sp.Description, sp.Geofence, now
			if err := repo.Update(ctx, p); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// SeedWatcher re-applies the seed file whenever its content changes.
type SeedWatcher struct {
	path     string
	repo     Repository
	lastHash [sha256.Size]byte
}

func NewSeedWatcher(path string, repo Repository) *SeedWatcher {
	return &SeedWatcher{path: path, repo: repo}
}

// Load applies the file once. Run calls it on start.
func (w *SeedWatcher) Load(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read project seed %s: %w", w.path, err)
	}
	hash := sha256.Sum256(data)
	if hash == w.lastHash {
		return nil
	}
	f, err := LoadSeed(w.path)
	if err != nil {
		return err
	}
	n, err := ApplySeed(ctx, w.repo, f, time.Now().UTC())
	if err != nil {
		return err
	}
	w.lastHash = hash
	slog.InfoContext(ctx, "project seed applied", "path", w.path, "projects", len(f.Projects), "written", n)
	return nil
}

// Run watches the seed file's directory until ctx is done. Watching the
// directory catches editors and deploy tools that replace the file by rename.
func (w *SeedWatcher) Run(ctx context.Context) error {
	if err := w.Load(ctx); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir, name := filepath.Dir(w.path), filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(SeedDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := w.Load(ctx); err != nil {
				slog.WarnContext(ctx, "project seed reload failed", "path", w.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "project seed watcher error", "error", err)
		}
	}
}
