// Package config owns the per-project sync configuration: a JSON file under
// ~/.podmirror/<project>/config.json, created by `podmirror init` and loaded
// immutably at startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/podmirror/podmirror/internal/utils"
)

const (
	DefaultMaxWorkers    = 10
	DefaultBulkThreshold = 100
	DefaultDebounceMs    = 1000
)

var ErrNotFound = errors.New("project config not found")

// Config is the immutable startup configuration for one project.
type Config struct {
	Cluster          string   `json:"cluster,omitempty"`
	Namespace        string   `json:"namespace"`
	PodLabel         string   `json:"pod_label"`
	RemotePath       string   `json:"remote_path"`
	LocalPath        string   `json:"local_path"`
	ExcludePaths     []string `json:"exclude_paths,omitempty"`
	KubectlCommand   []string `json:"kubectl_command,omitempty"`
	MaxWorkers       int      `json:"max_workers"`
	BulkThreshold    int      `json:"bulk_threshold"`
	DebounceMs       int      `json:"debounce_ms"`
	NoWatch          bool     `json:"no_watch"`
	SkipVerify       bool     `json:"skip_verify"`
	PropagateDeletes bool     `json:"propagate_deletes"`
	Debug            bool     `json:"debug"`

	// Path of the loaded config file; not persisted.
	Path string `json:"-"`
}

// BaseDir is the root of all project configs, overridable for tests via
// PODMIRROR_HOME.
func BaseDir() string {
	if dir := os.Getenv("PODMIRROR_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".podmirror")
}

// ProjectDir is where one project keeps its config and lock file.
func ProjectDir(project string) string {
	return filepath.Join(BaseDir(), project)
}

func configPath(project string) string {
	return filepath.Join(ProjectDir(project), "config.json")
}

// LockPath is the flock target guarding one project against concurrent syncs.
func LockPath(project string) string {
	return filepath.Join(ProjectDir(project), "sync.lock")
}

// Load reads and normalizes a project's config. Missing file maps to
// ErrNotFound so callers can print a friendly hint.
func Load(project string) (*Config, error) {
	path := configPath(project)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, project)
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.BulkThreshold <= 0 {
		c.BulkThreshold = DefaultBulkThreshold
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if len(c.KubectlCommand) == 0 {
		c.KubectlCommand = []string{"kubectl"}
	}
}

// Save writes the config to the project dir, creating it if needed.
func (c *Config) Save(project string) error {
	path := configPath(project)
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate enforces the startup preconditions. Failures here are the only
// fatal errors of a sync run; nothing is transferred before they pass.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"namespace", c.Namespace},
		{"pod_label", c.PodLabel},
		{"remote_path", c.RemotePath},
		{"local_path", c.LocalPath},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config missing required fields: %s", strings.Join(missing, ", "))
	}

	local, err := utils.ResolvePath(c.LocalPath)
	if err != nil {
		return fmt.Errorf("local_path: %w", err)
	}
	if !utils.DirExists(local) {
		return fmt.Errorf("local_path does not exist: %s", local)
	}
	c.LocalPath = local
	return nil
}

// Init scaffolds a config for a new project derived from the local path. An
// existing config is left alone and reported back.
func Init(localPath string) (project string, path string, created bool, err error) {
	abs, err := utils.ResolvePath(localPath)
	if err != nil {
		return "", "", false, err
	}
	if !utils.DirExists(abs) {
		return "", "", false, fmt.Errorf("local path does not exist: %s", abs)
	}

	project = filepath.Base(abs)
	path = configPath(project)

	if utils.FileExists(path) {
		// Backfill local_path on configs created before it was recorded.
		cfg, loadErr := Load(project)
		if loadErr == nil && cfg.LocalPath == "" {
			cfg.LocalPath = abs
			if saveErr := cfg.Save(project); saveErr != nil {
				return project, path, false, saveErr
			}
		}
		return project, path, false, nil
	}

	cfg := &Config{
		Namespace:     "your-namespace",
		PodLabel:      "app=your-app",
		RemotePath:    "/path/in/pod",
		LocalPath:     abs,
		ExcludePaths:  []string{"node_modules", "dist", "target"},
		MaxWorkers:    DefaultMaxWorkers,
		BulkThreshold: DefaultBulkThreshold,
		DebounceMs:    DefaultDebounceMs,
	}
	if err := cfg.Save(project); err != nil {
		return project, path, false, err
	}
	return project, path, true, nil
}

// ProjectInfo is one row of `podmirror projects`.
type ProjectInfo struct {
	Name       string
	LocalPath  string
	RemotePath string
	Namespace  string
	Cluster    string
}

// ListProjects scans the base dir for valid project configs.
func ListProjects() ([]ProjectInfo, error) {
	entries, err := os.ReadDir(BaseDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var projects []ProjectInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cfg, err := Load(entry.Name())
		if err != nil {
			continue
		}
		projects = append(projects, ProjectInfo{
			Name:       entry.Name(),
			LocalPath:  cfg.LocalPath,
			RemotePath: cfg.RemotePath,
			Namespace:  cfg.Namespace,
			Cluster:    cfg.Cluster,
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}
