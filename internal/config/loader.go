package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// projectMarker is the directory Tusk looks for to recognize a project
// root, mirroring the teacher's ".quorum" convention.
const projectMarker = ".tusk"

// Loader resolves config.json from a project root and merges it with
// environment variables and CLI flags via viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	projectDir string
	mu         sync.Mutex
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), envPrefix: "TUSK"}
}

// NewLoaderWithViper creates a loader using an existing viper instance,
// so CLI flag bindings made on the shared instance are honored.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envPrefix: "TUSK"}
}

// WithConfigFile sets an explicit config file path, bypassing discovery.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper { return l.v }

// ProjectDir returns the resolved project root. Valid after Load().
func (l *Loader) ProjectDir() string { return l.projectDir }

// ConfigFile returns the config file path actually used, if any.
func (l *Loader) ConfigFile() string {
	if l.configFile != "" {
		return l.configFile
	}
	return l.v.ConfigFileUsed()
}

// DiscoverProjectRoot walks up from startDir looking for a .tusk directory,
// the way a VCS root is discovered by walking up for .git. Returns
// startDir unchanged if no marker is found, so a bare `tusk init` in an
// empty directory still has somewhere to write.
func DiscoverProjectRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, projectMarker)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// Load loads configuration. Precedence (highest to lowest):
//  1. CLI flags (bound onto the shared viper instance by the caller)
//  2. Environment variables (TUSK_*)
//  3. config.json under the discovered project root
//  4. Built-in defaults (DefaultConfigJSON)
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.applyDefaults(); err != nil {
		return nil, fmt.Errorf("applying default config: %w", err)
	}

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	l.v.SetConfigType("json")

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root := DiscoverProjectRoot(cwd)
		l.projectDir = root
		l.v.SetConfigFile(filepath.Join(root, projectMarker, "config.json"))
	}

	if err := l.v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if l.projectDir == "" {
		if cfgFile := l.ConfigFile(); cfgFile != "" {
			l.projectDir = filepath.Dir(filepath.Dir(cfgFile))
		} else {
			l.projectDir, _ = os.Getwd()
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if !filepath.IsAbs(cfg.State.Path) {
		cfg.State.Path = filepath.Join(l.projectDir, cfg.State.Path)
	}
	if !filepath.IsAbs(cfg.Pricing.Path) {
		cfg.Pricing.Path = filepath.Join(l.projectDir, cfg.Pricing.Path)
	}
	if !filepath.IsAbs(cfg.Transcript.Dir) {
		cfg.Transcript.Dir = filepath.Join(l.projectDir, cfg.Transcript.Dir)
	}
	if cfg.SkillRuns.MarkerDir != "" && !filepath.IsAbs(cfg.SkillRuns.MarkerDir) {
		cfg.SkillRuns.MarkerDir = filepath.Join(l.projectDir, cfg.SkillRuns.MarkerDir)
	}

	return &cfg, nil
}

// applyDefaults seeds viper with DefaultConfigJSON so Load() always
// produces a usable Config even when no project has been initialized.
func (l *Loader) applyDefaults() error {
	var defaults map[string]interface{}
	if err := json.Unmarshal([]byte(DefaultConfigJSON), &defaults); err != nil {
		return err
	}
	for k, v := range defaults {
		l.v.SetDefault(k, v)
	}
	return nil
}
