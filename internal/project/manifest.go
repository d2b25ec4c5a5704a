package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"vigil/internal/engine"
	"vigil/internal/logging"
)

// Manifest is a decoded vigil.toml.
type Manifest struct {
	Path string `toml:"-"`
	Root string `toml:"-"`

	Workspace WorkspaceConfig `toml:"workspace"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Logging   LoggingConfig   `toml:"logging"`
	Server    ServerConfig    `toml:"server"`
	Projects  []ProjectConfig `toml:"project" validate:"unique=Name,dive"`
}

type WorkspaceConfig struct {
	Name string `toml:"name"`
	// ModulePrefix is prepended to project directories to form import paths
	// when a project does not set import_path.
	ModulePrefix string `toml:"module_prefix"`
}

type AnalysisConfig struct {
	Enabled     *bool    `toml:"enabled"`
	Interval    Duration `toml:"interval"`
	StartupPoll Duration `toml:"startup_poll"`
	MaxParallel int      `toml:"max_parallel" validate:"gte=0,lte=1024"`
	// CacheFile is a msgpack snapshot of results, relative to the root.
	CacheFile string `toml:"cache_file"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
	Output string `toml:"output"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

// ProjectConfig is one [[project]] entry.
type ProjectConfig struct {
	Name       string            `toml:"name" validate:"required"`
	Dir        string            `toml:"dir" validate:"required"`
	ImportPath string            `toml:"import_path"`
	References []string          `toml:"references" validate:"dive,required"`
	Rules      map[string]string `toml:"rules"`
}

// Duration decodes "250ms" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %s", v)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var validate = validator.New()

// Discover finds vigil.toml upward from startDir and loads it.
func Discover(startDir string) (*Manifest, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrManifestNotFound
	}
	return LoadManifest(path)
}

// LoadManifest decodes and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, validationError(err))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.Path = abs
	m.Root = filepath.Dir(abs)
	if !meta.IsDefined("analysis", "interval") {
		m.Analysis.Interval.Duration = engine.DefaultConfig().Interval
	}
	if !meta.IsDefined("analysis", "startup_poll") {
		m.Analysis.StartupPoll.Duration = engine.DefaultConfig().StartupPoll
	}
	if m.Workspace.Name == "" {
		m.Workspace.Name = filepath.Base(m.Root)
	}
	names := make(map[string]bool, len(m.Projects))
	for _, p := range m.Projects {
		names[p.Name] = true
	}
	for _, p := range m.Projects {
		for _, ref := range p.References {
			if ref == p.Name {
				return nil, fmt.Errorf("%s: project %q references itself", path, p.Name)
			}
		}
	}
	return &m, nil
}

// validationError flattens validator output into one readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Manifest.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// EngineConfig maps [analysis] onto the engine settings.
func (m *Manifest) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if m.Analysis.Enabled != nil {
		cfg.Enabled = *m.Analysis.Enabled
	}
	cfg.Interval = m.Analysis.Interval.Duration
	cfg.StartupPoll = m.Analysis.StartupPoll.Duration
	cfg.MaxParallel = m.Analysis.MaxParallel
	return cfg
}

// CachePath returns the absolute cache file path, or "" when caching is off.
func (m *Manifest) CachePath() string {
	if m.Analysis.CacheFile == "" {
		return ""
	}
	if filepath.IsAbs(m.Analysis.CacheFile) {
		return m.Analysis.CacheFile
	}
	return filepath.Join(m.Root, filepath.FromSlash(m.Analysis.CacheFile))
}

func (m *Manifest) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  m.Logging.Level,
		Format: m.Logging.Format,
		Output: m.Logging.Output,
	}
}
