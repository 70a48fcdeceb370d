package config

import (
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/coffeebe4code/mono/pkg/cache"
)

// FileName is the optional config file in the workspace root.
const FileName = "mono.toml"

// Config describes all configuration options
type Config struct {
	Manifest string `default:"mono.json" usage:"Name of the manifest file in the workspace root"`
	Cache    struct {
		Dir     string `default:".mono-cache" usage:"Directory for cache markers, relative to the workspace root"`
		Backend string `default:"files" usage:"Marker storage (files or bolt)"`
	}
	Log struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSON lines instead of pretty console messages"`
	}
	Sources struct {
		Src    string `default:"src" usage:"Source directory of each project"`
		Assets string `default:"assets" usage:"Asset directory of each project"`
	}
	Runner struct {
		Parallel bool `default:"true" usage:"Run the targets of one project concurrently"`
		Jobs     int  `default:"0" usage:"Maximum number of concurrent commands (0 = unlimited)"`
	}
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. dirs lists
// the directories that may contain a mono.toml file; later files override earlier ones.
// Unknown MONO_* variables are tolerated since target commands inherit MONO_ROOT and friends.
func Loader(dirs ...string) (*Config, *aconfig.Loader) {
	files := make([]string, len(dirs))
	for idx, dir := range dirs {
		files[idx] = filepath.Join(dir, FileName)
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		EnvPrefix:        "MONO",
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from the environment and the mono.toml files in dirs.
func Load(dirs ...string) (*Config, error) {
	cfg, loader := Loader(dirs...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.Manifest == "" {
		return eris.New(`Invalid value for manifest: must not be empty`)
	}

	if filepath.Base(cfg.Manifest) != cfg.Manifest {
		return eris.Errorf(`Invalid value for manifest: %s (must be a file name, not a path)`, cfg.Manifest)
	}

	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	switch cfg.Cache.Backend {
	case cache.BackendFiles, cache.BackendBolt:
	default:
		return eris.Errorf(`Invalid value for cache.backend: %s (must be one of %s or %s)`, cfg.Cache.Backend, cache.BackendFiles, cache.BackendBolt)
	}

	if cfg.Sources.Src == "" {
		return eris.New(`Invalid value for sources.src: must not be empty`)
	}

	if cfg.Runner.Jobs < 0 {
		return eris.Errorf(`Invalid value for runner.jobs: %d (must not be negative)`, cfg.Runner.Jobs)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// CachePath returns the absolute cache directory for the workspace in root.
func (cfg *Config) CachePath(root string) string {
	if filepath.IsAbs(cfg.Cache.Dir) {
		return cfg.Cache.Dir
	}
	return filepath.Join(root, cfg.Cache.Dir)
}
