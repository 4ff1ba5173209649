package properties

import (
	"fmt"
	"path/filepath"
)

// ChainConfig names the files that make up the standard source chain.
// Relative paths are resolved against Root.
type ChainConfig struct {
	Root                string
	Overrides           map[string]string
	SecretsFile         string
	SecretsFallbackFile string
	LocalFile           string
	DotenvFile          string
	LookupEnv           func(string) (string, bool)
}

// Chain holds the loaded sources of a standard chain.
type Chain struct {
	Overrides   *MapSource
	Secrets     *FileSource
	Local       *FileSource
	Environment *EnvSource
}

// LoadChain loads every file once. Files are read here and never again for the
// lifetime of the returned chain.
func LoadChain(cfg ChainConfig) (*Chain, error) {
	secrets, err := LoadFirstExisting(
		Candidate{Name: SourceSecrets, Path: cfg.path(cfg.SecretsFile)},
		Candidate{Name: SourceSecretsFallback, Path: cfg.path(cfg.SecretsFallbackFile)},
	)
	if err != nil {
		return nil, fmt.Errorf("secrets source: %w", err)
	}

	local, err := LoadFile(SourceLocal, cfg.path(cfg.LocalFile))
	if err != nil {
		return nil, fmt.Errorf("local source: %w", err)
	}

	envOpts := []EnvOption{WithDotenvFile(cfg.path(cfg.DotenvFile))}
	if cfg.LookupEnv != nil {
		envOpts = append(envOpts, WithLookupEnv(cfg.LookupEnv))
	}
	env, err := NewEnvSource(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("environment source: %w", err)
	}

	return &Chain{
		Overrides:   NewMapSource(SourceOverride, cfg.Overrides),
		Secrets:     secrets,
		Local:       local,
		Environment: env,
	}, nil
}

// Sources returns the chain in priority order.
func (c *Chain) Sources() []Source {
	return []Source{c.Overrides, c.Secrets, c.Local, c.Environment}
}

// Files returns the paths of the property files that were loaded.
func (c *Chain) Files() []string {
	var files []string
	for _, src := range []*FileSource{c.Secrets, c.Local} {
		if src.Exists() {
			files = append(files, src.Path())
		}
	}
	return files
}

// Paths returns every file the chain may read, present or not, resolved
// against Root. Callers use it to watch for files appearing later.
func (cfg ChainConfig) Paths() []string {
	var paths []string
	for _, name := range []string{cfg.SecretsFile, cfg.SecretsFallbackFile, cfg.LocalFile, cfg.DotenvFile} {
		if name != "" {
			paths = append(paths, cfg.path(name))
		}
	}
	return paths
}

func (cfg ChainConfig) path(name string) string {
	if name == "" || filepath.IsAbs(name) || cfg.Root == "" {
		return name
	}
	return filepath.Join(cfg.Root, name)
}
