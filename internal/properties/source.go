package properties

import (
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/magiconair/properties"
)

// Source names used in resolution results.
const (
	SourceOverride        = "override"
	SourceSecrets         = "secrets"
	SourceSecretsFallback = "secrets-fallback"
	SourceLocal           = "local"
	SourceEnvironment     = "environment"
	SourceDefault         = "default"
)

// Source is a named key/value provider consulted by the Resolver.
type Source interface {
	Lookup(key string) (string, bool)
	Name() string
}

// MapSource serves values from an in-memory map. Used for caller overrides.
type MapSource struct {
	name   string
	values map[string]string
}

// NewMapSource copies values so later mutation of the caller's map has no effect.
func NewMapSource(name string, values map[string]string) *MapSource {
	cloned := make(map[string]string, len(values))
	for k, v := range values {
		cloned[k] = v
	}
	return &MapSource{name: name, values: cloned}
}

func (s *MapSource) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *MapSource) Name() string {
	return s.name
}

// Keys returns the sorted keys held by the source.
func (s *MapSource) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileSource is a Java-style .properties file loaded once at construction.
// A missing file yields an empty source.
type FileSource struct {
	name   string
	path   string
	exists bool
	props  *properties.Properties
}

// LoadFile reads a properties file. Only a file that exists but fails to parse
// returns an error.
func LoadFile(name, path string) (*FileSource, error) {
	src := &FileSource{name: name, path: path, props: properties.NewProperties()}
	if !fileExists(path) {
		return src, nil
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load properties %s: %w", path, err)
	}
	src.props = props
	src.exists = true
	return src, nil
}

// LoadFirstExisting loads the first path that exists and ignores the rest.
// Used for the secrets file and its fallback, which are never merged.
func LoadFirstExisting(candidates ...Candidate) (*FileSource, error) {
	for _, c := range candidates {
		if fileExists(c.Path) {
			return LoadFile(c.Name, c.Path)
		}
	}
	name := SourceSecrets
	if len(candidates) > 0 {
		name = candidates[0].Name
	}
	return &FileSource{name: name, props: properties.NewProperties()}, nil
}

// Candidate is a named file path for LoadFirstExisting.
type Candidate struct {
	Name string
	Path string
}

func (s *FileSource) Lookup(key string) (string, bool) {
	return s.props.Get(key)
}

func (s *FileSource) Name() string {
	return s.name
}

// Path returns the file path backing the source, empty when nothing was loaded.
func (s *FileSource) Path() string {
	return s.path
}

// Exists reports whether a file was actually loaded.
func (s *FileSource) Exists() bool {
	return s.exists
}

// EnvSource reads the process environment. Values from an optional dotenv
// file fill in keys the process environment does not define.
type EnvSource struct {
	lookupEnv func(string) (string, bool)
	dotenv    map[string]string
	dotenvErr error
}

// EnvOption configures EnvSource.
type EnvOption func(*EnvSource)

// WithLookupEnv overrides os.LookupEnv, primarily for tests.
func WithLookupEnv(fn func(string) (string, bool)) EnvOption {
	return func(s *EnvSource) {
		s.lookupEnv = fn
	}
}

// WithDotenvFile backs the source with a dotenv file. A missing file is ignored.
func WithDotenvFile(path string) EnvOption {
	return func(s *EnvSource) {
		if path == "" || !fileExists(path) {
			return
		}
		values, err := godotenv.Read(path)
		if err != nil {
			s.dotenvErr = fmt.Errorf("read dotenv %s: %w", path, err)
			return
		}
		s.dotenv = values
	}
}

// NewEnvSource builds an environment source.
func NewEnvSource(opts ...EnvOption) (*EnvSource, error) {
	s := &EnvSource{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(s)
	}
	if s.dotenvErr != nil {
		return nil, s.dotenvErr
	}
	return s, nil
}

func (s *EnvSource) Lookup(key string) (string, bool) {
	if v, ok := s.lookupEnv(key); ok {
		return v, true
	}
	v, ok := s.dotenv[key]
	return v, ok
}

func (s *EnvSource) Name() string {
	return SourceEnvironment
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
