// Package manifest handles loxbc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "loxbc.toml"

// DefaultCachePath is the cache location used when [cache] enables caching
// without naming a path. It is relative to the manifest directory.
const DefaultCachePath = ".loxbc/cache.db"

// Manifest represents a loxbc.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Lexer   LexerConfig  `toml:"lexer"`
	VM      VMConfig     `toml:"vm"`
	Cache   CacheConfig  `toml:"cache"`
	Output  OutputConfig `toml:"output"`

	// Dir is the directory containing the loxbc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// LexerConfig configures tokenization.
type LexerConfig struct {
	LineComments bool `toml:"line-comments"`
}

// VMConfig configures execution.
type VMConfig struct {
	Trace bool `toml:"trace"`
}

// CacheConfig configures the compiled chunk cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// OutputConfig configures what the CLI prints.
type OutputConfig struct {
	Disassemble bool `toml:"disassemble"`
}

// Load parses a loxbc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Cache.Enabled && m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a loxbc.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the absolute path of the chunk cache, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m == nil || !m.Cache.Enabled {
		return ""
	}
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
