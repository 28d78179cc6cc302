// Package workspace locates and loads luna.toml project configuration and
// resolves require()'d module names to files on disk.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ConfigName is the project configuration file looked up from a source
// file's directory upward.
const ConfigName = "luna.toml"

// Config represents a luna.toml project configuration file.
type Config struct {
	// Start lists the entry point files for batch checking, relative to the
	// config file. When empty, every .lua file under the project root is an
	// entry point.
	Start []string `toml:"start"`

	// PackagePath is a Lua-style search path: `;`-separated templates where
	// `?` stands for the module name with dots turned into path separators.
	// The `{start_dir}` placeholder expands to the directory of the file
	// that issued the require.
	PackagePath string `toml:"package_path"`
}

// DefaultPackagePath is used when luna.toml does not set one.
const DefaultPackagePath = "?.lua;?/init.lua"

// LoadConfig loads a luna.toml file from the given path.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &config, nil
}

// FindConfig searches for a luna.toml file starting from dir and walking up
// to parent directories, stopping at a .git boundary. Returns the path to
// luna.toml and the parsed config, or ("", nil, nil) if not found.
func FindConfig(dir string) (string, *Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, err
	}
	for {
		path := filepath.Join(dir, ConfigName)
		if _, err := os.Stat(path); err == nil {
			config, err := LoadConfig(path)
			if err != nil {
				return "", nil, err
			}
			return path, config, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", nil, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

// Workspace is a project root with its configuration.
type Workspace struct {
	// Root is the directory containing luna.toml, or the opened directory
	// when no config was found.
	Root   string
	Config *Config
}

// Open locates the workspace governing dir. A missing config yields a
// workspace rooted at dir with default settings.
func Open(dir string) (*Workspace, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	path, config, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return &Workspace{Root: dir, Config: &Config{}}, nil
	}
	return &Workspace{Root: filepath.Dir(path), Config: config}, nil
}

// packagePath returns the effective search path templates.
func (w *Workspace) packagePath() []string {
	p := w.Config.PackagePath
	if p == "" {
		p = DefaultPackagePath
	}
	return strings.Split(p, ";")
}

// Resolve maps a require()'d module name to a file path. fromFile is the
// file that issued the require; its directory substitutes `{start_dir}` in
// path templates. Relative templates are anchored at the workspace root.
func (w *Workspace) Resolve(name, fromFile string) (string, error) {
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator))
	startDir := w.Root
	if fromFile != "" {
		startDir = filepath.Dir(fromFile)
	}

	var tried []string
	for _, tmpl := range w.packagePath() {
		tmpl = strings.TrimSpace(tmpl)
		if tmpl == "" {
			continue
		}
		candidate := strings.ReplaceAll(tmpl, "{start_dir}", startDir)
		candidate = strings.ReplaceAll(candidate, "?", rel)
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(w.Root, candidate)
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}
	return "", errors.Errorf("module %q not found (tried %s)", name, strings.Join(tried, ", "))
}

// StartFiles returns the batch entry points: the configured start files, or
// every .lua file under the root when none are configured.
func (w *Workspace) StartFiles() ([]string, error) {
	if len(w.Config.Start) > 0 {
		var out []string
		for _, s := range w.Config.Start {
			path := s
			if !filepath.IsAbs(path) {
				path = filepath.Join(w.Root, path)
			}
			if _, err := os.Stat(path); err != nil {
				return nil, errors.Wrapf(err, "start file %s", s)
			}
			out = append(out, path)
		}
		return out, nil
	}
	return w.discover()
}

func (w *Workspace) discover() ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// skip hidden directories and the VCS metadata
			if path != w.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".lua") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", w.Root)
	}
	return out, nil
}
