package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Folders maps workflow aliases (pending, approved, ...) to remote
// directories.
type Folders struct {
	Root    string            `yaml:"root"`
	Aliases map[string]string `yaml:"folders"`
}

// DefaultFolders is used when no folders file is configured or found.
func DefaultFolders() Folders {
	return Folders{
		Root: "/",
		Aliases: map[string]string{
			"pending":  "/documents/pending",
			"approved": "/documents/approved",
			"rejected": "/documents/rejected",
		},
	}
}

// LoadFolders reads a YAML folder map. A missing file yields the defaults.
func LoadFolders(p string) (Folders, error) {
	if p == "" {
		return DefaultFolders(), nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultFolders(), nil
	}
	if err != nil {
		return Folders{}, fmt.Errorf("read folders file: %w", err)
	}
	return ParseFolders(data)
}

// ParseFolders decodes and validates a folder map.
func ParseFolders(data []byte) (Folders, error) {
	var f Folders
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Folders{}, fmt.Errorf("parse folders file: %w", err)
	}
	if f.Root == "" {
		f.Root = "/"
	}
	if !path.IsAbs(f.Root) {
		return Folders{}, fmt.Errorf("folders root %q must be absolute", f.Root)
	}
	for alias, dir := range f.Aliases {
		if alias == "" || dir == "" {
			return Folders{}, fmt.Errorf("folders: empty alias or directory")
		}
		if !path.IsAbs(dir) {
			f.Aliases[alias] = path.Join(f.Root, dir)
		}
	}
	return f, nil
}

// Resolve returns the directory for alias. An absolute path that is not an
// alias is returned cleaned.
func (f Folders) Resolve(alias string) (string, bool) {
	if dir, ok := f.Aliases[strings.ToLower(alias)]; ok {
		return dir, true
	}
	if path.IsAbs(alias) {
		return path.Clean(alias), true
	}
	return "", false
}

// Names returns the alias names sorted.
func (f Folders) Names() []string {
	out := make([]string, 0, len(f.Aliases))
	for k := range f.Aliases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
