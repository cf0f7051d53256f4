package binpkg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// packageManifest is the on-disk description of one package. Volume entries
// map guest-relative file names to host paths whose content is loaded at
// parse time.
type packageManifest struct {
	Name     string                       `yaml:"name"`
	Version  string                       `yaml:"version"`
	Commands map[string]string            `yaml:"commands"`
	Atoms    map[string]string            `yaml:"atoms"`
	Volumes  map[string]map[string]string `yaml:"volumes"`
}

// LoadManifest parses a YAML package manifest and loads the referenced
// files. Relative host paths resolve against the manifest's directory.
func LoadManifest(path string) ([]*BinaryPackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data, filepath.Dir(path))
}

// ParseManifest parses manifest content. Relative host paths resolve
// against baseDir.
func ParseManifest(data []byte, baseDir string) ([]*BinaryPackage, error) {
	var manifests []packageManifest
	if err := yaml.Unmarshal(data, &manifests); err != nil {
		return nil, fmt.Errorf("parse package manifest: %w", err)
	}

	pkgs := make([]*BinaryPackage, 0, len(manifests))
	for _, m := range manifests {
		if m.Name == "" {
			return nil, fmt.Errorf("package manifest entry without a name")
		}
		pkg := &BinaryPackage{
			Name:     m.Name,
			Version:  m.Version,
			Commands: m.Commands,
		}
		if len(m.Atoms) > 0 {
			pkg.Atoms = make(map[string][]byte, len(m.Atoms))
			for name, hostPath := range m.Atoms {
				content, err := loadHostFile(baseDir, hostPath)
				if err != nil {
					return nil, &ResolveError{Specifier: m.Name, Err: err}
				}
				pkg.Atoms[name] = content
			}
		}
		if len(m.Volumes) > 0 {
			pkg.Volumes = make(map[string]map[string][]byte, len(m.Volumes))
			for mount, files := range m.Volumes {
				vol := make(map[string][]byte, len(files))
				for name, hostPath := range files {
					content, err := loadHostFile(baseDir, hostPath)
					if err != nil {
						return nil, &ResolveError{Specifier: m.Name, Err: err}
					}
					vol[name] = content
				}
				pkg.Volumes[mount] = vol
			}
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

func loadHostFile(baseDir, hostPath string) ([]byte, error) {
	if !filepath.IsAbs(hostPath) {
		hostPath = filepath.Join(baseDir, hostPath)
	}
	return os.ReadFile(hostPath)
}
