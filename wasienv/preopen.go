package wasienv

import "strings"

// PreopenedDir is a validated host directory exposure for the guest. It is
// immutable once built.
type PreopenedDir struct {
	Path   string
	Alias  string // guest visible name, empty to expose under Path
	Read   bool
	Write  bool
	Create bool
}

// GuestName returns the name the guest observes for this preopen.
func (p PreopenedDir) GuestName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return strings.TrimPrefix(p.Path, "/")
}

// PreopenDir accumulates a single directory exposure. The zero value is an
// empty specification; at least a path and one permission flag must be set
// before Build succeeds.
type PreopenDir struct {
	path   string
	alias  string
	read   bool
	write  bool
	create bool
}

// Directory points the preopen at the host path.
func (p *PreopenDir) Directory(path string) *PreopenDir {
	p.path = path
	return p
}

// Alias makes this preopened directory appear to the guest under the given
// name. Preopens mount at the guest root and multiple leading slashes equal
// a single one, so leading slashes are normalized away.
func (p *PreopenDir) Alias(alias string) *PreopenDir {
	p.alias = strings.TrimLeft(alias, "/")
	return p
}

// Read sets read permission on files in the directory.
func (p *PreopenDir) Read(toggle bool) *PreopenDir {
	p.read = toggle
	return p
}

// Write sets write permission on files in the directory.
func (p *PreopenDir) Write(toggle bool) *PreopenDir {
	p.write = toggle
	return p
}

// Create sets create permission on the directory. Create implies write.
func (p *PreopenDir) Create(toggle bool) *PreopenDir {
	p.create = toggle
	if toggle {
		p.write = true
	}
	return p
}

// Build validates the accumulated specification and produces the immutable
// record.
func (p *PreopenDir) Build() (PreopenedDir, error) {
	if !(p.read || p.write || p.create) {
		return PreopenedDir{}, &PreopenDirError{
			Detail: "preopened directories must have at least one of read, write, create permissions set",
		}
	}
	if p.path == "" {
		return PreopenedDir{}, &PreopenDirError{
			Detail: "preopened directories must point to a host directory",
		}
	}
	if p.alias != "" {
		if err := validateMapDirAlias(p.alias); err != nil {
			return PreopenedDir{}, err
		}
	}
	return PreopenedDir{
		Path:   p.path,
		Alias:  p.alias,
		Read:   p.read,
		Write:  p.write,
		Create: p.create,
	}, nil
}

// plainPreopen exposes a host directory at the guest root with all
// permissions.
func plainPreopen(path string) (PreopenedDir, error) {
	var pd PreopenDir
	return pd.Directory(path).Read(true).Write(true).Create(true).Build()
}

// mappedPreopen exposes a host directory under a distinct guest visible
// alias with all permissions.
func mappedPreopen(alias, path string) (PreopenedDir, error) {
	var pd PreopenDir
	return pd.Directory(path).Alias(alias).Read(true).Write(true).Create(true).Build()
}
