// Package binpkg defines dependency packages injected into guest
// environments and the resolver collaborator that produces them from
// package specifiers.
package binpkg

// BinaryPackage is a resolved dependency package: named module blobs, file
// volumes to union into the guest filesystem and commands the package
// contributes.
type BinaryPackage struct {
	Name    string
	Version string

	// Atoms are the package's named binary blobs. The entry atom shares
	// the package name.
	Atoms map[string][]byte

	// Volumes maps a guest mount path to the files placed under it,
	// keyed by path relative to the mount.
	Volumes map[string]map[string][]byte

	// Commands maps a command name to the atom implementing it.
	Commands map[string]string
}

// EntryAtom returns the package's entry binary, if it has one.
func (p *BinaryPackage) EntryAtom() ([]byte, bool) {
	if b, ok := p.Atoms[p.Name]; ok {
		return b, true
	}
	return nil, false
}
