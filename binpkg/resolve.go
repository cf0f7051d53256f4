package binpkg

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver turns a package specifier into a resolved package. Resolution
// happens at assembly and pre-run time only, never during suspension.
type Resolver interface {
	Resolve(ctx context.Context, specifier string) (*BinaryPackage, error)
}

// ResolveError is a layered resolution failure. Each layer names the
// specifier it failed on and wraps its cause, so diagnostics can walk the
// source chain with errors.Unwrap.
type ResolveError struct {
	Specifier string
	Err       error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Specifier, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// SourceChain renders every layer of a resolution failure, outermost first.
func SourceChain(err error) []string {
	var out []string
	for err != nil {
		out = append(out, err.Error())
		err = errors.Unwrap(err)
	}
	return out
}

// MemoryResolver resolves specifiers from a fixed in-memory set. The
// specifier format is "name" or "name@version".
type MemoryResolver struct {
	pkgs map[string]*BinaryPackage
}

// NewMemoryResolver creates a resolver over the given packages.
func NewMemoryResolver(pkgs ...*BinaryPackage) *MemoryResolver {
	m := make(map[string]*BinaryPackage, len(pkgs))
	for _, p := range pkgs {
		m[p.Name] = p
		m[p.Name+"@"+p.Version] = p
	}
	return &MemoryResolver{pkgs: m}
}

var errUnknownPackage = errors.New("unknown package")

// Resolve implements Resolver.
func (r *MemoryResolver) Resolve(_ context.Context, specifier string) (*BinaryPackage, error) {
	if p, ok := r.pkgs[specifier]; ok {
		return p, nil
	}
	// retry without the version pin for diagnostics layering
	if name, _, ok := strings.Cut(specifier, "@"); ok {
		if _, found := r.pkgs[name]; found {
			return nil, &ResolveError{
				Specifier: specifier,
				Err:       &ResolveError{Specifier: name, Err: errors.New("version not available")},
			}
		}
	}
	return nil, &ResolveError{Specifier: specifier, Err: errUnknownPackage}
}
