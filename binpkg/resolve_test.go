package binpkg

import (
	"context"
	"errors"
	"testing"
)

func testPackage() *BinaryPackage {
	return &BinaryPackage{
		Name:    "coreutils",
		Version: "1.2.3",
		Atoms: map[string][]byte{
			"coreutils": []byte("entry"),
			"ls":        []byte("ls-blob"),
		},
		Commands: map[string]string{"ls": "ls"},
	}
}

func TestMemoryResolver(t *testing.T) {
	r := NewMemoryResolver(testPackage())

	for _, spec := range []string{"coreutils", "coreutils@1.2.3"} {
		p, err := r.Resolve(context.TODO(), spec)
		if err != nil {
			t.Fatalf("%s: %v", spec, err)
		}
		if p.Name != "coreutils" {
			t.Fatalf("%s resolved to %q", spec, p.Name)
		}
	}
}

func TestResolveUnknownPackage(t *testing.T) {
	r := NewMemoryResolver(testPackage())

	_, err := r.Resolve(context.TODO(), "missing")
	var resErr *ResolveError
	if !errors.As(err, &resErr) {
		t.Fatalf("err = %v, want ResolveError", err)
	}
	if resErr.Specifier != "missing" {
		t.Fatalf("specifier = %q", resErr.Specifier)
	}
}

func TestResolveVersionMismatchLayers(t *testing.T) {
	r := NewMemoryResolver(testPackage())

	_, err := r.Resolve(context.TODO(), "coreutils@9.9.9")
	if err == nil {
		t.Fatal("expected resolution failure")
	}

	chain := SourceChain(err)
	if len(chain) != 3 {
		t.Fatalf("source chain = %v", chain)
	}
	// the outer layer names the pinned specifier, the inner the package
	var outer *ResolveError
	if !errors.As(err, &outer) || outer.Specifier != "coreutils@9.9.9" {
		t.Fatalf("outer layer = %v", err)
	}
	var inner *ResolveError
	if !errors.As(outer.Err, &inner) || inner.Specifier != "coreutils" {
		t.Fatalf("inner layer = %v", outer.Err)
	}
}

func TestEntryAtom(t *testing.T) {
	p := testPackage()
	entry, ok := p.EntryAtom()
	if !ok || string(entry) != "entry" {
		t.Fatalf("entry = %q, %v", entry, ok)
	}

	noEntry := &BinaryPackage{Name: "other"}
	if _, ok := noEntry.EntryAtom(); ok {
		t.Fatal("entry atom on a package without atoms")
	}
}
