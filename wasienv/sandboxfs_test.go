package wasienv

import (
	"errors"
	"os"
	"testing"
)

func TestSandboxFSBasics(t *testing.T) {
	fs := NewSandboxFS()
	if err := fs.MkdirAll("/a/b"); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("/a/b/file", []byte("data")); err != nil {
		t.Fatal(err)
	}

	data, err := fs.ReadFile("/a/b/file")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "data" {
		t.Fatalf("content = %q", data)
	}

	fi, err := fs.Stat("/a/b/file")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Dir || fi.Size != 4 || fi.Name != "file" {
		t.Fatalf("stat = %+v", fi)
	}

	if _, err := fs.ReadFile("/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestSandboxFSWriteCreatesParents(t *testing.T) {
	fs := NewSandboxFS()
	if err := fs.WriteFile("/deep/path/file", []byte("x")); err != nil {
		t.Fatal(err)
	}
	fi, err := fs.Stat("/deep/path")
	if err != nil {
		t.Fatal(err)
	}
	if !fi.Dir {
		t.Fatal("parent is not a directory")
	}
}

func TestSandboxFSReadDirSorted(t *testing.T) {
	fs := NewSandboxFS()
	for _, name := range []string{"/c", "/a", "/b"} {
		if err := fs.WriteFile(name, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %v", entries)
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].Name != want {
			t.Fatalf("entry %d = %q, want %q", i, entries[i].Name, want)
		}
	}
}

func TestSandboxFSRemove(t *testing.T) {
	fs := NewSandboxFS()
	if err := fs.WriteFile("/dir/file", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/dir"); err == nil {
		t.Fatal("removed a non-empty directory")
	}
	if err := fs.Remove("/dir/file"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/dir"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/dir"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestSandboxFSMount(t *testing.T) {
	src := NewSandboxFS()
	if err := src.WriteFile("/bin/tool", []byte("elf")); err != nil {
		t.Fatal(err)
	}
	dst := NewSandboxFS()
	if err := dst.Mount("/opt", src, "/"); err != nil {
		t.Fatal(err)
	}
	data, err := dst.ReadFile("/opt/bin/tool")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "elf" {
		t.Fatalf("content = %q", data)
	}
}

func TestMemoryBudget(t *testing.T) {
	fs := NewSandboxFS()
	fs.SetMemoryLimiter(NewMemoryBudget(10))

	if err := fs.WriteFile("/a", make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("/b", make([]byte, 8)); err == nil {
		t.Fatal("write past the budget succeeded")
	}
	// overwriting trades the old charge for the new one
	if err := fs.WriteFile("/a", make([]byte, 2)); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("/b", make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/b"); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("/c", make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
}

func TestFsRootLimiterSelection(t *testing.T) {
	sandbox := SandboxRoot(NewSandboxFS())
	if err := sandbox.SetMemoryLimiter(NewMemoryBudget(1)); err != nil {
		t.Fatal(err)
	}

	backing := BackingRoot(NewSandboxFS())
	if err := backing.SetMemoryLimiter(NewMemoryBudget(1)); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}

	var empty FsRoot
	if err := empty.SetMemoryLimiter(NewMemoryBudget(1)); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}
