package engine

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/tetratelabs/wazero/sys"

	"github.com/guestbox/guestbox/wasienv"
)

func TestFSAdapter(t *testing.T) {
	sandbox := wasienv.NewSandboxFS()
	if err := sandbox.MkdirAll("/etc/sub"); err != nil {
		t.Fatal(err)
	}
	if err := sandbox.WriteFile("/etc/hosts", []byte("localhost")); err != nil {
		t.Fatal(err)
	}
	if err := sandbox.WriteFile("/top", []byte("x")); err != nil {
		t.Fatal(err)
	}

	if err := fstest.TestFS(FS(sandbox), "etc/hosts", "etc/sub", "top"); err != nil {
		t.Fatal(err)
	}
}

func TestInstantiateRejectsGarbage(t *testing.T) {
	e := NewWazero(context.TODO())
	defer e.Close(context.TODO())

	env, err := wasienv.NewBuilder("prog").Build()
	if err != nil {
		t.Fatal(err)
	}
	defer env.Cleanup(wasienv.ExitCodeNoexec)

	mod := wasienv.NewRawModule("prog", []byte("not a module"))
	if _, err := e.Instantiate(context.TODO(), env, mod); err == nil {
		t.Fatal("expected compile failure")
	}
}

func TestMapRunError(t *testing.T) {
	if err := mapRunError(nil); err != nil {
		t.Fatalf("nil mapped to %v", err)
	}

	var exitErr *wasienv.ExitError
	err := mapRunError(sys.NewExitError(3))
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("exit mapped to %v", err)
	}

	plain := errors.New("trap")
	if err := mapRunError(plain); err != plain {
		t.Fatalf("fault mapped to %v", err)
	}
}
