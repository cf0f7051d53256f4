package wasienv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPreopenDirBuild(t *testing.T) {
	var pd PreopenDir
	got, err := pd.Directory("src").Alias("///work").Read(true).Build()
	if err != nil {
		t.Fatal(err)
	}
	want := PreopenedDir{Path: "src", Alias: "work", Read: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preopen mismatch (-want +got):\n%s", diff)
	}
	if got.GuestName() != "work" {
		t.Fatalf("guest name = %q", got.GuestName())
	}
}

func TestPreopenCreateImpliesWrite(t *testing.T) {
	var pd PreopenDir
	got, err := pd.Directory("src").Create(true).Build()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Create || !got.Write {
		t.Fatalf("create without write: %+v", got)
	}
}

func TestPreopenBuildErrors(t *testing.T) {
	var noFlags PreopenDir
	var dirErr *PreopenDirError
	if _, err := noFlags.Directory("src").Build(); !errors.As(err, &dirErr) {
		t.Fatalf("err = %v, want PreopenDirError", err)
	}

	var noPath PreopenDir
	if _, err := noPath.Read(true).Build(); !errors.As(err, &dirErr) {
		t.Fatalf("err = %v, want PreopenDirError", err)
	}

	var badAlias PreopenDir
	var aliasErr *MapDirAliasError
	if _, err := badAlias.Directory("src").Alias("a\x00b").Read(true).Build(); !errors.As(err, &aliasErr) {
		t.Fatalf("err = %v, want MapDirAliasError", err)
	}
}

func TestGuestNameFallsBackToPath(t *testing.T) {
	p := PreopenedDir{Path: "/data/files", Read: true}
	if p.GuestName() != "data/files" {
		t.Fatalf("guest name = %q", p.GuestName())
	}
}
