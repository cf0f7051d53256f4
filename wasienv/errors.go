package wasienv

import (
	"errors"
	"fmt"
)

// Construction time errors returned from Builder.Build. None of them are
// retryable: the caller must fix the configuration and build again.
var (
	// ErrNoDefaultRuntime is reported when no runtime override was given
	// and the process-wide default runtime is not available.
	ErrNoDefaultRuntime = errors.New("no default runtime available, specify one with Builder.Runtime")

	// ErrBuilderConsumed is reported when Build is called twice on the
	// same builder instance.
	ErrBuilderConsumed = errors.New("environment builder already consumed")
)

// ArgumentError is reported when a command line argument contains a nul byte.
type ArgumentError struct {
	Arg string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument contains nul byte: %q", e.Arg)
}

// EnvFormatError is reported when an environment variable pair is malformed:
// the key contains a nul or `=` byte, or the value contains a nul byte.
type EnvFormatError struct {
	Detail string
}

func (e *EnvFormatError) Error() string {
	return "bad environment variable format: " + e.Detail
}

// PreopenDirNotFoundError is reported when a preopened directory does not
// exist on the host.
type PreopenDirNotFoundError struct {
	Path string
}

func (e *PreopenDirNotFoundError) Error() string {
	return fmt.Sprintf("preopened directory not found: %q", e.Path)
}

// PreopenDirError is reported when a preopen specification is incomplete,
// for example when no permission flag is set or no path was given.
type PreopenDirError struct {
	Detail string
}

func (e *PreopenDirError) Error() string {
	return "preopened directory error: " + e.Detail
}

// MapDirAliasError is reported when a mapped directory alias is malformed.
type MapDirAliasError struct {
	Alias string
}

func (e *MapDirAliasError) Error() string {
	return fmt.Sprintf("mapped dir alias has wrong format: %q", e.Alias)
}

// FsCreationError wraps an inconsistency reported by the filesystem
// collaborator while assembling the guest filesystem view.
type FsCreationError struct {
	Detail string
}

func (e *FsCreationError) Error() string {
	return "wasi filesystem creation error: " + e.Detail
}

// FsSetupError wraps a failure from the post-assembly filesystem setup
// callback.
type FsSetupError struct {
	Err error
}

func (e *FsSetupError) Error() string {
	return "wasi filesystem setup error: " + e.Err.Error()
}

func (e *FsSetupError) Unwrap() error { return e.Err }

// FileSystemError wraps an error returned by the filesystem collaborator.
type FileSystemError struct {
	Op  string
	Err error
}

func (e *FileSystemError) Error() string {
	return "filesystem error: " + e.Op + ": " + e.Err.Error()
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// InheritError is reported when the host environment cannot be inherited
// into the builder.
type InheritError struct {
	Detail string
}

func (e *InheritError) Error() string {
	return "wasi inherit error: " + e.Detail
}

// IncludePackageError is reported when an injected dependency package cannot
// be applied to the environment.
type IncludePackageError struct {
	Package string
	Err     error
}

func (e *IncludePackageError) Error() string {
	return fmt.Sprintf("wasi include package %q: %v", e.Package, e.Err)
}

func (e *IncludePackageError) Unwrap() error { return e.Err }

// ControlPlaneError wraps an invalid scheduling control sizing derived from
// the configured capabilities.
type ControlPlaneError struct {
	Err error
}

func (e *ControlPlaneError) Error() string {
	return "control plane error: " + e.Err.Error()
}

func (e *ControlPlaneError) Unwrap() error { return e.Err }

// ErrBadRequest class errors report collaborator misuse, such as setting a
// memory limiter on a non-sandbox filesystem backing.
var ErrBadRequest = errors.New("bad request")
