package wasienv

import (
	"os"
	"strings"

	"github.com/guestbox/guestbox/binpkg"
)

type envPair struct {
	key   string
	value []byte
}

// EnvPair is one environment variable for bulk insertion. Order is
// preserved and duplicate keys are permitted.
type EnvPair struct {
	Key   string
	Value []byte
}

// MapDirEntry is one aliased directory mapping for bulk insertion.
type MapDirEntry struct {
	Alias string
	Path  string
}

// Builder accumulates every input of a guest environment and is consumed
// exactly once by Build. Every mutation method returns the builder so calls
// chain; calling them as statements works the same way and both styles may
// be mixed freely on one instance.
//
// Usage:
//
//	env, err := wasienv.NewBuilder("wasi-prog-name").
//		Env("ENV_VAR", "ENV_VAL").
//		Arg("--verbose").
//		PreopenDir("src").
//		MapDir("name_guest_sees", "path/on/host/fs").
//		Build()
type Builder struct {
	args        []string
	envs        []envPair
	preopens    []PreopenedDir
	vfsPreopens []string

	stdin  File
	stdout File
	stderr File

	fs      FsRoot
	runtime Runtime

	uses        []*binpkg.BinaryPackage
	mapCommands map[string]string

	capabilities Capabilities
	setupFs      func(*Inodes, *FsState) error

	err      error // first deferred specification error
	consumed bool
}

// NewBuilder creates an empty builder. The program name becomes argument
// zero; the argument sequence is never empty.
func NewBuilder(programName string) *Builder {
	return &Builder{
		args:         []string{programName},
		mapCommands:  make(map[string]string),
		capabilities: DefaultCapabilities(),
	}
}

func (b *Builder) recordErr(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// Arg appends a command line argument. Arguments must not contain the nul
// byte; violations are reported by Build.
func (b *Builder) Arg(arg string) *Builder {
	b.args = append(b.args, arg)
	return b
}

// Args appends multiple arguments.
func (b *Builder) Args(args ...string) *Builder {
	for _, a := range args {
		b.Arg(a)
	}
	return b
}

// GetArgs returns the accumulated arguments.
func (b *Builder) GetArgs() []string { return b.args }

// Env appends an environment variable pair. Keys must not contain nul or
// `=` bytes and values must not contain nul bytes; violations are reported
// by Build.
func (b *Builder) Env(key, value string) *Builder {
	return b.EnvBytes(key, []byte(value))
}

// EnvBytes appends an environment variable pair with a raw byte value.
func (b *Builder) EnvBytes(key string, value []byte) *Builder {
	b.envs = append(b.envs, envPair{key: key, value: append([]byte(nil), value...)})
	return b
}

// Envs appends multiple environment variable pairs in order.
func (b *Builder) Envs(pairs ...EnvPair) *Builder {
	for _, p := range pairs {
		b.EnvBytes(p.Key, p.Value)
	}
	return b
}

// GetEnvs returns the accumulated pairs as key, value tuples.
func (b *Builder) GetEnvs() []EnvPair {
	out := make([]EnvPair, 0, len(b.envs))
	for _, p := range b.envs {
		out = append(out, EnvPair{Key: p.key, Value: p.value})
	}
	return out
}

// PreopenDir exposes a host directory at the guest root with read, write
// and create permissions.
func (b *Builder) PreopenDir(path string) *Builder {
	pd, err := plainPreopen(path)
	if err != nil {
		b.recordErr(err)
		return b
	}
	b.preopens = append(b.preopens, pd)
	return b
}

// PreopenDirs exposes multiple host directories at the guest root.
func (b *Builder) PreopenDirs(paths ...string) *Builder {
	for _, p := range paths {
		b.PreopenDir(p)
	}
	return b
}

// PreopenBuild exposes a directory configured through the preopen builder.
//
//	b.PreopenBuild(func(p *wasienv.PreopenDir) *wasienv.PreopenDir {
//		return p.Directory("src").Alias("dot").Read(true)
//	})
func (b *Builder) PreopenBuild(fn func(*PreopenDir) *PreopenDir) *Builder {
	var pd PreopenDir
	built, err := fn(&pd).Build()
	if err != nil {
		b.recordErr(err)
		return b
	}
	b.preopens = append(b.preopens, built)
	return b
}

// MapDir exposes a host directory under a different guest visible name with
// read, write and create permissions.
func (b *Builder) MapDir(alias, path string) *Builder {
	pd, err := mappedPreopen(alias, path)
	if err != nil {
		b.recordErr(err)
		return b
	}
	b.preopens = append(b.preopens, pd)
	return b
}

// MapDirs exposes multiple aliased directories in order.
func (b *Builder) MapDirs(entries ...MapDirEntry) *Builder {
	for _, e := range entries {
		b.MapDir(e.Alias, e.Path)
	}
	return b
}

// VirtualPreopenDir preopens the given path from the virtual filesystem
// itself rather than a host directory.
func (b *Builder) VirtualPreopenDir(path string) *Builder {
	b.vfsPreopens = append(b.vfsPreopens, path)
	return b
}

// VirtualPreopenDirs preopens multiple virtual filesystem paths.
func (b *Builder) VirtualPreopenDirs(paths ...string) *Builder {
	for _, p := range paths {
		b.VirtualPreopenDir(p)
	}
	return b
}

// Stdin overwrites the guest stdin. Only the last value before Build is
// used; when unset a default console input is bound.
func (b *Builder) Stdin(f File) *Builder {
	b.stdin = f
	return b
}

// Stdout overwrites the guest stdout. When unset the assembled filesystem's
// own default stands.
func (b *Builder) Stdout(f File) *Builder {
	b.stdout = f
	return b
}

// Stderr overwrites the guest stderr. When unset the assembled filesystem's
// own default stands.
func (b *Builder) Stderr(f File) *Builder {
	b.stderr = f
	return b
}

// InheritStdio binds the host process stdio as the guest's stdio overrides.
func (b *Builder) InheritStdio() *Builder {
	b.stdin = NewFileOpened(os.Stdin)
	b.stdout = NewFileOpened(os.Stdout)
	b.stderr = NewFileOpened(os.Stderr)
	return b
}

// InheritEnv copies the host process environment into the builder,
// preserving order. A malformed host entry is reported by Build as an
// inherit error.
func (b *Builder) InheritEnv() *Builder {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			b.recordErr(&InheritError{Detail: "host environment entry without '=': " + kv})
			continue
		}
		b.Env(key, value)
	}
	return b
}

// SandboxFS selects an owned in-memory sandbox as the filesystem backing,
// replacing any previous selection.
func (b *Builder) SandboxFS(fs *SandboxFS) *Builder {
	b.fs = SandboxRoot(fs)
	return b
}

// FS selects an externally supplied filesystem backing, replacing any
// previous selection.
func (b *Builder) FS(fs FileSystem) *Builder {
	b.fs = BackingRoot(fs)
	return b
}

// SetupFs registers a callback invoked with the inode table and the mutable
// filesystem state after assembly.
func (b *Builder) SetupFs(fn func(*Inodes, *FsState) error) *Builder {
	b.setupFs = fn
	return b
}

// Runtime overrides the default runtime implementation.
func (b *Builder) Runtime(rt Runtime) *Builder {
	b.runtime = rt
	return b
}

// Use injects a dependency package. Its volumes and commands become
// available to the guest.
func (b *Builder) Use(pkg *binpkg.BinaryPackage) *Builder {
	b.uses = append(b.uses, pkg)
	return b
}

// Uses injects multiple dependency packages in order.
func (b *Builder) Uses(pkgs ...*binpkg.BinaryPackage) *Builder {
	for _, p := range pkgs {
		b.Use(p)
	}
	return b
}

// MapCommand maps a guest visible command name to a host binary path.
func (b *Builder) MapCommand(name, hostPath string) *Builder {
	b.mapCommands[name] = hostPath
	return b
}

// MapCommands maps multiple guest visible command names to host binaries.
func (b *Builder) MapCommands(commands map[string]string) *Builder {
	for name, target := range commands {
		b.MapCommand(name, target)
	}
	return b
}

// Capabilities replaces the capability record.
func (b *Builder) Capabilities(c Capabilities) *Builder {
	b.capabilities = c
	return b
}

// CapabilitiesMut exposes the capability record for incremental mutation.
func (b *Builder) CapabilitiesMut() *Capabilities {
	return &b.capabilities
}
