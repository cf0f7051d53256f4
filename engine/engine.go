// Package engine executes guest modules on the wazero runtime. Instances
// never enter deep sleep on their own; suspension is raised by the guest
// program through the driver's signal errors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/guestbox/guestbox/wasienv"
)

const entryExport = "_start"

// Wazero is a wasienv.Engine backed by a shared wazero runtime. Compiled
// modules and instances created from it must not outlive Close.
type Wazero struct {
	runtime wazero.Runtime
	names   atomic.Uint64
}

// NewWazero creates the engine. The context is used for compilation cache
// lifetime only.
func NewWazero(ctx context.Context) *Wazero {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &Wazero{runtime: r}
}

// Close releases all compiled modules and live instances.
func (e *Wazero) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Instantiate compiles the module and binds it to the assembled
// environment. The guest is not started.
func (e *Wazero) Instantiate(ctx context.Context, env *wasienv.Env, mod wasienv.Module) (wasienv.Guest, error) {
	raw, ok := mod.(*wasienv.RawModule)
	if !ok {
		return nil, fmt.Errorf("unsupported module type %T", mod)
	}
	compiled, err := e.runtime.CompileModule(ctx, raw.Bytes())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", raw.Name(), err)
	}
	return &guest{engine: e, env: env, compiled: compiled, name: raw.Name()}, nil
}

type guest struct {
	engine   *Wazero
	env      *wasienv.Env
	compiled wazero.CompiledModule
	name     string
}

// Entry resolves the guest entry export and returns the invocation closure.
func (g *guest) Entry() (wasienv.EntryFunc, error) {
	if _, ok := g.compiled.ExportedFunctions()[entryExport]; !ok {
		return nil, fmt.Errorf("module %s does not export %s", g.name, entryExport)
	}
	cfg, err := g.moduleConfig()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		name := fmt.Sprintf("%s.%d", g.name, g.engine.names.Add(1))
		inst, err := g.engine.runtime.InstantiateModule(ctx, g.compiled, cfg.WithName(name))
		if err != nil {
			return mapRunError(err)
		}
		defer inst.Close(ctx)
		_, err = inst.ExportedFunction(entryExport).Call(ctx)
		return mapRunError(err)
	}, nil
}

// Rewind is unsupported: wazero cannot replay a captured continuation into
// a fresh instance.
func (g *guest) Rewind(wasienv.RewindState, []byte) wasienv.Errno {
	return wasienv.ErrnoNotsup
}

// TryClone produces a fresh instance over the same compiled module and
// environment.
func (g *guest) TryClone() (wasienv.Guest, bool) {
	return &guest{engine: g.engine, env: g.env, compiled: g.compiled, name: g.name}, true
}

func (g *guest) moduleConfig() (wazero.ModuleConfig, error) {
	cfg := wazero.NewModuleConfig().
		WithArgs(g.env.Args()...).
		// the entry export runs through the invocation closure instead
		WithStartFunctions()

	for _, kv := range g.env.Environ() {
		key, value, _ := cut(kv)
		cfg = cfg.WithEnv(key, value)
	}

	fsState := g.env.Fs()
	if in := fsState.StdioFile(wasienv.FdStdin); in != nil {
		r, err := wasienv.FileToReader(in)
		if err != nil {
			return nil, err
		}
		cfg = cfg.WithStdin(r)
	}
	if out := fsState.StdioFile(wasienv.FdStdout); out != nil {
		w, err := wasienv.FileToWriter(out)
		if err != nil {
			return nil, err
		}
		cfg = cfg.WithStdout(w)
	}
	if errF := fsState.StdioFile(wasienv.FdStderr); errF != nil {
		w, err := wasienv.FileToWriter(errF)
		if err != nil {
			return nil, err
		}
		cfg = cfg.WithStderr(w)
	}

	fsCfg := wazero.NewFSConfig().WithFSMount(FS(fsState.Root().FS()), "/")
	return cfg.WithFSConfig(fsCfg), nil
}

func cut(kv []byte) (string, string, bool) {
	for i, c := range kv {
		if c == '=' {
			return string(kv[:i]), string(kv[i+1:]), true
		}
	}
	return string(kv), "", false
}

// mapRunError converts a wazero termination into the driver's error
// vocabulary.
func mapRunError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return &wasienv.ExitError{Code: wasienv.ExitCode(exitErr.ExitCode())}
	}
	return err
}
