// Package console bootstraps a complete guest session from a shell-style
// boot command: the command line is tokenized, dependency packages are
// resolved and injected, stdio is wired, and the resulting environment is
// handed to the asynchronous driver.
package console

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/guestbox/guestbox/binpkg"
	"github.com/guestbox/guestbox/driver"
	"github.com/guestbox/guestbox/wasienv"
)

// ErrEmptyBootCommand is reported when the boot command tokenizes to
// nothing.
var ErrEmptyBootCommand = errors.New("console: empty boot command")

// Console assembles and runs one guest session. Zero value is not usable;
// construct with New.
type Console struct {
	boot      string
	envs      []wasienv.EnvPair
	uses      []string
	resolver  binpkg.Resolver
	runtime   wasienv.Runtime
	engine    wasienv.Engine
	stdin     wasienv.File
	stdout    wasienv.File
	stderr    wasienv.File
	memLimit  uint64
	noWelcome bool
	prompt    string
	logger    *zap.Logger
}

func New(bootCmd string) *Console {
	return &Console{
		boot:   bootCmd,
		prompt: ">",
		logger: zap.NewNop(),
	}
}

func (c *Console) Env(key, value string) *Console {
	c.envs = append(c.envs, wasienv.EnvPair{Key: key, Value: []byte(value)})
	return c
}

// Uses records package specifiers to resolve and inject at bootstrap.
func (c *Console) Uses(specifiers ...string) *Console {
	c.uses = append(c.uses, specifiers...)
	return c
}

func (c *Console) Resolver(r binpkg.Resolver) *Console {
	c.resolver = r
	return c
}

func (c *Console) Runtime(rt wasienv.Runtime) *Console {
	c.runtime = rt
	return c
}

func (c *Console) Engine(e wasienv.Engine) *Console {
	c.engine = e
	return c
}

func (c *Console) Stdin(f wasienv.File) *Console {
	c.stdin = f
	return c
}

func (c *Console) Stdout(f wasienv.File) *Console {
	c.stdout = f
	return c
}

func (c *Console) Stderr(f wasienv.File) *Console {
	c.stderr = f
	return c
}

// MemoryLimit caps the sandbox filesystem size in bytes. Zero means
// unlimited.
func (c *Console) MemoryLimit(bytes uint64) *Console {
	c.memLimit = bytes
	return c
}

func (c *Console) NoWelcome() *Console {
	c.noWelcome = true
	return c
}

func (c *Console) Prompt(p string) *Console {
	c.prompt = p
	return c
}

func (c *Console) Logger(l *zap.Logger) *Console {
	c.logger = l
	return c
}

// Bootstrap tokenizes the boot command, resolves packages and assembles the
// environment. The returned program name is the first boot token.
func (c *Console) Bootstrap(ctx context.Context) (*wasienv.Env, string, error) {
	tokens, err := shlex.Split(c.boot)
	if err != nil {
		return nil, "", fmt.Errorf("console: parse boot command: %w", err)
	}
	if len(tokens) == 0 {
		return nil, "", ErrEmptyBootCommand
	}
	prog := tokens[0]

	b := wasienv.NewBuilder(prog).
		Args(tokens[1:]...).
		Envs(c.envs...)

	rt := c.runtime
	if rt == nil {
		rt = wasienv.DefaultRuntime()
	}
	if rt != nil {
		b.Runtime(rt)
	}

	if len(c.uses) > 0 {
		if c.resolver == nil {
			return nil, "", errors.New("console: packages requested without a resolver")
		}
		pkgs, err := c.resolvePackages(ctx, rt)
		if err != nil {
			return nil, "", err
		}
		b.Uses(pkgs...)
	}

	fs := wasienv.NewSandboxFS()
	if c.memLimit > 0 {
		fs.SetMemoryLimiter(wasienv.NewMemoryBudget(c.memLimit))
	}
	b.SandboxFS(fs)

	if c.stdin != nil {
		b.Stdin(c.stdin)
	}
	if c.stdout != nil {
		b.Stdout(c.stdout)
	}
	if c.stderr != nil {
		b.Stderr(c.stderr)
	}

	env, err := b.Build()
	if err != nil {
		return nil, "", err
	}
	return env, prog, nil
}

func (c *Console) resolvePackages(ctx context.Context, rt wasienv.Runtime) ([]*binpkg.BinaryPackage, error) {
	pkgs := make([]*binpkg.BinaryPackage, 0, len(c.uses))
	for _, spec := range c.uses {
		var pkg *binpkg.BinaryPackage
		resolve := func(ctx context.Context) error {
			var err error
			pkg, err = c.resolver.Resolve(ctx, spec)
			return err
		}
		var err error
		if rt != nil {
			err = rt.Tasks().BlockOn(ctx, resolve)
		} else {
			err = resolve(ctx)
		}
		if err != nil {
			return nil, err
		}
		c.logger.Debug("console: resolved package",
			zap.String("specifier", spec),
			zap.String("name", pkg.Name),
			zap.String("version", pkg.Version))
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// Run bootstraps the session, instantiates the module and drives it to
// completion through the asynchronous driver. The normalized error and the
// recorded exit code are returned.
func (c *Console) Run(ctx context.Context, module wasienv.Module) (wasienv.ExitCode, error) {
	if c.engine == nil {
		return wasienv.ExitCode(wasienv.ErrnoNoexec), errors.New("console: no engine configured")
	}
	env, prog, err := c.Bootstrap(ctx)
	if err != nil {
		return wasienv.ExitCode(wasienv.ErrnoNoexec), err
	}

	if !c.noWelcome && c.stdout != nil {
		if w, err := wasienv.FileToWriter(c.stdout); err == nil {
			fmt.Fprintf(w, "%s %s\n", c.prompt, c.boot)
		}
	}

	guest, err := c.engine.Instantiate(ctx, env, module)
	if err != nil {
		env.Cleanup(wasienv.ExitCode(wasienv.ErrnoNoexec))
		return env.ExitCode(), fmt.Errorf("console: instantiate %s: %w", prog, err)
	}

	err = driver.RunAsync(ctx, env, guest, driver.WithLogger(c.logger))
	return env.ExitCode(), err
}
