// Command guestbox-shell runs a single guest module locally with the host
// terminal attached, without going through the http server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/guestbox/guestbox/binpkg"
	"github.com/guestbox/guestbox/console"
	"github.com/guestbox/guestbox/engine"
	"github.com/guestbox/guestbox/wasienv"
)

var (
	bootCmd     = flag.String("c", "", "boot command line passed to the guest (defaults to the module name)")
	packageConf = flag.String("p", "packages.yaml", "package manifest file")
	uses        = flag.String("use", "", "comma separated package specifiers to inject")
	memLimit    = flag.Uint64("fs-limit", 0, "sandbox filesystem size limit in bytes")
	debug       = flag.Bool("debug", false, "enable debug logs")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalln("usage: guestbox-shell [flags] module.wasm")
	}
	modulePath := flag.Arg(0)

	logger := zap.NewNop()
	if *debug {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalln("init logger", err)
		}
		defer logger.Sync()
	}

	data, err := os.ReadFile(modulePath)
	if err != nil {
		log.Fatalln("read module", err)
	}

	boot := *bootCmd
	if boot == "" {
		boot = modulePath
	}

	ctx := context.TODO()
	eng := engine.NewWazero(ctx)
	defer eng.Close(ctx)

	c := console.New(boot).
		NoWelcome().
		Engine(eng).
		Logger(logger).
		Stdin(wasienv.NewFileOpened(os.Stdin)).
		Stdout(wasienv.NewFileOpened(os.Stdout)).
		Stderr(wasienv.NewFileOpened(os.Stderr)).
		MemoryLimit(*memLimit)

	if *uses != "" {
		pkgs, err := binpkg.LoadManifest(*packageConf)
		if err != nil {
			log.Fatalln("load package manifest", err)
		}
		c.Resolver(binpkg.NewMemoryResolver(pkgs...))
		for _, spec := range strings.Split(*uses, ",") {
			if spec != "" {
				c.Uses(spec)
			}
		}
	}

	code, err := c.Run(ctx, wasienv.NewRawModule(modulePath, data))
	if err != nil {
		var exitErr *wasienv.ExitError
		if !errors.As(err, &exitErr) {
			log.Println("run:", err)
		}
	}
	os.Exit(int(code))
}
