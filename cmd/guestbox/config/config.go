package config

import (
	"os"
	"runtime"
	"time"

	"github.com/koding/multiconfig"
)

// Config defines guestbox server configuration
type Config struct {
	// execution
	Parallelism   int    `flagUsage:"control the # of concurrent guest executions (default equal to number of cpu)"`
	PackageConf   string `flagUsage:"specifies the package manifest file" default:"packages.yaml"`
	FsMemoryLimit uint64 `flagUsage:"specifies the sandbox filesystem size limit in bytes per execution (0 for unlimited)"`

	// snapshot store
	SnapshotDir     string        `flagUsage:"specifies directory to persist continuation snapshots (in memory by default)"`
	SnapshotTimeout time.Duration `flagUsage:"specifies timeout for stored continuation snapshots"`

	// server config
	HTTPAddr      string `flagUsage:"specifies the http binding address" default:":5060"`
	MonitorAddr   string `flagUsage:"specifies the metrics binding address" default:":5062"`
	AuthToken     string `flagUsage:"bearer token auth for REST"`
	EnableDebug   bool   `flagUsage:"enable debug endpoint"`
	EnableMetrics bool   `flagUsage:"enable prometheus metrics endpoint"`

	// logger config
	Release bool `flagUsage:"release level of logs"`
	Silent  bool `flagUsage:"do not print logs"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from flag & environment variables
func (c *Config) Load() error {
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "GB",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "GB",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	return cl.Load(c)
}
