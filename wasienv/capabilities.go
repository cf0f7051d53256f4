package wasienv

// ThreadingCapability sizes the guest's logical task scheduling.
type ThreadingCapability struct {
	// MaxThreads bounds the number of concurrent logical tasks the
	// environment may spawn. Zero means unbounded.
	MaxThreads uint32

	// EnableAsynchronousThreading allows the guest to run on the
	// asynchronous driver with deep sleep support.
	EnableAsynchronousThreading bool
}

// Capabilities restricts what an assembled environment may do.
type Capabilities struct {
	InsecureAllowAll bool
	Threading        ThreadingCapability
}

// DefaultCapabilities returns the capability set used when the builder is
// given none.
func DefaultCapabilities() Capabilities {
	return Capabilities{}
}
