// Package wasienv assembles and validates isolated execution environments
// for untrusted guest binaries.
//
// A Builder accumulates arguments, environment variables, preopened
// directories, stdio overrides, a filesystem backing, dependency packages
// and capability limits, then Build validates the whole configuration and
// produces an immutable Env exactly once.
//
// The package also defines the collaborator contracts the execution driver
// relies on: the virtual filesystem backing, the shared runtime with its
// task manager, and the guest engine with its deep sleep continuation
// protocol.
package wasienv
