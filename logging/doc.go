// Package logging provides a minimal logging interface and adapters for supportmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the router, handlers, registry and runner use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - ZerologAdapter, the default backend used by the console application
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LogLevelInfo, Pretty: true})
//	mesh := supportmesh.New(func(o *supportmesh.Options) { o.Logger = logger })
//
// Messages are short dotted event keys ("capability.invoke.success") followed
// by alternating key/value pairs.
package logging
