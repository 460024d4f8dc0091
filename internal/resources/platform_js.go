//go:build js

package resources

// SupportsMultithreadedTransport is false under GOOS=js: wasm's single
// OS thread means the parallel state machines degrade to their sequential
// fast path (§5).
func SupportsMultithreadedTransport() bool { return false }
