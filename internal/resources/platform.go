//go:build !js

package resources

// SupportsMultithreadedTransport reports whether the host can run the
// parallel upload/download state machines across real OS threads. True
// everywhere Go has a conventional scheduler.
func SupportsMultithreadedTransport() bool { return true }
