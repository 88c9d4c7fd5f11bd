package mobile

import "runtime/debug"

// SetMemoryLimit sets the soft heap limit in bytes and returns the previous
// one. Values below 1 MiB are ignored so a bad setting cannot starve the
// event ring; the current limit is returned unchanged.
func SetMemoryLimit(bytes int64) int64 {
	if bytes < 1<<20 {
		return debug.SetMemoryLimit(-1)
	}
	return debug.SetMemoryLimit(bytes)
}
