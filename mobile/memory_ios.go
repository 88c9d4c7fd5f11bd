//go:build ios

package mobile

import "runtime/debug"

// App extensions are killed far below the app's own ceiling. The host app
// can raise the limit with SetMemoryLimit once it knows its extension type.
const (
	extensionMemoryLimit = 24 << 20
	extensionGCPercent   = 50
)

func init() {
	SetMemoryLimit(extensionMemoryLimit)
	debug.SetGCPercent(extensionGCPercent)
}
