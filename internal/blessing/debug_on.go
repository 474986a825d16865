//go:build debug

package blessing

// DebugBuild reports whether the binary was built with the debug tag.
const DebugBuild = true
