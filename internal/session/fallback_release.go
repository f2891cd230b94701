//go:build !debugauth

package session

// FallbackCompiled is false in release builds: the placeholder identity
// cannot be enabled by configuration.
const FallbackCompiled = false
