//go:build debugauth

package session

// FallbackCompiled is true only in builds made with -tags debugauth
const FallbackCompiled = true
