// Package providers contains built-in provider adapters plus the shared
// signature verification primitives they compose.
package providers
