// Package transport exposes the inbound webhook HTTP surface. It is a thin
// adapter: request translation and response mapping only, every decision
// belongs to the inbound dispatcher.
package transport
