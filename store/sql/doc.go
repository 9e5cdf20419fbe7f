// Package sqlstore provides bun-backed implementations of the mailroom
// storage contracts. Idempotency is storage-enforced: admitting events,
// enqueueing jobs and writing results all insert first and interpret the
// unique violation, never check-then-insert.
package sqlstore
