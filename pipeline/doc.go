// Package pipeline drains the extraction job queue: a worker pool claims
// jobs, runs the extraction capability under a per-job timeout, and hands
// terminal outcomes to a batch committer guarded by an error-threshold
// monitor.
package pipeline
