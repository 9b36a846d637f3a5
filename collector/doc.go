// Package collector runs data-collection episodes against a vehicle simulator
// and persists their observations.
//
// # Reading Guide
//
//   - job.go: the job space (weather × behavior × navigation type)
//   - config.go: run configuration and the per-job derived JobConfig
//   - episode.go: the per-worker state machine and step loop
//   - orchestrator.go: bounded-concurrency dispatch and global teardown
//
// # Architecture
//
// The Orchestrator admits at most Concurrency jobs at a time through a
// channel of permits. Each admitted job runs in its own goroutine, which owns
// one simulator session, one agent and one archive writer for its lifetime;
// nothing mutable is shared between workers. Episode events go to
// collector/trace, samples go to collector/archive, and routes are built with
// collector/route and collector/geometry.
//
// Global simulator teardown runs exactly once per Run, after every worker has
// returned or the drain deadline has passed.
package collector
