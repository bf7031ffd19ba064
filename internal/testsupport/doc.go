// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store lifecycle management, and a raw SQL escape hatch for
// constructing states (expired leases, stale jobs) that would otherwise
// require waiting out real time.
package testsupport
