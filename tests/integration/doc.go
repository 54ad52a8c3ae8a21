// Package integration holds end-to-end tests that run against containers.
// Run them with: go test -tags integration ./tests/integration/...
package integration
