//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed via `go install` and are not tracked in
// go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the ports interfaces
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0
//
// Air - rebuilds and restarts quiz-ui on change; with DEV=true templates are
// also re-read from frontend/templates on every request
//   Install: go install github.com/air-verse/air@v1.63.0
//   Docs: https://github.com/air-verse/air
