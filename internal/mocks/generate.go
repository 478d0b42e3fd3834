// Package mocks provides generated mock implementations of the session layer ports.
//
// This package uses go.uber.org/mock (gomock). To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockAuthBackend(ctrl)
//	backend.EXPECT().Login(gomock.Any(), "a@b.com", "secret1").Return(result, nil)
package mocks

// Generate mock for AuthBackend interface from internal/ports package.
// This creates MockAuthBackend with methods: Login, Register, Refresh, Logout
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_backend_mock.go github.com/target/quiz-ui/internal/ports AuthBackend

// Generate mock for Storage interface from internal/ports package.
// This creates MockStorage with methods: Get, Set, Delete, Watch
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=storage_mock.go github.com/target/quiz-ui/internal/ports Storage
