// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/engine"
	"github.com/xkilldash9x/markasorgu/internal/protocol"
)

// -- Page Mock --

// MockPage mocks the protocol.Page interface.
type MockPage struct {
	mock.Mock
}

var _ protocol.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockPage) HasInput(ctx context.Context, substr string) (bool, error) {
	args := m.Called(ctx, substr)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) FillInput(ctx context.Context, substr, text string) error {
	args := m.Called(ctx, substr, text)
	return args.Error(0)
}

func (m *MockPage) HasButton(ctx context.Context, substr string) (bool, error) {
	args := m.Called(ctx, substr)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) ClickButton(ctx context.Context, substr string) error {
	args := m.Called(ctx, substr)
	return args.Error(0)
}

func (m *MockPage) ResultsRendered(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- Session Mock --

// MockSession is a MockPage that also satisfies engine.Session.
type MockSession struct {
	MockPage
	SessionID string

	mu     sync.Mutex
	closed bool
	broken bool
}

var _ engine.Session = (*MockSession)(nil)

// NewMockSession creates an open session with the given ID.
func NewMockSession(id string) *MockSession {
	return &MockSession{SessionID: id}
}

func (s *MockSession) ID() string { return s.SessionID }

// Alive reports false once the session was closed or marked broken.
func (s *MockSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.broken
}

// Break marks the session as crashed.
func (s *MockSession) Break() {
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
}

func (s *MockSession) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// -- Factory and Runner Mocks --

// MockSessionFactory mocks the engine.SessionFactory interface.
type MockSessionFactory struct {
	mock.Mock
}

var _ engine.SessionFactory = (*MockSessionFactory)(nil)

func (m *MockSessionFactory) NewSession(ctx context.Context) (engine.Session, error) {
	args := m.Called(ctx)
	if s := args.Get(0); s != nil {
		return s.(engine.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRunner mocks the engine.Runner interface.
type MockRunner struct {
	mock.Mock
}

var _ engine.Runner = (*MockRunner)(nil)

func (m *MockRunner) Run(ctx context.Context, page protocol.Page, task schemas.Task) (schemas.TaskResult, error) {
	args := m.Called(ctx, page, task)
	return args.Get(0).(schemas.TaskResult), args.Error(1)
}

// -- Executor Mock --

// MockExecutor mocks the task executor consumed by the HTTP API and CLI.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Submit(ctx context.Context, task schemas.Task) (schemas.TaskResult, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(schemas.TaskResult), args.Error(1)
}

func (m *MockExecutor) Stats() engine.Stats {
	args := m.Called()
	return args.Get(0).(engine.Stats)
}
