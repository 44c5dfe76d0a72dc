package system

import (
	"fmt"
	"strings"
	"sync"
)

// MockResponse is the canned result for one command line
type MockResponse struct {
	Output   string
	ExitCode int
}

// MockExitError mimics *exec.ExitError for MockCommandRunner failures
type MockExitError struct {
	Code int
}

func (e *MockExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the simulated exit status
func (e *MockExitError) ExitCode() int {
	return e.Code
}

// MockCommandRunner records commands instead of executing them. Responses
// are keyed by the full command line joined with spaces; unknown commands
// succeed with no output.
type MockCommandRunner struct {
	mu        sync.Mutex
	Commands  []string
	Responses map[string]MockResponse
	// Fail, when set, makes every command it matches exit with status 1
	Fail func(cmd string) bool
}

// NewMockCommandRunner creates a MockCommandRunner with no canned responses
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{Responses: make(map[string]MockResponse)}
}

// Respond registers the result for a command line
func (m *MockCommandRunner) Respond(command string, output string, exitCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[command] = MockResponse{Output: output, ExitCode: exitCode}
}

// Run records the command and returns its canned response
func (m *MockCommandRunner) Run(name string, args ...string) (string, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, cmd)

	if m.Fail != nil && m.Fail(cmd) {
		return "", &MockExitError{Code: 1}
	}
	resp, ok := m.Responses[cmd]
	if !ok {
		return "", nil
	}
	if resp.ExitCode != 0 {
		return resp.Output, &MockExitError{Code: resp.ExitCode}
	}
	return resp.Output, nil
}

// Ran reports whether command was executed
func (m *MockCommandRunner) Ran(command string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cmd := range m.Commands {
		if cmd == command {
			return true
		}
	}
	return false
}

// Count returns the number of executed commands
func (m *MockCommandRunner) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Commands)
}
