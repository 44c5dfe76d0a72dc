package system

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// CommandRunner defines an interface for running system commands.
type CommandRunner interface {
	Run(name string, args ...string) (string, error)
}

// ExecCommandRunner executes commands directly, without a shell.
type ExecCommandRunner struct{}

// NewCommandRunner returns a default command runner implementation.
func NewCommandRunner() CommandRunner {
	return &ExecCommandRunner{}
}

// Run executes a command and returns its combined output. The C locale keeps
// helper messages stable for classification.
func (r *ExecCommandRunner) Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANG=C")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// PrivilegedRunner prefixes commands with "sudo -n" when escalation is
// enabled and the process is not already root. sudo never prompts, so a
// missing rule fails fast instead of hanging on a terminal.
type PrivilegedRunner struct {
	runner  CommandRunner
	useSudo bool
	euid    func() int
}

// NewPrivilegedRunner wraps runner with optional sudo escalation
func NewPrivilegedRunner(runner CommandRunner, useSudo bool) *PrivilegedRunner {
	return &PrivilegedRunner{runner: runner, useSudo: useSudo, euid: unix.Geteuid}
}

// Escalates reports whether commands will be run through sudo
func (p *PrivilegedRunner) Escalates() bool {
	return p.useSudo && p.euid() != 0
}

// Run executes name, through sudo when Escalates is true
func (p *PrivilegedRunner) Run(name string, args ...string) (string, error) {
	if p.Escalates() {
		return p.runner.Run("sudo", append([]string{"-n", name}, args...)...)
	}
	return p.runner.Run(name, args...)
}

// IsRoot reports whether the process runs with effective uid 0
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// ExitCode extracts the exit status from a runner error. It returns 0 for a
// nil error and -1 when the command did not run to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return -1
}

// CommandExists checks if a command is available in PATH
func CommandExists(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
