package mount

import (
	"strings"

	"github.com/zoro11031/netmount/internal/system"
)

// Invocation is one request to attach a filesystem
type Invocation struct {
	Type    string
	Device  string
	Target  string
	Options []string
}

// Args renders the mount(8) argument vector. The device and target are
// passed as separate arguments and never go through a shell.
func (i Invocation) Args() []string {
	args := []string{"-t", i.Type}
	if len(i.Options) > 0 {
		args = append(args, "-o", strings.Join(i.Options, ","))
	}
	return append(args, i.Device, i.Target)
}

// Outcome is the raw result of running a mount helper. ExitCode is -1 when
// the helper could not be started.
type Outcome struct {
	ExitCode int
	Output   string
	Err      error
}

// Mechanism performs the actual mount and unmount
type Mechanism interface {
	Mount(inv Invocation) Outcome
	Unmount(target string, opts UnmountOptions) Outcome
}

// MountTable answers whether something is mounted at a canonical path
type MountTable interface {
	IsMounted(path string) (bool, error)
}

// CommandMechanism runs mount(8) and umount(8) through a CommandRunner,
// which handles privilege escalation
type CommandMechanism struct {
	runner       system.CommandRunner
	mountBinary  string
	umountBinary string
}

// NewCommandMechanism creates a CommandMechanism. Empty binary names default
// to "mount" and "umount".
func NewCommandMechanism(runner system.CommandRunner, mountBinary, umountBinary string) *CommandMechanism {
	if mountBinary == "" {
		mountBinary = "mount"
	}
	if umountBinary == "" {
		umountBinary = "umount"
	}
	return &CommandMechanism{runner: runner, mountBinary: mountBinary, umountBinary: umountBinary}
}

func (m *CommandMechanism) Mount(inv Invocation) Outcome {
	output, err := m.runner.Run(m.mountBinary, inv.Args()...)
	return Outcome{ExitCode: system.ExitCode(err), Output: output, Err: err}
}

func (m *CommandMechanism) Unmount(target string, opts UnmountOptions) Outcome {
	var args []string
	if opts.Lazy {
		args = append(args, "-l")
	}
	if opts.Force {
		args = append(args, "-f")
	}
	args = append(args, target)

	output, err := m.runner.Run(m.umountBinary, args...)
	return Outcome{ExitCode: system.ExitCode(err), Output: output, Err: err}
}
