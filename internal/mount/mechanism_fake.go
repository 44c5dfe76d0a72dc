package mount

import (
	"os"
	"strings"
	"sync"

	mountutils "k8s.io/mount-utils"
)

// FakeMechanism is an in-memory Mechanism for tests. Successful calls update
// Mounter so a MountTable built on it sees the change. MountFunc and
// UnmountFunc override the default success outcome.
type FakeMechanism struct {
	Mounter     *mountutils.FakeMounter
	MountFunc   func(Invocation) Outcome
	UnmountFunc func(target string, opts UnmountOptions) Outcome

	mu          sync.Mutex
	Invocations []Invocation
	Unmounts    []string
	// CredentialContents maps a credentials file path to what it held while
	// the mount helper ran
	CredentialContents map[string]string
}

// NewFakeMechanism creates a FakeMechanism backed by mounter
func NewFakeMechanism(mounter *mountutils.FakeMounter) *FakeMechanism {
	return &FakeMechanism{Mounter: mounter, CredentialContents: make(map[string]string)}
}

func (f *FakeMechanism) Mount(inv Invocation) Outcome {
	f.mu.Lock()
	f.Invocations = append(f.Invocations, inv)
	for _, opt := range inv.Options {
		if path, ok := strings.CutPrefix(opt, "credentials="); ok {
			data, _ := os.ReadFile(path)
			f.CredentialContents[path] = string(data)
		}
	}
	fn := f.MountFunc
	f.mu.Unlock()

	outcome := Outcome{}
	if fn != nil {
		outcome = fn(inv)
	}
	if outcome.ExitCode == 0 && outcome.Err == nil && f.Mounter != nil {
		_ = f.Mounter.Mount(inv.Device, inv.Target, inv.Type, inv.Options)
	}
	return outcome
}

func (f *FakeMechanism) Unmount(target string, opts UnmountOptions) Outcome {
	f.mu.Lock()
	f.Unmounts = append(f.Unmounts, target)
	fn := f.UnmountFunc
	f.mu.Unlock()

	outcome := Outcome{}
	if fn != nil {
		outcome = fn(target, opts)
	}
	if outcome.ExitCode == 0 && outcome.Err == nil && f.Mounter != nil {
		_ = f.Mounter.Unmount(target)
	}
	return outcome
}

// MountCalls returns the number of mount invocations
func (f *FakeMechanism) MountCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Invocations)
}

// UnmountCalls returns the number of unmount invocations
func (f *FakeMechanism) UnmountCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Unmounts)
}

// LastInvocation returns the most recent mount invocation
func (f *FakeMechanism) LastInvocation() (Invocation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Invocations) == 0 {
		return Invocation{}, false
	}
	return f.Invocations[len(f.Invocations)-1], true
}
