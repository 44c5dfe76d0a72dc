package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version = "1.2.3"
	GitCommit = "abc123"

	info := Info()
	if !strings.HasPrefix(info, "netmount version 1.2.3") {
		t.Errorf("Info() = %q", info)
	}
	if !strings.Contains(info, "commit: abc123") {
		t.Errorf("Info() = %q, missing commit", info)
	}
	if Short() != "1.2.3" {
		t.Errorf("Short() = %q", Short())
	}
}
