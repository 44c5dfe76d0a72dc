package mount

import (
	"strings"

	"github.com/zoro11031/netmount/internal/share"
)

// Helper output fragments, lowercased. mount.cifs reports kernel errnos as
// "mount error(N)"; mount.nfs prints strerror text.
var (
	sudoPatterns = []string{
		"sudo: a password is required",
		"sudo: a terminal is required",
		"is not in the sudoers file",
		"sudo: no tty present",
	}

	invalidMountPointPatterns = []string{
		"mount point does not exist",
		"not a directory",
		"mountpoint does not exist",
		"couldn't chdir to",
	}

	alreadyMountedPatterns = []string{
		"already mounted",
		"is busy",
		"device or resource busy",
	}

	authPatterns = []string{
		"error(13)",
		"error(126)",
		"logon failure",
		"nt_status_logon_failure",
		"nt_status_access_denied",
		"access denied by server",
		"required key not available",
		"account is disabled",
		"password expired",
	}

	unreachablePatterns = []string{
		"host is down",
		"no route to host",
		"network is unreachable",
		"connection timed out",
		"connection refused",
		"could not resolve address",
		"name or service not known",
		"unable to find suitable address",
		"error(112)",
		"error(113)",
		"error(115)",
		"error(110)",
		"error(111)",
		"no such device or address",
		"not responding",
		"bad share name",
		"reason given by server: no such file or directory",
		"timed out",
	}

	permissionPatterns = []string{
		"only root can",
		"must be superuser",
		"operation not permitted",
		"permission denied",
	}

	notMountedPatterns = []string{
		"not mounted",
		"no mount point specified",
		"no such file or directory",
		"mountpoint not found",
	}

	busyPatterns = []string{
		"target is busy",
		"device is busy",
		"device or resource busy",
	}
)

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// classifyMount maps a helper exit code and output to a MountStatus
func classifyMount(fsType share.FilesystemType, o Outcome) MountStatus {
	if o.ExitCode == 0 && o.Err == nil {
		return MountSuccess
	}
	if o.ExitCode < 0 {
		return MountUnknownFailure
	}

	out := strings.ToLower(o.Output)
	cifsError := strings.Contains(out, "mount error")

	switch {
	case containsAny(out, sudoPatterns):
		return MountPermissionDenied
	case containsAny(out, invalidMountPointPatterns),
		strings.Contains(out, "mount point") && strings.Contains(out, "does not exist"):
		return MountInvalidMountPoint
	case containsAny(out, alreadyMountedPatterns):
		return MountAlreadyMounted
	case containsAny(out, authPatterns):
		return MountAuthFailure
	case cifsError && strings.Contains(out, "permission denied"):
		return MountAuthFailure
	case containsAny(out, unreachablePatterns):
		return MountUnreachable
	case fsType == share.CIFS && strings.Contains(out, "error(2)"):
		// The server answered but the share does not exist
		return MountUnreachable
	case containsAny(out, permissionPatterns):
		return MountPermissionDenied
	default:
		return MountUnknownFailure
	}
}

// classifyUnmount maps a umount exit code and output to an UnmountStatus
func classifyUnmount(o Outcome) UnmountStatus {
	if o.ExitCode == 0 && o.Err == nil {
		return UnmountSuccess
	}
	if o.ExitCode < 0 {
		return UnmountUnknownFailure
	}

	out := strings.ToLower(o.Output)
	switch {
	case containsAny(out, sudoPatterns):
		return UnmountPermissionDenied
	case containsAny(out, busyPatterns):
		return UnmountBusy
	case containsAny(out, notMountedPatterns):
		return UnmountNotMounted
	case containsAny(out, permissionPatterns):
		return UnmountPermissionDenied
	default:
		return UnmountUnknownFailure
	}
}
