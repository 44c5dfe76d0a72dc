// Package mount attaches and detaches network shares through the system
// mount helpers. Every call spawns at most one child process and reports a
// typed result; nothing is retried.
package mount

import "errors"

// ErrNoCredentials is reported with MountAuthFailure when a CIFS mount has no
// password and none is stored
var ErrNoCredentials = errors.New("no credentials available for share")

// MountStatus classifies the outcome of a mount attempt
type MountStatus int

const (
	MountSuccess MountStatus = iota
	MountAlreadyMounted
	MountAuthFailure
	MountUnreachable
	MountPermissionDenied
	MountInvalidMountPoint
	MountUnknownFailure
)

func (s MountStatus) String() string {
	switch s {
	case MountSuccess:
		return "success"
	case MountAlreadyMounted:
		return "already_mounted"
	case MountAuthFailure:
		return "auth_failure"
	case MountUnreachable:
		return "unreachable"
	case MountPermissionDenied:
		return "permission_denied"
	case MountInvalidMountPoint:
		return "invalid_mount_point"
	default:
		return "unknown_failure"
	}
}

// MountResult is what a mount attempt produced. Diagnostic holds the helper's
// output and never contains the password.
type MountResult struct {
	Status     MountStatus
	MountPoint string
	Diagnostic string
	Err        error
}

// OK reports whether the share is mounted after the call
func (r MountResult) OK() bool {
	return r.Status == MountSuccess || r.Status == MountAlreadyMounted
}

// AlreadyMounted reports whether nothing was done because the mount point was in use
func (r MountResult) AlreadyMounted() bool {
	return r.Status == MountAlreadyMounted
}

// UnmountStatus classifies the outcome of an unmount attempt
type UnmountStatus int

const (
	UnmountSuccess UnmountStatus = iota
	UnmountNotMounted
	UnmountBusy
	UnmountPermissionDenied
	UnmountUnknownFailure
)

func (s UnmountStatus) String() string {
	switch s {
	case UnmountSuccess:
		return "success"
	case UnmountNotMounted:
		return "not_mounted"
	case UnmountBusy:
		return "busy"
	case UnmountPermissionDenied:
		return "permission_denied"
	default:
		return "unknown_failure"
	}
}

// UnmountResult is what an unmount attempt produced
type UnmountResult struct {
	Status     UnmountStatus
	MountPoint string
	Diagnostic string
	Err        error
}

// OK reports whether nothing is mounted at the mount point after the call
func (r UnmountResult) OK() bool {
	return r.Status == UnmountSuccess || r.Status == UnmountNotMounted
}

// UnmountOptions select umount(8) behaviour
type UnmountOptions struct {
	// Lazy detaches now and cleans up once the mount is no longer busy
	Lazy bool
	// Force aborts pending requests to an unreachable server
	Force bool
}
