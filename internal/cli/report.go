package cli

import (
	"errors"
	"fmt"

	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/service"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
	"github.com/zoro11031/netmount/internal/ui"
)

// ErrFailed is returned by commands whose outcome was already reported, so
// the caller only has to set the exit code
var ErrFailed = errors.New("operation failed")

// ReportMount prints the outcome of a mount and returns ErrFailed unless
// the share ended up mounted
func ReportMount(u *ui.UI, p share.MountParameters, r mount.MountResult) error {
	switch r.Status {
	case mount.MountSuccess:
		u.Successf("Mounted %s on %s", p.Device(), r.MountPoint)
		return nil
	case mount.MountAlreadyMounted:
		u.Infof("%s is already mounted", r.MountPoint)
		return nil
	}

	u.Errorf("Failed to mount %s on %s: %s", p.Device(), p.MountPoint(), describeMountStatus(r.Status))
	if r.Diagnostic != "" {
		u.Detail(r.Diagnostic)
	}
	if r.Err != nil && r.Diagnostic == "" {
		u.Detail(r.Err.Error())
	}
	u.Hints("Please check:", mountHints(p, r)...)
	return ErrFailed
}

func describeMountStatus(s mount.MountStatus) string {
	switch s {
	case mount.MountAuthFailure:
		return "the server rejected the credentials"
	case mount.MountUnreachable:
		return "the server could not be reached"
	case mount.MountPermissionDenied:
		return "permission denied"
	case mount.MountInvalidMountPoint:
		return "the mount point is not usable"
	default:
		return "the mount helper failed"
	}
}

func mountHints(p share.MountParameters, r mount.MountResult) []string {
	switch r.Status {
	case mount.MountAuthFailure:
		if errors.Is(r.Err, mount.ErrNoCredentials) {
			return []string{
				"No password was given and none is saved for " + p.Username(),
				"Run 'netmount credentials save' or mount again and type the password",
			}
		}
		return []string{
			"Username, password and domain are correct",
			"The account may access " + p.Device(),
		}
	case mount.MountUnreachable:
		hints := []string{
			"The server is powered on and on the network",
			"The share or export name is spelled correctly",
		}
		if p.Type() == share.NFS {
			return append(hints, "The firewall allows NFS traffic (port 2049)")
		}
		return append(hints, "The firewall allows SMB traffic (port 445)")
	case mount.MountPermissionDenied:
		return []string{
			"Run netmount as root, or allow passwordless sudo for mount",
			"For NFS, the export allows this host",
		}
	case mount.MountInvalidMountPoint:
		return []string{
			r.MountPoint + " is a directory, or its parent exists",
			"Nothing else is mounted there",
		}
	default:
		if p.Type() == share.CIFS {
			return []string{"cifs-utils is installed (mount.cifs)"}
		}
		return []string{"nfs-utils is installed (mount.nfs)"}
	}
}

// ReportUnmount prints the outcome of an unmount and returns ErrFailed
// unless nothing is mounted there any more
func ReportUnmount(u *ui.UI, mountPoint string, r mount.UnmountResult) error {
	switch r.Status {
	case mount.UnmountSuccess:
		u.Successf("Unmounted %s", mountPoint)
		return nil
	case mount.UnmountNotMounted:
		u.Infof("%s is not mounted", mountPoint)
		return nil
	case mount.UnmountBusy:
		u.Errorf("%s is busy", mountPoint)
		u.Hints("Please check:",
			"No shell or program is using a file below "+mountPoint,
			"Use --lazy to detach it once it is no longer in use",
		)
	case mount.UnmountPermissionDenied:
		u.Errorf("Not allowed to unmount %s", mountPoint)
		u.Hints("Please check:", "Run netmount as root, or allow passwordless sudo for umount")
	default:
		u.Errorf("Failed to unmount %s", mountPoint)
	}
	if r.Diagnostic != "" {
		u.Detail(r.Diagnostic)
	} else if r.Err != nil {
		u.Detail(r.Err.Error())
	}
	return ErrFailed
}

// ReportRegistration prints the mount and the fstab update of out
func ReportRegistration(u *ui.UI, p share.MountParameters, out service.RegisterOutcome, fstabPath string) error {
	if err := ReportMount(u, p, out.Mount); err != nil {
		return err
	}
	if out.RegistrationErr != nil {
		u.Errorf("Mounted, but %s was not updated: %v", fstabPath, out.RegistrationErr)
		u.Info("The share stays mounted. Run 'netmount status' to see it and 'netmount fstab retry' once fixed.")
		return ErrFailed
	}
	ReportFstabChange(u, out.Entry, out.Result, fstabPath)
	return nil
}

// ReportFstabChange prints what an upsert did to the table
func ReportFstabChange(u *ui.UI, e fstab.Entry, result fstab.UpsertResult, fstabPath string) {
	switch result {
	case fstab.Inserted:
		u.Successf("Added %s to %s", e.MountPoint, fstabPath)
	case fstab.Replaced:
		u.Successf("Updated the %s entry in %s", e.MountPoint, fstabPath)
	default:
		u.Infof("%s already has this entry", fstabPath)
	}
	u.Detail(e.Redacted().Line())
}

// ReportUnregistration prints the unmount and the fstab removal of out
func ReportUnregistration(u *ui.UI, mountPoint string, out service.UnregisterOutcome, fstabPath string) error {
	if err := ReportUnmount(u, mountPoint, out.Unmount); err != nil {
		u.Infof("%s was left unchanged", fstabPath)
		return err
	}
	if out.RemovalErr != nil {
		u.Errorf("Unmounted, but %s was not updated: %v", fstabPath, out.RemovalErr)
		return ErrFailed
	}
	if out.Removed {
		u.Successf("Removed %s from %s", mountPoint, fstabPath)
	} else {
		u.Infof("%s has no entry for %s", fstabPath, mountPoint)
	}
	if out.CredentialsFile != "" {
		u.Successf("Deleted credentials file %s", out.CredentialsFile)
	}
	return nil
}

// ReportReachability prints a probe result and reports whether the server
// answered on its share port
func ReportReachability(u *ui.UI, fsType share.FilesystemType, r system.Reachability) bool {
	if !r.Resolved {
		u.Errorf("Cannot resolve %s: %v", r.Host, r.Err)
		u.Hints("Please check:",
			"The hostname is spelled correctly",
			"DNS is configured, or use the IP address",
		)
		return false
	}
	if !r.PortOpen {
		u.Errorf("%s does not answer on port %d", r.Host, r.Port)
		u.Hints("Please check:",
			"Server is powered on",
			fmt.Sprintf("The %s service is running", fsType),
			"Firewall allows the connection",
		)
		return false
	}
	u.Successf("%s is reachable on port %d", r.Host, r.Port)
	return true
}

// ReportCredentialError explains a failure of the secret store
func ReportCredentialError(u *ui.UI, err error) {
	var backendErr *credentials.BackendError
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		u.Warning("No saved password for this share")
	case errors.As(err, &backendErr):
		u.Errorf("The secret store is not available: %v", err)
		u.Info("Use --secret-backend memory to run without one")
	default:
		u.Error(err.Error())
	}
}
