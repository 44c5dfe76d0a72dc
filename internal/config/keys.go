package config

// Remembered value keys
const (
	KeyLastType       = "LAST_TYPE"
	KeyLastServer     = "LAST_SERVER"
	KeyLastShare      = "LAST_SHARE"
	KeyLastMountPoint = "LAST_MOUNT_POINT"
	KeyLastUsername   = "LAST_USERNAME"
	KeyLastDomain     = "LAST_DOMAIN"
	KeyLastOptions    = "LAST_OPTIONS"
	KeyLastAddToFstab = "LAST_ADD_TO_FSTAB"
	KeyLastSaveSecret = "LAST_SAVE_CREDENTIALS"

	KeyConfigVersion = "CONFIG_VERSION"
)

// Default values for remembered keys
var Defaults = map[string]string{
	KeyLastType:       "cifs",
	KeyLastMountPoint: "/mnt/share",
	KeyLastAddToFstab: "false",
	KeyLastSaveSecret: "false",
	KeyConfigVersion:  "1",
}
