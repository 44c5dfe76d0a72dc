package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/zoro11031/netmount/internal/cli"
	"github.com/zoro11031/netmount/internal/share"
)

// shareFlags describe a share on the command line
type shareFlags struct {
	server        string
	share         string
	fsType        string
	mountPoint    string
	username      string
	domain        string
	options       []string
	passwordStdin bool
}

func (f *shareFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&f.server, "server", "s", "", "Server hostname or IP address")
	flags.StringVar(&f.share, "share", "", "CIFS share name or NFS export path")
	flags.StringVarP(&f.fsType, "type", "t", "cifs", "Filesystem type: cifs or nfs")
	flags.StringVarP(&f.mountPoint, "mount-point", "m", "", "Local mount point")
	flags.StringVarP(&f.username, "username", "u", "", "CIFS username")
	flags.StringVar(&f.domain, "domain", "", "CIFS domain or workgroup")
	flags.StringSliceVarP(&f.options, "option", "o", nil, "Extra mount option, repeatable (key or key=value)")
	flags.BoolVar(&f.passwordStdin, "password-stdin", false, "Read the CIFS password from the first line of stdin")
}

// given reports whether the share was described on the command line
func (f *shareFlags) given() bool {
	return f.server != "" || f.share != ""
}

func (f *shareFlags) raw() share.RawFields {
	return share.RawFields{
		Server:     f.server,
		Share:      f.share,
		Type:       f.fsType,
		MountPoint: f.mountPoint,
		Username:   f.username,
		Domain:     f.domain,
		Options:    f.options,
	}
}

// forStore returns a copy usable where the mount point does not matter,
// such as the key of a saved password
func (f *shareFlags) forStore() *shareFlags {
	out := *f
	if out.mountPoint == "" {
		out.mountPoint = "/"
	}
	return &out
}

// params validates the flags. The mount point may also be the first
// positional argument. Without --password-stdin an interactive session asks
// for the password; an empty answer means the saved one is used.
func (f *shareFlags) params(app *cli.AppContext, args []string, stdin io.Reader) (share.MountParameters, error) {
	raw := f.raw()
	if raw.MountPoint == "" && len(args) > 0 {
		raw.MountPoint = args[0]
	}

	p, err := app.Service.Validate(raw)
	if err != nil || !p.NeedsCredentials() {
		return p, err
	}

	switch {
	case f.passwordStdin:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return p, fmt.Errorf("failed to read password from stdin: %w", err)
		}
		raw.Password = strings.TrimRight(line, "\r\n")
	case !app.UI.IsNonInteractive():
		app.UI.Info("Leave the password empty to use the saved one")
		raw.Password, err = app.UI.PromptPassword(fmt.Sprintf("Password for %s", p.Username()))
		if err != nil {
			return p, fmt.Errorf("failed to prompt for password: %w", err)
		}
	default:
		return p, nil
	}
	return app.Service.Validate(raw)
}
