package share

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cifsFields() RawFields {
	return RawFields{
		Server:     "192.168.1.10",
		Share:      "shared",
		MountPoint: "/mnt/shared",
		Type:       "cifs",
		Username:   "alice",
		Password:   "s3cret",
		Options:    []string{"vers=3.0", "uid=1000"},
	}
}

func nfsFields() RawFields {
	return RawFields{
		Server:     "nas.local",
		Share:      "/volume1/media",
		MountPoint: "/mnt/media",
		Type:       "nfs",
		Options:    []string{"nfsvers=4.2", "_netdev"},
	}
}

func TestValidateFirstOffendingField(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *RawFields)
		wantField string
	}{
		{"missing server", func(r *RawFields) { r.Server = "" }, FieldServer},
		{"missing share", func(r *RawFields) { r.Share = " " }, FieldShare},
		{"missing mount point", func(r *RawFields) { r.MountPoint = "" }, FieldMountPoint},
		{"missing type", func(r *RawFields) { r.Type = "" }, FieldType},
		{"missing server reported before bad mount point", func(r *RawFields) { r.Server = ""; r.MountPoint = "rel" }, FieldServer},
		{"relative mount point", func(r *RawFields) { r.MountPoint = "mnt/shared" }, FieldMountPoint},
		{"mount point checked before options", func(r *RawFields) { r.MountPoint = "mnt"; r.Options = []string{"a;b"} }, FieldMountPoint},
		{"unknown type", func(r *RawFields) { r.Type = "ext4" }, FieldType},
		{"server with slash", func(r *RawFields) { r.Server = "host/share" }, FieldServer},
		{"server with backslash", func(r *RawFields) { r.Server = `host\share` }, FieldServer},
		{"server not a hostname", func(r *RawFields) { r.Server = "bad host!" }, FieldServer},
		{"share with backslash", func(r *RawFields) { r.Share = `a\b` }, FieldShare},
		{"share only slashes", func(r *RawFields) { r.Share = "//" }, FieldShare},
		{"cifs without username", func(r *RawFields) { r.Username = "" }, FieldUsername},
		{"cifs bad username", func(r *RawFields) { r.Username = "alice,bob" }, FieldUsername},
		{"cifs password newline", func(r *RawFields) { r.Password = "a\nb" }, FieldPassword},
		{"cifs bad domain", func(r *RawFields) { r.Domain = "bad domain" }, FieldDomain},
		{"option with whitespace", func(r *RawFields) { r.Options = []string{"vers= 3"} }, FieldOptions},
		{"option with metacharacter", func(r *RawFields) { r.Options = []string{"uid=$(id -u)"} }, FieldOptions},
		{"password option", func(r *RawFields) { r.Options = []string{"password=hunter2"} }, FieldOptions},
		{"credentials option", func(r *RawFields) { r.Options = []string{"credentials=/tmp/x"} }, FieldOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := cifsFields()
			tt.mutate(&raw)

			_, err := Validate(raw)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "error should be a *ValidationError, got %T", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidateNFSRejectsCIFSFields(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *RawFields)
		wantField string
	}{
		{"username", func(r *RawFields) { r.Username = "alice" }, FieldUsername},
		{"password", func(r *RawFields) { r.Password = "secret" }, FieldPassword},
		{"domain", func(r *RawFields) { r.Domain = "WORKGROUP" }, FieldDomain},
		{"export with colon", func(r *RawFields) { r.Share = "/a:b" }, FieldShare},
		{"export not canonical", func(r *RawFields) { r.Share = "/a/../b" }, FieldShare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := nfsFields()
			tt.mutate(&raw)

			_, err := Validate(raw)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidateCIFSGuestNeedsNoUsername(t *testing.T) {
	for _, guest := range []string{"guest", "sec=none", "GUEST"} {
		raw := cifsFields()
		raw.Username = ""
		raw.Password = ""
		raw.Options = []string{guest, "vers=3.0"}

		p, err := Validate(raw)
		require.NoError(t, err, "guest marker %q", guest)
		assert.True(t, p.IsGuest())
		assert.False(t, p.NeedsCredentials())
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	inputs := []RawFields{cifsFields(), nfsFields()}

	withDupes := cifsFields()
	withDupes.Share = "/shared/"
	withDupes.MountPoint = "/mnt/shared/"
	withDupes.Type = "SMB"
	withDupes.Domain = "WORKGROUP"
	withDupes.Options = []string{"vers=3.0", "vers=3.0", "ro"}
	inputs = append(inputs, withDupes)

	relativeExport := nfsFields()
	relativeExport.Share = "volume1/media/"
	inputs = append(inputs, relativeExport)

	for _, raw := range inputs {
		first, err := Validate(raw)
		require.NoError(t, err)

		second, err := Validate(first.Raw())
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "revalidation changed %v into %v", first, second)
	}
}

func TestValidateNormalizesValidInput(t *testing.T) {
	raw := cifsFields()
	raw.Share = "/shared/"
	raw.MountPoint = "/mnt//shared/"
	raw.Type = "smb3"
	raw.Options = []string{"vers=3.0", "ro", "vers=3.0"}

	p, err := Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "shared", p.Share())
	assert.Equal(t, "/mnt/shared", p.MountPoint())
	assert.Equal(t, CIFS, p.Type())
	assert.Equal(t, []string{"vers=3.0", "ro"}, p.Options())
	assert.Equal(t, "//192.168.1.10/shared", p.Device())
}

func TestDevice(t *testing.T) {
	p, err := Validate(nfsFields())
	require.NoError(t, err)
	assert.Equal(t, "nas.local:/volume1/media", p.Device())

	raw := nfsFields()
	raw.Server = "fd00::10"
	p, err = Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "[fd00::10]:/volume1/media", p.Device())
}

func TestOptionsAreCopied(t *testing.T) {
	p, err := Validate(cifsFields())
	require.NoError(t, err)

	opts := p.Options()
	opts[0] = "mutated"
	assert.Equal(t, "vers=3.0", p.Options()[0])
}

func TestCredentialIdentifierIsStable(t *testing.T) {
	a, err := Validate(cifsFields())
	require.NoError(t, err)

	other := cifsFields()
	other.Password = "different"
	b, err := Validate(other)
	require.NoError(t, err)

	assert.Equal(t, a.CredentialID(), b.CredentialID())

	otherUser := cifsFields()
	otherUser.Username = "bob"
	c, err := Validate(otherUser)
	require.NoError(t, err)
	assert.NotEqual(t, a.CredentialID(), c.CredentialID())
}

func TestStringDoesNotLeakPassword(t *testing.T) {
	p, err := Validate(cifsFields())
	require.NoError(t, err)
	assert.NotContains(t, p.String(), "s3cret")
}
