package analytics

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// IdentityFile is the name of the file inside the data directory that holds
// the installation identity.
const IdentityFile = "instance-uid"

// LoadOrCreateIdentity returns the installation identity stored at path.
// If the file is missing, unreadable or malformed, a new identity is
// generated with newID (uuid.NewString when nil), persisted on a best-effort
// basis and returned with firstRun set.
//
// It never fails: a usable identity is always returned.
func LoadOrCreateIdentity(fs afero.Fs, path string, newID func() string) (id string, firstRun bool) {
	if id, ok := ReadIdentity(fs, path); ok {
		return id, false
	}
	if newID == nil {
		newID = uuid.NewString
	}
	id = newID()
	// The identity is only reported, so a read-only data directory just
	// means a new identity on every start.
	_ = fs.MkdirAll(filepath.Dir(path), 0o750)
	_ = afero.WriteFile(fs, path, []byte(id), 0o600)
	return id, true
}

// ReadIdentity returns the identity stored at path, if it holds a valid one.
func ReadIdentity(fs afero.Fs, path string) (string, bool) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", false
		}
	}
	return id, true
}
