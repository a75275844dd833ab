package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// persistedTags is the on-disk shape written to tags.persistencePath.
// Only the declared default tags are persisted, never live mirror
// values: spec.md's Non-goals exclude persisting tag values across
// restarts, but persisting the *declared defaults* is a config concern.
type persistedTags struct {
	DefaultTags map[string]string `toml:"defaultTags"`
}

// PersistDefaultTags writes tags to path as a standalone TOML document.
func PersistDefaultTags(path string, tags map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return dcerrors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(persistedTags{DefaultTags: tags}); err != nil {
		return dcerrors.Wrapf(err, "failed to encode tags to %s", path)
	}
	return nil
}

// LoadPersistedTags reads a previously persisted defaultTags snapshot,
// returning (nil, nil) if path does not exist yet.
func LoadPersistedTags(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dcerrors.Wrapf(err, "failed to read %s", path)
	}

	var pt persistedTags
	if err := toml.Unmarshal(data, &pt); err != nil {
		return nil, dcerrors.Wrapf(err, "failed to parse %s", path)
	}
	return pt.DefaultTags, nil
}
