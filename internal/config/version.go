package config

import "fmt"

// CurrentVersion is the config file format this build reads. A missing
// version key is treated as current.
const CurrentVersion = 1

const (
	reasonTooOld = "older than this build"
	reasonTooNew = "newer than this build"
)

// VersionError reports a config file written for another format version.
type VersionError struct {
	Version int
	Current int
	Reason  string
}

func (e *VersionError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Reason {
	case reasonTooNew:
		return fmt.Sprintf("config version %d is newer than this build (current: %d); upgrade huddle", e.Version, e.Current)
	case "":
		return fmt.Sprintf("config version %d is unsupported (current: %d)", e.Version, e.Current)
	default:
		return fmt.Sprintf("config version %d is %s (current: %d)", e.Version, e.Reason, e.Current)
	}
}

// ValidateVersion rejects versions other than CurrentVersion.
func ValidateVersion(version int) error {
	switch {
	case version < CurrentVersion:
		return &VersionError{Version: version, Current: CurrentVersion, Reason: reasonTooOld}
	case version > CurrentVersion:
		return &VersionError{Version: version, Current: CurrentVersion, Reason: reasonTooNew}
	}
	return nil
}
