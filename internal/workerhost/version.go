package workerhost

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/varbatch/internal/ipc"
)

// ErrProtocolMismatch is returned when a worker speaks an incompatible
// protocol major version.
var ErrProtocolMismatch = errors.New("worker protocol version incompatible")

// VersionCompatibility describes how two protocol versions relate.
type VersionCompatibility int

const (
	// Compatible means the major versions match and the minor/patch are identical.
	Compatible VersionCompatibility = iota
	// MinorMismatch means the major versions match but minor or patch differ.
	MinorMismatch
	// MajorMismatch means the major versions differ.
	MajorMismatch
)

func (c VersionCompatibility) String() string {
	switch c {
	case Compatible:
		return "compatible"
	case MinorMismatch:
		return "minor_mismatch"
	case MajorMismatch:
		return "major_mismatch"
	default:
		return "unknown"
	}
}

// CompareProtocolVersions compares two semantic versions.
func CompareProtocolVersions(core, worker string) (VersionCompatibility, error) {
	cv, err := semver.NewVersion(core)
	if err != nil {
		return MajorMismatch, fmt.Errorf("parsing core protocol version %q: %w", core, err)
	}
	wv, err := semver.NewVersion(worker)
	if err != nil {
		return MajorMismatch, fmt.Errorf("parsing worker protocol version %q: %w", worker, err)
	}

	switch {
	case cv.Major() != wv.Major():
		return MajorMismatch, nil
	case cv.Equal(wv):
		return Compatible, nil
	default:
		return MinorMismatch, nil
	}
}

// CheckProtocol returns an error wrapping ErrProtocolMismatch unless worker
// shares ipc.ProtocolVersion's major version. Unparseable versions are
// mismatches.
func CheckProtocol(worker string) error {
	result, err := CompareProtocolVersions(ipc.ProtocolVersion, worker)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolMismatch, err)
	}
	if result == MajorMismatch {
		return fmt.Errorf("%w: worker speaks %s, dispatcher speaks %s",
			ErrProtocolMismatch, worker, ipc.ProtocolVersion)
	}
	return nil
}
