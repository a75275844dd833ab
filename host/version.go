package host

import (
	"github.com/Masterminds/semver/v3"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// validateVersion checks a plugin's declared host-version constraint
// against the running host version. An empty constraint means no
// restriction. Grounded on the teacher's plugin/registry.go
// validateVersion, renamed from QNTXVersion to HostVersion.
func validateVersion(hostVersion, constraintStr string) error {
	if constraintStr == "" {
		return nil
	}

	hostVer, err := semver.NewVersion(hostVersion)
	if err != nil {
		return dcerrors.Wrapf(err, "invalid host version %q", hostVersion)
	}

	constraint, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return dcerrors.Wrapf(err, "invalid version constraint %q", constraintStr)
	}

	if !constraint.Check(hostVer) {
		return dcerrors.Wrapf(dcerrors.ErrVersionIncompatible, "requires host %s, running %s", constraintStr, hostVersion)
	}
	return nil
}
