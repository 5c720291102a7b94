package bridge

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

func parseConstraint(c string) (*semver.Constraints, error) {
	cons, err := semver.NewConstraint(c)
	if err != nil {
		return nil, fmt.Errorf("invalid host version constraint %q: %w", c, err)
	}
	return cons, nil
}

// CheckHostVersion verifies a host-reported bridge version against a semver
// constraint. An empty constraint accepts anything. An empty version is
// accepted too: older hosts do not report one.
func CheckHostVersion(version, constraint string) error {
	if constraint == "" || version == "" {
		return nil
	}

	cons, err := parseConstraint(constraint)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: unparseable version %q", ErrIncompatibleHost, version)
	}
	if !cons.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleHost, v, constraint)
	}
	return nil
}
