package prereq

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// versionSatisfies reports whether an installed version fulfils the wanted
// one. wanted may be an exact version or a semver constraint such as
// "~1.10" or ">= 1.14, < 2". An empty wanted accepts anything. When either
// side is not semver the comparison falls back to string equality.
func versionSatisfies(installed, wanted string) bool {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" {
		return true
	}
	if installed == "" {
		return false
	}

	got, err := semver.NewVersion(installed)
	if err != nil {
		return trimV(installed) == trimV(wanted)
	}
	if isConstraint(wanted) {
		c, err := semver.NewConstraint(wanted)
		if err != nil {
			return false
		}
		return c.Check(got)
	}
	want, err := semver.NewVersion(wanted)
	if err != nil {
		return trimV(installed) == trimV(wanted)
	}
	return got.Equal(want)
}

func isConstraint(v string) bool {
	return strings.ContainsAny(v, "^~<>=*, |") || strings.HasSuffix(v, ".x")
}

func trimV(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}
