package git

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultReference requests the upstream default branch.
const DefaultReference = "master"

// versionPattern is the upstream release naming scheme: "v" followed by a
// major digit, a period and two digits, optionally suffixed with a patch
// letter or a release-candidate marker (v2.79, v2.79b, v2.74-rc2).
var versionPattern = regexp.MustCompile(`^v(\d\.\d\d)(a|b|c|-rc\d*)?$`)

// ValidateReference checks a requested reference against the naming scheme
// before any network I/O. Empty means the default branch.
func ValidateReference(reference string) error {
	if reference == "" || reference == DefaultReference {
		return nil
	}
	if !versionPattern.MatchString(reference) {
		return fmt.Errorf("reference %q does not match the release naming scheme: expected 'v' followed by a digit, a period and two digits, optionally suffixed with 'a', 'b', 'c' or '-rcN' (for example v2.74-rc2), or %q", reference, DefaultReference)
	}
	return nil
}

// Series extracts the major.minor series from a version reference
// ("v2.79b" -> "2.79"). Returns "" for non-version references.
func Series(reference string) string {
	m := versionPattern.FindStringSubmatch(reference)
	if m == nil {
		return ""
	}
	return m[1]
}

// RemoteReference is a single advertised ref of the upstream repository.
type RemoteReference struct {
	Name    string // short name ("master", "v2.79")
	RefName string // full name ("refs/heads/master", "refs/tags/v2.79")
	Hash    string // commit SHA
}

// IsTag reports whether the reference is a tag.
func (r RemoteReference) IsTag() bool {
	return strings.HasPrefix(r.RefName, "refs/tags/")
}

// IsBranch reports whether the reference is a branch.
func (r RemoteReference) IsBranch() bool {
	return strings.HasPrefix(r.RefName, "refs/heads/")
}

// pickReference resolves the requested release reference against the
// advertised refs: an exact tag match wins; otherwise the nearest
// compatible release branch (one carrying the same major.minor series);
// otherwise the resolution fails. The default reference resolves to the
// upstream default branch.
func pickReference(refs []RemoteReference, reference string) (RemoteReference, error) {
	if reference == "" {
		reference = DefaultReference
	}

	if reference == DefaultReference {
		for _, candidate := range []string{"master", "main"} {
			for _, ref := range refs {
				if ref.IsBranch() && ref.Name == candidate {
					return ref, nil
				}
			}
		}
		return RemoteReference{}, fmt.Errorf("upstream advertises no default branch")
	}

	// Exact tag match.
	for _, ref := range refs {
		if ref.IsTag() && ref.Name == reference {
			return ref, nil
		}
	}

	// Nearest compatible branch: a release branch of the same series,
	// e.g. blender-v2.79-release for v2.79b.
	series := Series(reference)
	if series != "" {
		var candidates []RemoteReference
		for _, ref := range refs {
			if ref.IsBranch() && strings.Contains(ref.Name, series) && strings.Contains(ref.Name, "release") {
				candidates = append(candidates, ref)
			}
		}
		if len(candidates) > 0 {
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
			return candidates[0], nil
		}
	}

	return RemoteReference{}, fmt.Errorf("no tag or compatible release branch matches %q", reference)
}
