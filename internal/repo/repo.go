// Package repo normalizes repository references and classifies them into
// build profiles.
package repo

import (
	"regexp"
	"strings"
)

// Profile selects the build strategy for a repository.
type Profile string

const (
	// ProfileLargeMonorepo is the canonical multi-canister source tree.
	ProfileLargeMonorepo Profile = "large-monorepo"
	// ProfileStandalone is any other repository.
	ProfileStandalone Profile = "standalone"
)

// refSuffix matches a trailing /tree/<ref> or /commit/<hash> segment.
var refSuffix = regexp.MustCompile(`/(tree|commit)/[^/]+$`)

// Normalize strips trailing slashes, a trailing .git, and a trailing
// /tree/<hash> or /commit/<hash> segment. Normalize(Normalize(u)) == Normalize(u).
func Normalize(url string) string {
	u := strings.TrimSpace(url)
	for {
		prev := u
		u = strings.TrimRight(u, "/")
		u = refSuffix.ReplaceAllString(u, "")
		u = strings.TrimSuffix(u, ".git")
		if u == prev {
			return u
		}
	}
}

// Classify returns ProfileLargeMonorepo only when the normalized url equals
// monorepoURL exactly (case-sensitive, scheme included). Sibling repositories
// sharing a prefix are standalone.
func Classify(url, monorepoURL string) Profile {
	if Normalize(url) == Normalize(monorepoURL) {
		return ProfileLargeMonorepo
	}
	return ProfileStandalone
}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	return p == ProfileLargeMonorepo || p == ProfileStandalone
}
