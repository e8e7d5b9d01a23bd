// Package git implements the source-fetch stage: it resolves a release
// reference against the upstream repository's remote refs, clones the
// source tree at that reference, and transparently reuses a compatible
// existing checkout on re-entry.
package git
