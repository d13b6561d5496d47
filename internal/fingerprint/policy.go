package fingerprint

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a file whose fingerprint matches an
// earlier record.
type Policy string

const (
	// PolicySkip drops the duplicate without persisting it.
	PolicySkip Policy = "skip"
	// PolicyUpload persists the duplicate linked to its original; it is
	// uploaded like any other file.
	PolicyUpload Policy = "upload"
	// PolicyReplace marks the duplicate as superseding its original. It is
	// persisted and uploaded exactly like PolicyUpload.
	PolicyReplace Policy = "replace"
	// PolicyTrack persists like PolicyUpload; the name only affects reporting.
	PolicyTrack Policy = "track"
)

// Policies lists every supported policy.
func Policies() []Policy {
	return []Policy{PolicySkip, PolicyUpload, PolicyReplace, PolicyTrack}
}

// ParsePolicy normalizes a policy name.
func ParsePolicy(value string) (Policy, error) {
	normalized := Policy(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range Policies() {
		if p == normalized {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown duplicate policy %q (want skip, upload, replace or track)", value)
}

// Persists reports whether a duplicate is stored under this policy.
func (p Policy) Persists() bool {
	return p != PolicySkip
}

func (p Policy) String() string { return string(p) }
