package container

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
)

// projectIDPattern is the single-segment whitelist from spec §4.4. Ingestion
// (§3) additionally allows one "customer/project" separator; a project_id
// in that form is split on "/" and each segment is checked against this
// same whitelist, rather than widening it to accept "/" directly — that
// would also accept "../.." which the whitelist exists to reject.
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxProjectIDLength = 100

// ValidateProjectID enforces the whitelist pattern and length cap, and
// rejects path traversal and control characters even though the whitelist
// pattern already excludes them, matching the defense-in-depth the
// original manager applies. A "customer/project" identifier is accepted as
// long as both segments individually pass the whitelist.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return apperr.New(apperr.ContainerErr, "project_id must not be empty")
	}
	if len(projectID) > maxProjectIDLength {
		return apperr.New(apperr.ContainerErr, "project_id exceeds maximum length")
	}
	segments, ok := splitProjectID(projectID)
	if !ok {
		return apperr.New(apperr.ContainerErr, "project_id contains disallowed characters")
	}
	for _, segment := range segments {
		if segment == "" || !projectIDPattern.MatchString(segment) {
			return apperr.New(apperr.ContainerErr, "project_id contains disallowed characters")
		}
	}
	return nil
}

// splitProjectID splits on "/", accepting at most one separator (the
// "customer/project" form); more than one is rejected outright rather than
// validated segment-by-segment.
func splitProjectID(projectID string) ([]string, bool) {
	segments := []string{}
	start := 0
	for i := 0; i < len(projectID); i++ {
		if projectID[i] == '/' {
			segments = append(segments, projectID[start:i])
			start = i + 1
		}
	}
	segments = append(segments, projectID[start:])
	if len(segments) > 2 {
		return nil, false
	}
	return segments, true
}

// projectHash returns the first 8 hex characters of SHA-256(projectID),
// used to make container/volume names deterministic and collision-resistant.
func projectHash(projectID string) string {
	sum := sha256.Sum256([]byte(projectID))
	return hex.EncodeToString(sum[:])[:8]
}

// dockerSafeSegment replaces the "/" a customer/project identifier may
// carry with "-" so the derived name is a legal Docker resource name; the
// hash is computed over the original, unsanitized projectID so distinct
// project_ids never collide after sanitization.
func dockerSafeSegment(projectID string) string {
	out := make([]byte, len(projectID))
	for i := 0; i < len(projectID); i++ {
		if projectID[i] == '/' {
			out[i] = '-'
		} else {
			out[i] = projectID[i]
		}
	}
	return string(out)
}

// projectScopedName builds the deterministic <prefix>-<projectID>-<hash8>
// name shared by container and volume naming.
func projectScopedName(prefix, projectID string) string {
	return prefix + "-" + dockerSafeSegment(projectID) + "-" + projectHash(projectID)
}
