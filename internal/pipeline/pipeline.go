// Package pipeline holds identity and integrity primitives shared by every
// stage: run identifiers, stable content-addressed hashing, and the error
// type that aborts a stage when its inputs are internally inconsistent.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunIDLayout is the timestamp format used for generated run identifiers.
const RunIDLayout = "20060102T150405Z"

// NewRunID returns a fresh UTC-timestamped run identifier.
func NewRunID() string {
	return time.Now().UTC().Format(RunIDLayout)
}

// StableUUID derives a deterministic version-5 UUID for a namespaced value.
// The same (kind, value) pair always yields the same id across runs and hosts.
func StableUUID(kind, value string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("distill:"+kind+":"+value)).String()
}

// RecordID derives a content-addressed identifier from its parts.
// Parts are joined with "|" before hashing, so RecordID("a", "b") and
// RecordID("a|b") collide only if callers mix the two forms.
func RecordID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// UnitInterval maps a string deterministically into [0, 1).
// The first 48 bits of the SHA-256 digest are used, which keeps the
// value exactly representable as a float64.
func UnitInterval(value string) float64 {
	sum := sha256.Sum256([]byte(value))
	var v uint64
	for _, b := range sum[:6] {
		v = v<<8 | uint64(b)
	}
	return float64(v) / float64(uint64(1)<<48)
}

// IntegrityError reports duplicate or unjoinable records within a stage's
// inputs. It signals an upstream defect: the stage aborts rather than
// silently dropping or duplicating data.
type IntegrityError struct {
	Stage  string
	Reason string
	IDs    []string
}

func (e *IntegrityError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s: data integrity violation: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: data integrity violation: %s (ids: %s)", e.Stage, e.Reason, strings.Join(e.IDs, ", "))
}
