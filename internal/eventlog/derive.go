package eventlog

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// LineHash computes a fast, non-cryptographic hash of a raw log line, used
// by the tailer's seen-set to detect replayed lines (spec.md §4.3 step 3).
// FNV-1a is the standard library's idiomatic choice for this kind of
// high-volume, non-adversarial dedup key; nothing in the retrieval pack pulls
// in a dedicated fast-hash library for this narrow a concern, so this one
// function stays on the standard library (see DESIGN.md).
func LineHash(line []byte) string {
	h := fnv.New64a()
	h.Write(line)
	return strconv.FormatUint(h.Sum64(), 16)
}

// planModeEnterMarker and planModeExitMarker are the system markers spec.md
// §4.3 names for edge-triggered plan-mode detection.
const (
	planModeEnterMarker = "plan mode is active"
	planModeExitMarker  = "exited plan mode"
)

// PlanModeTransition inspects a user record's plain-text content (if any)
// for the plan-mode system markers. Returns (entering, exiting); both false
// means no transition was observed in this record.
func PlanModeTransition(text string) (entering, exiting bool) {
	lower := strings.ToLower(text)
	entering = strings.Contains(lower, planModeEnterMarker)
	exiting = strings.Contains(lower, planModeExitMarker)
	return entering, exiting
}

// MessageTextHashKey derives the composite dedup key the Router uses to
// bridge Tailer and PTY-fallback arrivals for the same logical message
// (spec.md §4.5): first 100 trimmed characters, hashed.
func MessageTextHashKey(sessionID, text string) string {
	trimmed := strings.TrimSpace(text)
	if runes := []rune(trimmed); len(runes) > 100 {
		trimmed = string(runes[:100])
	}
	h := fnv.New64a()
	h.Write([]byte(trimmed))
	return "pty:" + sessionID + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// TodosHash hashes a raw todos array so the tailer can detect whether the
// list changed since the last emission (spec.md §4.3: "hash the full list;
// if changed, emit todos").
func TodosHash(todos []byte) string {
	h := fnv.New64a()
	h.Write(todos)
	return strconv.FormatUint(h.Sum64(), 16)
}
