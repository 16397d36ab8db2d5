package docagent

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash returns the hex sha256 digest of s.
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RepetitionDetector counts consecutive observations of an identical
// signal. The first occurrence counts as one.
//
// When the count reaches Threshold, Observe reports true and the count
// restarts, so a run of repeats trips once per Threshold observations.
type RepetitionDetector struct {
	Threshold int

	lastHash string
	count    int
}

// NewRepetitionDetector creates a detector that trips after threshold
// identical observations in a row.
func NewRepetitionDetector(threshold int) *RepetitionDetector {
	return &RepetitionDetector{Threshold: threshold}
}

// Observe records signal and reports whether the detector tripped.
func (d *RepetitionDetector) Observe(signal string) bool {
	h := contentHash(signal)
	if d.count > 0 && h == d.lastHash {
		d.count++
	} else {
		d.lastHash = h
		d.count = 1
	}
	if d.Threshold > 0 && d.count >= d.Threshold {
		d.count = 0
		return true
	}
	return false
}
