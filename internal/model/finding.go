package model

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// TypeTag identifies a file format detected from magic bytes.
type TypeTag struct {
	// MIME is the detected media type, e.g. "application/zip".
	MIME string `json:"mime"`

	// Extension is the conventional file extension including the dot, e.g. ".zip".
	// It may be empty when the format has no customary extension.
	Extension string `json:"extension,omitempty"`
}

// String returns the MIME type, which is how type tags appear in output.
func (t TypeTag) String() string {
	return t.MIME
}

// Finding is a file whose measured entropy exceeded the detection threshold.
// Findings are immutable once created and are handed to a Sink as soon as the
// evaluator produces them.
type Finding struct {
	// Path is the path of the candidate file.
	Path string `json:"path"`

	// Score is the estimated Shannon entropy in bits per byte, in [0, 8].
	Score float32 `json:"score"`

	// Size is the file length in bytes at evaluation time.
	Size int64 `json:"size"`

	// SampledBytes is the number of bytes that went into the histogram.
	SampledBytes int64 `json:"sampled_bytes"`

	// Type is the format detected by the type sniffer, if any.
	// Nil means the file has no recognizable signature (or sniffing was
	// disabled or failed), which is what an encrypted container looks like.
	Type *TypeTag `json:"type,omitempty"`

	// Suppressed is true when Type matched the known-format policy.
	// Suppressed findings are counted and logged but not streamed.
	Suppressed bool `json:"suppressed,omitempty"`

	// Fingerprint is a hex SHA3-256 digest over the file size and its head
	// bytes. It lets the history command recognize a container that was
	// renamed or moved between scans. Empty when fingerprinting is disabled.
	Fingerprint string `json:"fingerprint,omitempty"`

	// DetectedAt is when the evaluator produced the finding.
	DetectedAt time.Time `json:"detected_at"`
}

// TypeName returns the MIME type of the finding or "unknown".
func (f Finding) TypeName() string {
	if f.Type == nil {
		return "unknown"
	}
	return f.Type.MIME
}

// Key returns the identity used to match findings across scans.
// The fingerprint is preferred so that moved files still match.
func (f Finding) Key() string {
	if f.Fingerprint != "" {
		return "sha3:" + f.Fingerprint
	}
	return "path:" + f.Path
}

// FormatScore renders an entropy score the way findings are printed.
func FormatScore(score float32) string {
	return strconv.FormatFloat(float64(score), 'f', 4, 32)
}

// DisplayPath returns p with control characters and invalid UTF-8 escaped,
// so a hostile file name cannot inject extra lines into line-oriented output.
// Printable paths are returned unchanged.
func DisplayPath(p string) string {
	clean := true
	for _, r := range p {
		if r == utf8.RuneError || unicode.IsControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return p
	}

	var sb strings.Builder
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRuneInString(p[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			sb.WriteString(`\x`)
			sb.WriteString(strconv.FormatUint(uint64(p[i])|0x100, 16)[1:])
		case unicode.IsControl(r):
			q := strconv.QuoteRune(r)
			sb.WriteString(q[1 : len(q)-1])
		default:
			sb.WriteString(p[i : i+size])
		}
		i += size
	}
	return sb.String()
}
