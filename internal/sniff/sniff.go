package sniff

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nao1215/tchunt/internal/model"
)

// unidentifiedMIME is what mimetype reports for data without a signature.
const unidentifiedMIME = "application/octet-stream"

// Identifier detects the format of a file.
// Identify returns ok == false when the file has no recognizable signature.
type Identifier interface {
	Identify(path string) (tag model.TypeTag, ok bool, err error)
}

// MIMEIdentifier is an Identifier backed by magic-byte detection.
// It reads at most the first few kilobytes of a file.
type MIMEIdentifier struct{}

// NewMIMEIdentifier creates a MIMEIdentifier.
func NewMIMEIdentifier() *MIMEIdentifier {
	return &MIMEIdentifier{}
}

// Identify implements Identifier.
func (m *MIMEIdentifier) Identify(path string) (model.TypeTag, bool, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return model.TypeTag{}, false, fmt.Errorf("failed to detect type of %s: %w", path, err)
	}
	if mtype.Is(unidentifiedMIME) {
		return model.TypeTag{}, false, nil
	}
	return model.TypeTag{
		MIME:      baseMIME(mtype.String()),
		Extension: mtype.Extension(),
	}, true, nil
}

// baseMIME strips parameters such as "; charset=utf-8".
func baseMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Policy decides which identified formats are suppressed.
type Policy struct {
	// KnownTypes lists MIME prefixes (e.g. "application/zip", "video/")
	// that are considered benign. Empty means every identified type is.
	KnownTypes []string

	// ReportKnown disables suppression entirely; identified findings are
	// streamed with their type annotation.
	ReportKnown bool
}

// Suppresses reports whether a finding with the given type should be
// hidden. Findings without a type are never suppressed.
func (p Policy) Suppresses(tag *model.TypeTag) bool {
	if tag == nil || p.ReportKnown {
		return false
	}
	if len(p.KnownTypes) == 0 {
		return true
	}
	for _, prefix := range p.KnownTypes {
		if prefix != "" && strings.HasPrefix(tag.MIME, prefix) {
			return true
		}
	}
	return false
}
