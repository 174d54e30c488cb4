// Package pdf reads locally stored article PDFs to recover the DOIs in their
// reference sections.
package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
)

// ErrNoPDF indicates that the library holds no PDF for a DOI.
var ErrNoPDF = errors.New("no PDF for DOI")

// Library resolves DOIs to PDF files under a root directory. Files are named
// after the DOI with "/" replaced by "_", e.g. 10.1000_abc.pdf.
type Library struct {
	root string
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{root: dir}
}

// FileName returns the file name used for a DOI.
func FileName(d string) string {
	return strings.ReplaceAll(doi.Normalize(d), "/", "_") + ".pdf"
}

// ResolvePath returns the absolute path of the PDF stored for a DOI.
func (l *Library) ResolvePath(d string) (string, error) {
	if l.root == "" {
		return "", fmt.Errorf("pdf directory not configured")
	}
	if !doi.Valid(d) {
		return "", fmt.Errorf("%w: %q is not a DOI", ErrNoPDF, d)
	}

	fullPath := filepath.Join(l.root, FileName(d))
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNoPDF, d)
		}
		return "", fmt.Errorf("checking PDF: %w", err)
	}
	return fullPath, nil
}
