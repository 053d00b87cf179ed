package validation

import (
	"path/filepath"
	"strings"

	"github.com/Gandorini/S-T-Station/notation"
)

// FileKind is the broad type of an upload, inferred from its extension.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindPDF
	KindImage
	KindNotation
)

func (k FileKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	case KindNotation:
		return "notation"
	default:
		return "unknown"
	}
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

// KindOf infers the kind of a file from its name.
func KindOf(name string) FileKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".pdf":
		return KindPDF
	case imageExtensions[ext]:
		return KindImage
	case notation.IsNotationFile(name):
		return KindNotation
	default:
		return KindUnknown
	}
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Kind is the kind inferred from the declared filename.
func (u Upload) Kind() FileKind {
	return KindOf(u.Filename)
}

// scannable reports whether the upload is a PDF or an image, the inputs
// every validation strategy accepts.
func (u Upload) scannable() bool {
	k := u.Kind()
	return k == KindPDF || k == KindImage
}
