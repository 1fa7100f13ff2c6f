package enhance

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes is the largest accepted upload.
const DefaultMaxUploadBytes int64 = 10 << 20

// Messages shown inline for rejected uploads.
const (
	MsgUnsupportedType = "Please select a JPG or PNG image."
	MsgTooLarge        = "File must be under 10MB."
	MsgNoFile          = "Please select an image."
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Upload is an image selected for enhancement.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the upload size in bytes.
func (u Upload) Size() int64 { return int64(len(u.Data)) }

// DetectContentType sniffs the type from the bytes. Only when the bytes are
// unrecognizable does it fall back to the declared type and then the file
// extension.
func DetectContentType(name, declared string, data []byte) string {
	if len(data) > 0 {
		if sniffed := http.DetectContentType(data); sniffed != "application/octet-stream" {
			return sniffed
		}
	}
	if declared != "" {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = declared[:i]
		}
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ValidateUpload checks type and size. maxBytes <= 0 uses
// DefaultMaxUploadBytes. It fills in u.ContentType on success.
func ValidateUpload(u *Upload, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if u == nil || len(u.Data) == 0 {
		return &ValidationError{Field: "image", Message: MsgNoFile}
	}

	ct := DetectContentType(u.Name, u.ContentType, u.Data)
	if !allowedTypes[ct] {
		return &ValidationError{Field: "image", Message: MsgUnsupportedType}
	}
	if u.Size() > maxBytes {
		return &ValidationError{Field: "image", Message: tooLargeMessage(maxBytes)}
	}
	u.ContentType = ct
	return nil
}

// ValidateScale accepts 2 and 4.
func ValidateScale(scale int) error {
	if scale != 2 && scale != 4 {
		return ErrInvalidScale
	}
	return nil
}

func tooLargeMessage(maxBytes int64) string {
	if maxBytes == DefaultMaxUploadBytes {
		return MsgTooLarge
	}
	if maxBytes%(1<<20) == 0 {
		return fmt.Sprintf("File must be under %dMB.", maxBytes>>20)
	}
	return fmt.Sprintf("File must be under %dKB.", maxBytes>>10)
}
