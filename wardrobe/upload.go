package wardrobe

import (
	"encoding/base64"
	"path"
	"strings"

	"github.com/drippler/drippler"
)

const defaultContentType = "image/jpeg"

var mimeExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	"image/bmp":     "bmp",
	"image/tiff":    "tiff",
}

// File is an uploaded file as sent by a UI process. Data is base64, with or
// without a data URL prefix. A positive Size must match the decoded length.
type File struct {
	Data     string `json:"fileData"`
	Name     string `json:"fileName,omitempty"`
	Type     string `json:"fileType,omitempty"`
	Size     int64  `json:"fileSize,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Bytes decodes the file contents.
func (f File) Bytes() ([]byte, error) {
	if f.Data == "" {
		return nil, drippler.E(drippler.KindValidation, "No file data received")
	}
	if f.Encoding != "" && f.Encoding != "base64" {
		return nil, drippler.Errorf(drippler.KindValidation, "unsupported file encoding %q", f.Encoding)
	}
	data := f.Data
	if strings.HasPrefix(data, "data:") {
		if i := strings.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, drippler.Errorf(drippler.KindValidation, "invalid file data: %v", err)
	}
	if f.Size > 0 && int64(len(b)) != f.Size {
		return nil, drippler.Errorf(drippler.KindValidation, "file size mismatch: declared %d bytes, received %d", f.Size, len(b))
	}
	return b, nil
}

// ContentType returns the declared MIME type, defaulting to JPEG.
func (f File) ContentType() string {
	if f.Type != "" {
		return f.Type
	}
	return defaultContentType
}

// Extension picks the stored file extension: the file name's extension if
// present, else one derived from the MIME type, else jpg.
func (f File) Extension() string {
	if ext := strings.TrimPrefix(path.Ext(f.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := mimeExtensions[strings.ToLower(f.Type)]; ok {
		return ext
	}
	return "jpg"
}
