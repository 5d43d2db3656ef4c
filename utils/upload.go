package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// UploadFile is a file received from a client, ready to be stored.
type UploadFile struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// Ext returns the lower-cased extension of the original file name, including the dot.
func (f UploadFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Filename))
}

// OpenMultipart opens a multipart file header. The caller closes the returned closer once the
// upload has been consumed.
func OpenMultipart(fh *multipart.FileHeader, maxBytes int64) (UploadFile, io.Closer, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return UploadFile{}, nil, fmt.Errorf("file %s exceeds %d MB", fh.Filename, maxBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return UploadFile{}, nil, err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return UploadFile{Reader: f, Size: fh.Size, Filename: filepath.Base(fh.Filename), ContentType: ct}, f, nil
}
