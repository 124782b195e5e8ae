package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	errNoFile   = errors.New("No file uploaded")
	errTooLarge = errors.New("File too large")
)

// readUpload parses the multipart body and returns the bytes and name of
// the "image" field. A missing or empty field yields errNoFile.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, string, error) {
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", errTooLarge
		}
		return nil, "", fmt.Errorf("%w: %v", errNoFile, err)
	}

	f, hdr, err := r.FormFile("image")
	if err != nil {
		return nil, "", errNoFile
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errNoFile
	}
	return data, hdr.Filename, nil
}

// writeUploadError answers a failed readUpload. Returns false when err is
// not an upload problem and the caller must handle it.
func writeUploadError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, errTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, errTooLarge.Error(), "")
	case errors.Is(err, errNoFile):
		details := ""
		if msg := err.Error(); msg != errNoFile.Error() {
			details = strings.TrimPrefix(msg, errNoFile.Error()+": ")
		}
		writeError(w, http.StatusBadRequest, errNoFile.Error(), details)
	default:
		return false
	}
	return true
}

// formValue returns the trimmed form field or def when it is empty.
func formValue(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}
