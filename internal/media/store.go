// Package media stores chat attachments and returns the durable URL each one
// is served under.
package media

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindPdf   Kind = "pdf"
)

var (
	ErrEmptyPayload    = errors.New("empty attachment payload")
	ErrInvalidPayload  = errors.New("invalid attachment payload")
	ErrUnsupportedType = errors.New("unsupported attachment type")
)

var extensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"application/pdf": ".pdf",
}

type Uploader interface {
	Upload(ctx context.Context, kind Kind, payload string) (string, error)
}

// LocalStore writes attachments below dir, one subdirectory per kind. Objects
// are named by the blake2b digest of their content, so uploading the same
// bytes twice yields the same URL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	for _, k := range []Kind{KindImage, KindVideo, KindPdf} {
		if err := os.MkdirAll(filepath.Join(dir, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
	}

	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Upload(ctx context.Context, kind Kind, payload string) (string, error) {
	data, contentType, err := decodePayload(payload)
	if err != nil {
		return "", err
	}

	if !kind.accepts(contentType) {
		return "", fmt.Errorf("%w: %q is not a valid %s", ErrUnsupportedType, contentType, kind)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := blake2b.Sum256(data)
	name := hex.EncodeToString(sum[:16]) + extensionFor(contentType)
	path := filepath.Join(s.dir, string(kind), name)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeFileAtomic(path, data); err != nil {
			return "", fmt.Errorf("write attachment: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("stat attachment: %w", err)
	}

	return s.baseURL + "/" + string(kind) + "/" + name, nil
}

func (k Kind) accepts(contentType string) bool {
	switch k {
	case KindImage:
		return strings.HasPrefix(contentType, "image/")
	case KindVideo:
		return strings.HasPrefix(contentType, "video/")
	case KindPdf:
		return contentType == "application/pdf"
	}
	return false
}

// decodePayload accepts a data URL ("data:image/png;base64,...") or bare
// base64, in which case the content type is sniffed.
func decodePayload(payload string) ([]byte, string, error) {
	if payload == "" {
		return nil, "", ErrEmptyPayload
	}

	var contentType string
	encoded := payload
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data url", ErrInvalidPayload)
		}
		contentType = strings.TrimSuffix(header, ";base64")
		encoded = body
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyPayload
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	return data, contentType, nil
}

func extensionFor(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
