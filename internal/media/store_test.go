package media

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// smallest valid PNG signature plus IHDR start, enough for content sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func newTestStore(t *testing.T) *LocalStore {
	s, err := NewLocalStore(t.TempDir(), "http://localhost:8000/media/")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestNewLocalStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/media")
	assert.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	for _, k := range []Kind{KindImage, KindVideo, KindPdf} {
		info, err := os.Stat(filepath.Join(dir, string(k)))
		assert.NoError(t, err, "expected %s directory to exist", k)
		assert.True(t, info.IsDir())
	}
}

func TestLocalStore_Upload(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4\n%test document\n")

	tcases := []struct {
		name    string
		kind    Kind
		payload string
		suffix  string
		err     error
	}{
		{
			name:    "image data url",
			kind:    KindImage,
			payload: dataURL("image/png", pngBytes),
			suffix:  ".png",
		},
		{
			name:    "bare base64 image is sniffed",
			kind:    KindImage,
			payload: base64.StdEncoding.EncodeToString(pngBytes),
			suffix:  ".png",
		},
		{
			name:    "pdf data url",
			kind:    KindPdf,
			payload: dataURL("application/pdf", pdfBytes),
			suffix:  ".pdf",
		},
		{
			name:    "video data url",
			kind:    KindVideo,
			payload: dataURL("video/mp4", []byte("not really a video")),
			suffix:  ".mp4",
		},
		{
			name:    "empty payload",
			kind:    KindImage,
			payload: "",
			err:     ErrEmptyPayload,
		},
		{
			name:    "invalid base64",
			kind:    KindImage,
			payload: "data:image/png;base64,@@@",
			err:     ErrInvalidPayload,
		},
		{
			name:    "data url without base64 marker",
			kind:    KindImage,
			payload: "data:image/png,rawbytes",
			err:     ErrInvalidPayload,
		},
		{
			name:    "pdf uploaded as image",
			kind:    KindImage,
			payload: dataURL("application/pdf", pdfBytes),
			err:     ErrUnsupportedType,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)

			url, err := s.Upload(context.Background(), tc.kind, tc.payload)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Empty(t, url)
				return
			}

			assert.NoError(t, err)
			assert.True(t, strings.HasPrefix(url, "http://localhost:8000/media/"+string(tc.kind)+"/"), "unexpected url %q", url)
			assert.True(t, strings.HasSuffix(url, tc.suffix), "expected url %q to end in %q", url, tc.suffix)

			name := url[strings.LastIndex(url, "/")+1:]
			_, err = os.Stat(filepath.Join(s.Dir(), string(tc.kind), name))
			assert.NoError(t, err, "expected stored file to exist")
		})
	}
}

func TestLocalStore_Upload_ContentAddressed(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Upload(context.Background(), KindImage, dataURL("image/png", pngBytes))
	assert.NoError(t, err)
	second, err := s.Upload(context.Background(), KindImage, base64.StdEncoding.EncodeToString(pngBytes))
	assert.NoError(t, err)
	assert.Equal(t, first, second, "expected identical content to map to the same url")

	entries, err := os.ReadDir(filepath.Join(s.Dir(), string(KindImage)))
	assert.NoError(t, err)
	assert.Len(t, entries, 1, "expected a single stored object")
}

func TestLocalStore_Upload_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Upload(ctx, KindImage, dataURL("image/png", pngBytes))
	assert.ErrorIs(t, err, context.Canceled)
}
