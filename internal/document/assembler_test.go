package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/colormuse/print-api/internal/domain/order"
)

// --- Helpers ---

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func pngURI(t *testing.T, w, h int) string {
	t.Helper()
	return dataURI("image/png", pngBytes(t, w, h))
}

// bmpHeader returns a 32 bpp BMP file and info header declaring w×h with no
// pixel data behind it.
func bmpHeader(w, h int32) []byte {
	b := make([]byte, 54)
	copy(b, "BM")
	binary.LittleEndian.PutUint32(b[2:], 54)
	binary.LittleEndian.PutUint32(b[10:], 54)
	binary.LittleEndian.PutUint32(b[14:], 40)
	binary.LittleEndian.PutUint32(b[18:], uint32(w))
	binary.LittleEndian.PutUint32(b[22:], uint32(h))
	binary.LittleEndian.PutUint16(b[26:], 1)
	binary.LittleEndian.PutUint16(b[28:], 32)
	return b
}

// resizedPNG encodes a 1x1 PNG and rewrites its IHDR to declare w×h.
func resizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	// Signature (8), chunk length (4), "IHDR" (4), then width and height.
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func imageServer(t *testing.T, routes map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- Tests ---

func TestAssemble_OnePagePerImageInOrder(t *testing.T) {
	a := NewAssembler(nil, Config{})
	sizes := [][2]int{{200, 100}, {100, 400}, {50, 50}}
	sources := make([]string, len(sizes))
	for i, s := range sizes {
		sources[i] = pngURI(t, s[0], s[1])
	}

	doc, rects, err := a.layout(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 3, doc.Pages)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))
	require.Len(t, rects, 3)
	for i, s := range sizes {
		assert.Equal(t, Letter.Fit(s[0], s[1]), rects[i], "page %d", i+1)
	}
}

func TestAssemble_SinglePixel(t *testing.T) {
	a := NewAssembler(nil, Config{})

	doc, err := a.Assemble(context.Background(), []string{pngURI(t, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)
	assert.NotEmpty(t, doc.Data)
}

func TestAssemble_MixedSourcesKeepOrder(t *testing.T) {
	srv := imageServer(t, map[string][]byte{
		"/wide.png": pngBytes(t, 300, 100),
		"/tall.png": pngBytes(t, 100, 300),
	})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(40, 20), nil))

	a := NewAssembler(srv.Client(), Config{FetchConcurrency: 2})
	doc, rects, err := a.layout(context.Background(), []string{
		srv.URL + "/tall.png",
		dataURI("image/jpeg", jpg.Bytes()),
		srv.URL + "/wide.png",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, Letter.Fit(100, 300), rects[0])
	assert.Equal(t, Letter.Fit(40, 20), rects[1])
	assert.Equal(t, Letter.Fit(300, 100), rects[2])
}

func TestAssemble_TranscodesBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, solid(30, 60)))

	a := NewAssembler(nil, Config{})
	doc, rects, err := a.layout(context.Background(), []string{dataURI("image/bmp", buf.Bytes())})
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Pages)
	assert.Equal(t, Letter.Fit(30, 60), rects[0])
}

func TestAssemble_InvalidSource(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "plain text", source: "not-an-image"},
		{name: "unsupported scheme", source: "ftp://example.com/page.png"},
		{name: "data URI without payload", source: "data:image/png;base64"},
		{name: "data URI not base64", source: "data:image/png,rawbytes"},
		{name: "bad base64", source: "data:image/png;base64,!!!"},
		{name: "not an image", source: dataURI("image/png", []byte("hello world"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(nil, Config{})

			_, err := a.Assemble(context.Background(), []string{pngURI(t, 2, 2), tt.source})

			var srcErr *order.InvalidImageSourceError
			require.ErrorAs(t, err, &srcErr)
			assert.Equal(t, 1, srcErr.Index)
		})
	}
}

func TestAssemble_OverstatedDimensions(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "bmp", source: dataURI("image/bmp", bmpHeader(200000, 200000))},
		{name: "png", source: dataURI("image/png", resizedPNG(t, 60000, 60000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(nil, Config{})

			_, err := a.Assemble(context.Background(), []string{pngURI(t, 2, 2), tt.source})

			var srcErr *order.InvalidImageSourceError
			require.ErrorAs(t, err, &srcErr)
			assert.Equal(t, 1, srcErr.Index)
			assert.Contains(t, srcErr.Reason, "exceeds 50000000 pixels")
		})
	}
}

func TestAssemble_MaxImagePixels(t *testing.T) {
	a := NewAssembler(nil, Config{MaxImagePixels: 100})

	doc, err := a.Assemble(context.Background(), []string{pngURI(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)

	_, err = a.Assemble(context.Background(), []string{pngURI(t, 10, 11)})
	var srcErr *order.InvalidImageSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Contains(t, srcErr.Reason, "exceeds 100 pixels (10x11)")
}

func TestAssemble_FetchError(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/ok.png": pngBytes(t, 10, 10)})
	a := NewAssembler(srv.Client(), Config{})

	_, err := a.Assemble(context.Background(), []string{srv.URL + "/ok.png", srv.URL + "/missing.png"})

	var fetchErr *order.ImageFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1, fetchErr.Index)
	assert.Equal(t, srv.URL+"/missing.png", fetchErr.URL)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestAssemble_FetchTooLarge(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/big.png": pngBytes(t, 64, 64)})
	a := NewAssembler(srv.Client(), Config{MaxImageBytes: 16})

	_, err := a.Assemble(context.Background(), []string{srv.URL + "/big.png"})

	var fetchErr *order.ImageFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Error(), "exceeds 16 bytes")
}

func TestAssemble_LowestIndexErrorWins(t *testing.T) {
	srv := imageServer(t, nil)
	a := NewAssembler(srv.Client(), Config{FetchConcurrency: 4})

	_, err := a.Assemble(context.Background(), []string{
		pngURI(t, 1, 1),
		srv.URL + "/a.png",
		"garbage",
		srv.URL + "/b.png",
	})

	var fetchErr *order.ImageFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1, fetchErr.Index)
}

func TestAssemble_Empty(t *testing.T) {
	a := NewAssembler(nil, Config{})
	_, err := a.Assemble(context.Background(), nil)
	require.Error(t, err)
}
