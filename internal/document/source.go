package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/colormuse/print-api/internal/domain/order"
)

const dataImagePrefix = "data:image/"

// decoded is a source image ready to embed.
type decoded struct {
	data    []byte
	pdfType string
	width   int
	height  int
}

// pdfTypes maps image.DecodeConfig format names to the types the PDF writer
// embeds natively. Anything else is transcoded to PNG.
var pdfTypes = map[string]string{
	"png":  "PNG",
	"jpeg": "JPG",
	"gif":  "GIF",
}

// load resolves the source at index i into image bytes and decodes its size.
func (a *Assembler) load(ctx context.Context, i int, src string) (*decoded, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(src, dataImagePrefix):
		data, err = decodeDataURI(src)
		if err != nil {
			return nil, &order.InvalidImageSourceError{Index: i, Reason: err.Error()}
		}
	case isHTTPURL(src):
		data, err = a.fetch(ctx, i, src)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &order.InvalidImageSourceError{Index: i, Reason: "expected a data:image URI or an http(s) URL"}
	}

	img, err := decodeImage(data, a.maxPixels)
	if err != nil {
		return nil, &order.InvalidImageSourceError{Index: i, Reason: err.Error()}
	}
	return img, nil
}

func decodeDataURI(src string) ([]byte, error) {
	header, payload, ok := strings.Cut(src, ",")
	if !ok {
		return nil, errors.New("data URI has no payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("data URI is not base64 encoded")
	}
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, errors.Wrap(err, "decode base64")
		}
	}
	return data, nil
}

func isHTTPURL(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (a *Assembler) fetch(ctx context.Context, i int, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, http.NoBody)
	if err != nil {
		return nil, &order.ImageFetchError{Index: i, URL: src, Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &order.ImageFetchError{Index: i, URL: src, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &order.ImageFetchError{Index: i, URL: src, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxImageBytes+1))
	if err != nil {
		return nil, &order.ImageFetchError{Index: i, URL: src, Err: err}
	}
	if int64(len(data)) > a.maxImageBytes {
		return nil, &order.ImageFetchError{
			Index: i,
			URL:   src,
			Err:   errors.Errorf("image exceeds %d bytes", a.maxImageBytes),
		}
	}
	return data, nil
}

// decodeImage reads the header first; headers may declare sizes far beyond
// the payload, so maxPixels is enforced before pixels are decoded or embedded.
func decodeImage(data []byte, maxPixels int64) (*decoded, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "unsupported or corrupt image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("zero-size image (%dx%d)", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, errors.Errorf("image exceeds %d pixels (%dx%d)", maxPixels, cfg.Width, cfg.Height)
	}

	if t, ok := pdfTypes[format]; ok {
		return &decoded{data: data, pdfType: t, width: cfg.Width, height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", format)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrapf(err, "transcode %s", format)
	}
	return &decoded{data: buf.Bytes(), pdfType: "PNG", width: cfg.Width, height: cfg.Height}, nil
}
