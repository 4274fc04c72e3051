// Package document assembles coloring-page images into one print-ready PDF.
package document

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"
	"golang.org/x/sync/errgroup"

	"github.com/colormuse/print-api/internal/domain/order"
)

var _ order.DocumentAssembler = (*Assembler)(nil)

// Config controls page geometry and image fetching.
type Config struct {
	// Page defaults to Letter.
	Page Page
	// MaxImageBytes caps each downloaded image. Defaults to 20 MiB.
	MaxImageBytes int64
	// FetchConcurrency bounds parallel URL downloads. Defaults to 4.
	FetchConcurrency int
	// MaxImagePixels caps the declared width×height of each image, checked
	// before any pixel data is decoded or embedded. Defaults to DefaultMaxImagePixels.
	MaxImagePixels int64
}

// DefaultMaxImagePixels is 50 megapixels, above a 600 dpi Letter scan.
const DefaultMaxImagePixels = 50_000_000

// Assembler renders one page per image, in input order.
type Assembler struct {
	client        *http.Client
	page          Page
	maxImageBytes int64
	maxPixels     int64
	concurrency   int
}

// NewAssembler creates an Assembler that downloads URL sources with client.
func NewAssembler(client *http.Client, cfg Config) *Assembler {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Page == (Page{}) {
		cfg.Page = Letter
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 20 << 20
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = DefaultMaxImagePixels
	}
	return &Assembler{
		client:        client,
		page:          cfg.Page,
		maxImageBytes: cfg.MaxImageBytes,
		maxPixels:     cfg.MaxImagePixels,
		concurrency:   cfg.FetchConcurrency,
	}
}

// Assemble resolves every source and renders the document. When several
// sources fail, the error of the lowest index is returned.
func (a *Assembler) Assemble(ctx context.Context, sources []string) (*order.Document, error) {
	doc, _, err := a.layout(ctx, sources)
	return doc, err
}

func (a *Assembler) layout(ctx context.Context, sources []string) (*order.Document, []Rect, error) {
	if len(sources) == 0 {
		return nil, nil, errors.New("no images to assemble")
	}

	images := make([]*decoded, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			images[i], errs[i] = a.load(ctx, i, src)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	return a.render(images)
}

// render lays out decoded images and returns the document together with the
// rectangle used on each page.
func (a *Assembler) render(images []*decoded) (*order.Document, []Rect, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: a.page.Width, Ht: a.page.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("ColorMuse Books", true)
	pdf.SetTitle("Custom Coloring Book", true)

	rects := make([]Rect, len(images))
	for i, img := range images {
		name := "page-" + strconv.Itoa(i)
		opts := fpdf.ImageOptions{ImageType: img.pdfType}

		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
		if pdf.Err() {
			return nil, nil, &order.InvalidImageSourceError{Index: i, Reason: pdf.Error().Error()}
		}

		r := a.page.Fit(img.width, img.height)
		pdf.AddPage()
		pdf.ImageOptions(name, r.X, r.Y, r.W, r.H, false, opts, 0, "")
		if pdf.Err() {
			return nil, nil, errors.Wrapf(pdf.Error(), "draw page %d", i+1)
		}
		rects[i] = r
	}
	pages := pdf.PageCount()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, nil, errors.Wrap(err, "write pdf")
	}

	return &order.Document{Data: buf.Bytes(), Pages: pages}, rects, nil
}
