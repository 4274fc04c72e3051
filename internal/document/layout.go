package document

// Page is a fixed page geometry in PDF points (1/72 inch).
type Page struct {
	Width  float64
	Height float64
	Margin float64
}

// Letter is a US Letter page with one inch margins.
var Letter = Page{Width: 612, Height: 792, Margin: 72}

// Rect is a placed image rectangle. X and Y locate the top-left corner
// measured from the top-left of the page.
type Rect struct {
	X, Y, W, H float64
}

// Fit returns the largest rectangle with the aspect ratio of a w×h pixel
// image that fits inside the page margins, centred on the page. The image
// is never stretched or cropped.
func (p Page) Fit(w, h int) Rect {
	maxW := p.Width - 2*p.Margin
	maxH := p.Height - 2*p.Margin
	aspect := float64(h) / float64(w)

	drawW := maxW
	drawH := drawW * aspect
	if drawH > maxH {
		drawH = maxH
		drawW = drawH / aspect
	}

	return Rect{
		X: (p.Width - drawW) / 2,
		Y: (p.Height - drawH) / 2,
		W: drawW,
		H: drawH,
	}
}
