package lulu

import "github.com/colormuse/print-api/internal/domain/order"

// FileTypeInterior marks the upload target for the interior document.
const FileTypeInterior = "book"

type shippingAddress struct {
	Name        string `json:"name"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	PostCode    string `json:"postcode"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email"`
}

type fileRef struct {
	URL string `json:"url"`
}

type book struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	CoverType string `json:"cover_type"`
	PageCount int    `json:"page_count"`
}

type lineItem struct {
	Quantity int     `json:"quantity"`
	Title    string  `json:"title"`
	Cover    fileRef `json:"cover"`
	Book     book    `json:"book"`
}

type createJobRequest struct {
	ContactEmail    string          `json:"contact_email"`
	ShippingAddress shippingAddress `json:"shipping_address"`
	ShippingLevel   string          `json:"shipping_level,omitempty"`
	LineItems       []lineItem      `json:"line_items"`
}

type jobFile struct {
	Type      string `json:"type"`
	UploadURL string `json:"upload_url"`
}

type createJobResponse struct {
	Files []jobFile `json:"files"`
}

func addressOf(c order.Customer) shippingAddress {
	return shippingAddress{
		Name:        c.Name,
		Street1:     c.Street1,
		Street2:     c.Street2,
		City:        c.City,
		StateCode:   c.StateCode,
		PostCode:    c.PostCode,
		CountryCode: c.CountryCode,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
	}
}

// interiorUploadURL returns the upload target of the interior document.
func (r createJobResponse) interiorUploadURL() (string, bool) {
	for _, f := range r.Files {
		if f.Type == FileTypeInterior && f.UploadURL != "" {
			return f.UploadURL, true
		}
	}
	return "", false
}
