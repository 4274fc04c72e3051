package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/colormuse/print-api/internal/domain/order"
)

// decodeRequest parses {images, customer, paypal_order_id}. Unknown fields
// are ignored; a field of the wrong JSON type fails the whole payload.
func decodeRequest(body []byte) (order.Request, error) {
	var req order.Request
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, errors.New("payload is not an object")
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "images":
			images, err := decodeStrings(d)
			if err != nil {
				return errors.Wrap(err, "images")
			}
			req.Images = images
		case "customer":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c, err := decodeCustomer(d)
			if err != nil {
				return errors.Wrap(err, "customer")
			}
			req.Customer = c
		case "paypal_order_id":
			id, err := decodeString(d)
			if err != nil {
				return errors.Wrap(err, "paypal_order_id")
			}
			req.PaymentOrderID = id
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return req, err
	}
	if d.Next() != jx.Invalid {
		return req, errors.New("trailing data after payload")
	}
	return req, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// decodeString accepts a string or null.
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// customerFields maps accepted keys, including the storefront's short
// aliases, to their destination.
var customerFields = map[string]func(*order.Customer) *string{
	"name":         func(c *order.Customer) *string { return &c.Name },
	"email":        func(c *order.Customer) *string { return &c.Email },
	"street1":      func(c *order.Customer) *string { return &c.Street1 },
	"address1":     func(c *order.Customer) *string { return &c.Street1 },
	"street2":      func(c *order.Customer) *string { return &c.Street2 },
	"address2":     func(c *order.Customer) *string { return &c.Street2 },
	"city":         func(c *order.Customer) *string { return &c.City },
	"state_code":   func(c *order.Customer) *string { return &c.StateCode },
	"state":        func(c *order.Customer) *string { return &c.StateCode },
	"postcode":     func(c *order.Customer) *string { return &c.PostCode },
	"zip":          func(c *order.Customer) *string { return &c.PostCode },
	"country_code": func(c *order.Customer) *string { return &c.CountryCode },
	"country":      func(c *order.Customer) *string { return &c.CountryCode },
	"phone_number": func(c *order.Customer) *string { return &c.PhoneNumber },
	"phone":        func(c *order.Customer) *string { return &c.PhoneNumber },
}

func decodeCustomer(d *jx.Decoder) (*order.Customer, error) {
	c := new(order.Customer)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		field, ok := customerFields[key]
		if !ok {
			return d.Skip()
		}
		v, err := decodeString(d)
		if err != nil {
			return errors.Wrap(err, key)
		}
		if v != "" {
			*field(c) = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
