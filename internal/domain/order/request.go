package order

import (
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Request is a parsed checkout payload.
type Request struct {
	PaymentMethodID int64
	ShippingAddress string
}

// ParseRequest decodes a checkout body. payment_method may be a JSON number
// or a numeric string; shipping_address must be non-blank. Unknown fields are
// ignored, anything after the object is rejected.
func ParseRequest(body []byte) (Request, error) {
	var (
		req        Request
		hasPayment bool
	)
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, errors.New("body must be a JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "payment_method":
			id, err := decodeID(d)
			if err != nil {
				return errors.Wrap(err, "payment_method")
			}
			req.PaymentMethodID = id
			hasPayment = true
			return nil
		case "shipping_address":
			if d.Next() != jx.String {
				return errors.New("shipping_address must be a string")
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "shipping_address")
			}
			req.ShippingAddress = strings.TrimSpace(s)
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errors.Wrap(err, "decode body")
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return req, errors.New("unexpected data after JSON object")
	}

	switch {
	case !hasPayment:
		return req, errors.New("payment_method is required")
	case req.PaymentMethodID <= 0:
		return req, errors.New("payment_method must be positive")
	case req.ShippingAddress == "":
		return req, errors.New("shipping_address is required")
	}
	return req, nil
}

func decodeID(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int64()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errors.Errorf("not an integer: %q", s)
		}
		return id, nil
	default:
		return 0, errors.New("must be an integer")
	}
}
