package upstream

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/session"
)

// Decoders are strict about the types of known fields and ignore unknown
// ones.

func decodeInt64(d *jx.Decoder, field string) (int64, error) {
	if d.Next() != jx.Number {
		return 0, errors.Errorf("%s: expected number", field)
	}
	v, err := d.Int64()
	if err != nil {
		return 0, errors.Wrap(err, field)
	}
	return v, nil
}

func decodeString(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return "", errors.Wrap(err, field)
		}
		return s, nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("%s: expected string", field)
	}
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, field)
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, field)
		}
		raw = s
	default:
		return decimal.Zero, errors.Errorf("%s: expected number", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, field)
	}
	return v, nil
}

func decodeBook(d *jx.Decoder) (book.Book, error) {
	var (
		b        book.Book
		hasPrice bool
		err      error
	)
	if d.Next() != jx.Object {
		return b, errors.New("book: expected object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			b.ID, err = decodeInt64(d, "id")
		case "title":
			b.Title, err = decodeString(d, "title")
		case "author":
			b.Author, err = decodeString(d, "author")
		case "description":
			b.Description, err = decodeString(d, "description")
		case "genre_id":
			b.GenreID, err = decodeInt64(d, "genre_id")
		case "genre":
			b.Genre, err = decodeString(d, "genre")
		case "publisher":
			b.Publisher, err = decodeString(d, "publisher")
		case "year":
			var y int64
			y, err = decodeInt64(d, "year")
			b.Year = int(y)
		case "price":
			b.Price, err = decodeDecimal(d, "price")
			hasPrice = true
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return b, err
	}
	if b.ID <= 0 {
		return b, errors.New("book: missing id")
	}
	if !hasPrice {
		return b, errors.Errorf("book %d: missing price", b.ID)
	}
	return b, nil
}

func decodeBooks(data []byte) ([]book.Book, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, errors.New("expected array")
	}
	books := []book.Book{}
	if err := d.Arr(func(d *jx.Decoder) error {
		b, err := decodeBook(d)
		if err != nil {
			return err
		}
		books = append(books, b)
		return nil
	}); err != nil {
		return nil, err
	}
	return books, nil
}

func decodeProfile(data []byte) (*session.Profile, error) {
	var (
		p   session.Profile
		err error
	)
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errors.New("profile: expected object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			p.ID, err = decodeInt64(d, "id")
		case "username":
			p.Username, err = decodeString(d, "username")
		case "email":
			p.Email, err = decodeString(d, "email")
		case "phone":
			p.Phone, err = decodeString(d, "phone")
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, errors.New("profile: missing id")
	}
	return &p, nil
}

// decodeCartLines reads the cart list payload. book_info may be null.
func decodeCartLines(data []byte) ([]cart.Line, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, errors.New("expected array")
	}
	lines := []cart.Line{}
	if err := d.Arr(func(d *jx.Decoder) error {
		var (
			l             cart.Line
			hasBook, hasQ bool
			err           error
		)
		if d.Next() != jx.Object {
			return errors.New("cart line: expected object")
		}
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "book_id":
				l.BookID, err = decodeInt64(d, "book_id")
				hasBook = true
			case "quantity":
				var q int64
				q, err = decodeInt64(d, "quantity")
				l.Quantity = int(q)
				hasQ = true
			case "book_info":
				if d.Next() == jx.Null {
					return d.Null()
				}
				var b book.Book
				b, err = decodeBook(d)
				l.Book = &b
			default:
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if !hasBook || !hasQ {
			return errors.New("cart line: missing book_id or quantity")
		}
		lines = append(lines, l)
		return nil
	}); err != nil {
		return nil, err
	}
	return lines, nil
}
