package handler

import (
	"time"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
)

type bookJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	GenreID     int64  `json:"genre_id,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Price       string `json:"price"`
}

func toBook(b book.Book) bookJSON {
	return bookJSON{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		GenreID:     b.GenreID,
		Genre:       b.Genre,
		Year:        b.Year,
		Publisher:   b.Publisher,
		Price:       b.Price.StringFixed(2),
	}
}

func toBooks(books []book.Book) []bookJSON {
	out := make([]bookJSON, len(books))
	for i, b := range books {
		out[i] = toBook(b)
	}
	return out
}

// cartLineJSON is a cart line. Lines are keyed by book in the cart hash, so
// the book id doubles as the line id.
type cartLineJSON struct {
	ID       int64     `json:"id"`
	BookID   int64     `json:"book_id"`
	Quantity int       `json:"quantity"`
	BookInfo *bookJSON `json:"book_info"`
}

func toCartLines(lines []cart.Line) []cartLineJSON {
	out := make([]cartLineJSON, len(lines))
	for i, l := range lines {
		out[i] = cartLineJSON{ID: l.BookID, BookID: l.BookID, Quantity: l.Quantity}
		if l.Book != nil {
			b := toBook(*l.Book)
			out[i].BookInfo = &b
		}
	}
	return out
}

type orderLineJSON struct {
	BookID   int64     `json:"book_id"`
	Quantity int       `json:"quantity"`
	BookInfo *bookJSON `json:"book_info,omitempty"`
}

type orderJSON struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	PaymentMethodID int64           `json:"payment_method_id"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	Status          string          `json:"status"`
	CheckoutDate    time.Time       `json:"checkout_date"`
	DeliveryDate    time.Time       `json:"delivery_date"`
	Lines           []orderLineJSON `json:"lines"`
}

func toOrder(o *order.Order, books map[int64]book.Book) orderJSON {
	out := orderJSON{
		ID:              o.ID,
		UserID:          o.UserID,
		PaymentMethodID: o.PaymentMethodID,
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status.String(),
		CheckoutDate:    o.CheckoutDate,
		DeliveryDate:    o.DeliveryDate,
		Lines:           make([]orderLineJSON, len(o.Lines)),
	}
	for i, l := range o.Lines {
		out.Lines[i] = orderLineJSON{BookID: l.BookID, Quantity: l.Quantity}
		if b, ok := books[l.BookID]; ok {
			bj := toBook(b)
			out.Lines[i].BookInfo = &bj
		}
	}
	return out
}
