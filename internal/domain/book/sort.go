package book

import (
	"fmt"
	"strings"
)

// SortKey is the closed set of orderings the catalog supports.
type SortKey int

// Supported sort keys. SortDefault orders by id.
const (
	SortDefault SortKey = iota
	SortByTitle
	SortByAuthor
	SortByPrice
)

// InvalidSortKeyError reports a sort parameter outside the supported set.
type InvalidSortKeyError struct {
	Value string
}

func (e *InvalidSortKeyError) Error() string {
	return fmt.Sprintf("invalid sort field %q: allowed title, author, price", e.Value)
}

// ParseSortKey resolves the sort_by query parameter. An empty value selects
// SortDefault.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SortDefault, nil
	case "title":
		return SortByTitle, nil
	case "author":
		return SortByAuthor, nil
	case "price":
		return SortByPrice, nil
	default:
		return SortDefault, &InvalidSortKeyError{Value: s}
	}
}

// String returns the query parameter form of the key.
func (k SortKey) String() string {
	switch k {
	case SortByTitle:
		return "title"
	case SortByAuthor:
		return "author"
	case SortByPrice:
		return "price"
	default:
		return ""
	}
}
