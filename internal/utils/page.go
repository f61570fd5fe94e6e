// Package utils holds the paging arithmetic shared by the HTTP handlers and
// the message store.
package utils

import "strconv"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page of an inbox or archive listing.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads the page and page_size query values. Missing or
// malformed values mean page 1 of DefaultPageSize. Number is raised to 1
// and Size is clamped to [1, MaxPageSize].
func ParsePage(number, size string) Page {
	p := Page{Number: atoi(number, 1), Size: atoi(size, DefaultPageSize)}
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size < 1:
		p.Size = 1
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Bounds returns the OFFSET and LIMIT for p. A non-positive Size means
// DefaultPageSize.
func (p Page) Bounds() (offset, limit int) {
	n, size := p.Number, p.Size
	if n < 1 {
		n = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return (n - 1) * size, size
}

// TotalPages is the number of pages of p.Size needed for total rows.
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a page follows p.
func (p Page) HasNext(total int64) bool {
	return p.Number < p.TotalPages(total)
}

func atoi(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
