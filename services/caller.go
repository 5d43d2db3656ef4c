package services

import (
	"math"

	"github.com/cppla/vibemusic/models"
)

// Caller is the authenticated identity an operation runs on behalf of. The zero value is an
// anonymous visitor.
type Caller struct {
	UserID   uint
	Username string
	Role     string
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

func (c Caller) Anonymous() bool {
	return c.UserID == 0
}

// Owns reports whether the caller is ownerID or an admin.
func (c Caller) Owns(ownerID uint) bool {
	return c.IsAdmin() || (!c.Anonymous() && c.UserID == ownerID)
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// TotalPages returns the number of pages for the listing.
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.Total) / float64(p.PageSize)))
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PageRequest carries pagination input.
type PageRequest struct {
	Page     int
	PageSize int
}

func (r PageRequest) normalize() PageRequest {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 || r.PageSize > maxPageSize {
		r.PageSize = defaultPageSize
	}
	return r
}

func (r PageRequest) offset() int {
	return (r.Page - 1) * r.PageSize
}

func newPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize}
}
