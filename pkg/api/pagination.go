package api

import "math"

const (
	DefaultPage     int64 = 1
	DefaultPageSize int64 = 20
	MaxPageSize     int64 = 100

	// MaxPage keeps the page offset inside int64
	MaxPage = math.MaxInt64 / MaxPageSize
)

// PageRequest represents pagination request parameters
type PageRequest struct {
	Page     int64 `form:"page" json:"page"`
	PageSize int64 `form:"pageSize" json:"pageSize"`
}

// Normalize clamps page and page size into the accepted range
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// GetOffset calculates the offset of the first element of the page
func (p PageRequest) GetOffset() int64 {
	return (p.Page - 1) * p.PageSize
}

// TotalPages returns how many pages totalItems spans, at least one
func (p PageRequest) TotalPages(totalItems int64) int64 {
	totalPages := (totalItems + p.PageSize - 1) / p.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	return totalPages
}

// Slice returns the page of an already ordered, fully materialized list
func Slice[T any](items []T, p PageRequest) []T {
	total := int64(len(items))
	if p.Page < 1 || p.PageSize < 1 || p.Page-1 > total/p.PageSize {
		return []T{}
	}
	offset := p.GetOffset()
	if offset >= total {
		return []T{}
	}
	end := offset + p.PageSize
	if end > total {
		end = total
	}
	return items[offset:end]
}

// PageResponse represents a paginated response
type PageResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int64 `json:"page"`
	PageSize   int64 `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewPageResponse creates a new paginated response
func NewPageResponse[T any](data []T, page, pageSize, totalItems int64) PageResponse[T] {
	totalPages := PageRequest{Page: page, PageSize: pageSize}.TotalPages(totalItems)
	if data == nil {
		data = []T{}
	}

	return PageResponse[T]{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// FilterRequest represents list filter parameters
type FilterRequest struct {
	Search string `form:"search" json:"search,omitempty" binding:"max=100"`
	Status string `form:"status" json:"status,omitempty"`
}
