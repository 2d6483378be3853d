package dto

import "time"

type BookResponse struct {
	ID             string    `json:"id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	SalePriceCents int64     `json:"salePriceCents"`
	HasPDF         bool      `json:"hasPdf"`
	CreatedAt      time.Time `json:"createdAt"`
}

type BookListResponse struct {
	Books []BookResponse `json:"books"`
}

type BookCreateRequest struct {
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	SalePriceCents int64  `json:"salePriceCents"`
}

type BookUpdateRequest struct {
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	SalePriceCents int64  `json:"salePriceCents"`
}
