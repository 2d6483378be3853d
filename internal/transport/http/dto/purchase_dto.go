package dto

import "time"

type PurchaseResponse struct {
	ID          string     `json:"id"`
	BookID      string     `json:"bookId"`
	BookTitle   string     `json:"bookTitle"`
	BookSlug    string     `json:"bookSlug"`
	AmountCents int64      `json:"amountCents"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseResponse `json:"purchases"`
}
