package dto

import "time"

type ReceiptSubmitResponse struct {
	PurchaseID string `json:"purchaseId"`
	Status     string `json:"status"`
	Resubmit   bool   `json:"resubmit"`
}

type PixResponse struct {
	Key      string `json:"key"`
	Merchant string `json:"merchant"`
	Payload  string `json:"payload"`
}

type ApproveReceiptRequest struct {
	ReceiptObjectKey string `json:"receipt_object_key"`
}

type PendingReceiptResponse struct {
	PurchaseID  string    `json:"purchaseId"`
	UserID      string    `json:"userId"`
	BookID      string    `json:"bookId"`
	AmountCents int64     `json:"amountCents"`
	ReceiptURL  string    `json:"receiptUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PendingReceiptListResponse struct {
	Receipts []PendingReceiptResponse `json:"receipts"`
}

type ReviewResponse struct {
	PurchaseID string `json:"purchaseId"`
	Status     string `json:"status"`
	Changed    bool   `json:"changed"`
}
