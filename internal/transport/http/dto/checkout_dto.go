package dto

type CreatePaymentRequest struct {
	BookID string `json:"bookId"`
}

type CreatePaymentResponse struct {
	SessionID        string `json:"sessionId,omitempty"`
	URL              string `json:"url,omitempty"`
	AmountCents      int64  `json:"amountCents,omitempty"`
	AlreadyPurchased bool   `json:"alreadyPurchased"`
}

type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
	BookID    string `json:"bookId"`
}

type VerifyPaymentResponse struct {
	Success          bool   `json:"success"`
	PurchaseID       string `json:"purchaseId,omitempty"`
	AlreadyPurchased bool   `json:"alreadyPurchased"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Applied  bool   `json:"applied"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
