package dto

import "time"

type DownloadURLRequest struct {
	BookID string `json:"bookId"`
}

type DownloadURLResponse struct {
	BookID    string    `json:"bookId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
