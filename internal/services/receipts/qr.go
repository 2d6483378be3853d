package receipts

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 512
	maxQRSize     = 1024
)

// PixQRCode renders the transfer payload as a PNG for the checkout page.
func (s *Service) PixQRCode(size int) ([]byte, error) {
	payload := s.PixInstructions().Payload
	if payload == "" {
		return nil, ErrValidation
	}

	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode pix qr: %w", err)
	}

	return png, nil
}
