package credential

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRPNG renders the credential payload into a matrix barcode for
// display, download or print. The barcode is a presentation detail only;
// the tag inside the payload is what gets verified.
func (c Credential) QRPNG(size int) ([]byte, error) {
	payload, err := c.Payload()
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render credential QR: %w", err)
	}
	return png, nil
}
