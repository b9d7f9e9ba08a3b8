package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Credential is the ticketId + integrity tag pair that proves a ticket was
// issued by this service. The tag is derived, never stored.
type Credential struct {
	TicketID string `json:"ticket_id"`
	Tag      string `json:"tag"`
}

// Payload serializes the credential to the compact wire form that gets
// rendered into the scannable code.
func (c Credential) Payload() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to serialize credential: %w", err)
	}
	return string(data), nil
}

// ParsePayload decodes a scanned credential payload
func ParsePayload(payload string) (Credential, error) {
	var c Credential
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Credential{}, fmt.Errorf("malformed credential payload: %w", err)
	}
	return c, nil
}

// Signer derives and verifies ticket integrity tags with a server-held
// secret. The secret never leaves the service; clients only ever see tags.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Issue binds a ticket identifier to its integrity tag
func (s *Signer) Issue(ticketID string) Credential {
	return Credential{
		TicketID: ticketID,
		Tag:      s.tag(ticketID),
	}
}

// Verify recomputes the tag and compares in constant time
func (s *Signer) Verify(ticketID, tag string) bool {
	expected, err := hex.DecodeString(s.tag(ticketID))
	if err != nil {
		return false
	}
	supplied, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, supplied)
}

func (s *Signer) tag(ticketID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ticketID))
	return hex.EncodeToString(mac.Sum(nil))
}
