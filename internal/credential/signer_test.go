package credential

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")

	cred := signer.Issue("ticket-123")
	assert.Equal(t, "ticket-123", cred.TicketID)
	assert.NotEmpty(t, cred.Tag)

	assert.True(t, signer.Verify(cred.TicketID, cred.Tag))
}

func TestSigner_RejectsForgedTag(t *testing.T) {
	signer := NewSigner("test-secret")

	cred := signer.Issue("ticket-123")

	assert.False(t, signer.Verify("ticket-123", "deadbeef"))
	assert.False(t, signer.Verify("ticket-123", ""))
	assert.False(t, signer.Verify("ticket-123", "not-even-hex"))

	// A tag for one ticket must not verify another
	assert.False(t, signer.Verify("ticket-456", cred.Tag))
}

func TestSigner_DifferentSecretsDisagree(t *testing.T) {
	a := NewSigner("secret-a")
	b := NewSigner("secret-b")

	cred := a.Issue("ticket-123")
	assert.False(t, b.Verify(cred.TicketID, cred.Tag))
}

func TestSigner_Deterministic(t *testing.T) {
	signer := NewSigner("test-secret")

	first := signer.Issue("ticket-123")
	second := signer.Issue("ticket-123")
	assert.Equal(t, first.Tag, second.Tag)
}

func TestCredential_PayloadRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")
	cred := signer.Issue("ticket-123")

	payload, err := cred.Payload()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, cred.TicketID, decoded["ticket_id"])
	assert.Equal(t, cred.Tag, decoded["tag"])

	parsed, err := ParsePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, cred, parsed)
}

func TestParsePayload_Malformed(t *testing.T) {
	_, err := ParsePayload("{not json")
	assert.Error(t, err)
}

func TestCredential_QRPNG(t *testing.T) {
	signer := NewSigner("test-secret")
	cred := signer.Issue("ticket-123")

	png, err := cred.QRPNG(256)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	// PNG magic bytes
	require.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
