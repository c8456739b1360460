package models

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeReport(t *testing.T, body string) *SeedingReport {
	t.Helper()
	var sr SeedingReport
	require.NoError(t, json.Unmarshal([]byte(body), &sr))
	return &sr
}

func TestToCreditRequest_NumbersAndStrings(t *testing.T) {
	sr := decodeReport(t, `{"contentId":123,"bytesUploaded":"2048","uploadSpeed":1024.5,"peersConnected":"4","seedingTime":2,"isActive":true,"telegramId":987654321,"reportId":"r-1"}`)

	req, err := sr.ToCreditRequest("u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "123", req.ContentID)
	require.NotNil(t, req.BytesUploaded)
	assert.Equal(t, uint64(2048), *req.BytesUploaded)
	assert.Equal(t, 1024.5, req.UploadSpeed)
	assert.Equal(t, uint32(4), req.PeersConnected)
	assert.Equal(t, uint64(2), req.SeedingTimeSeconds)
	require.NotNil(t, req.IsActive)
	assert.True(t, *req.IsActive)
	require.NotNil(t, req.Identity)
	assert.Equal(t, "987654321", req.Identity.ID)
	assert.Equal(t, "r-1", req.ReportID)
}

func TestToCreditRequest_NegativeClampedToZero(t *testing.T) {
	sr := decodeReport(t, `{"contentId":"c1","bytesUploaded":-5,"peersConnected":-1,"seedingTime":-3}`)

	req, err := sr.ToCreditRequest("u1", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), *req.BytesUploaded)
	assert.Equal(t, uint32(0), req.PeersConnected)
	assert.Equal(t, uint64(0), req.SeedingTimeSeconds)
}

func TestToCreditRequest_GarbageNumber(t *testing.T) {
	sr := decodeReport(t, `{"contentId":"c1","peersConnected":"many"}`)
	_, err := sr.ToCreditRequest("u1", nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestToCreditRequest_SpeedOnly(t *testing.T) {
	sr := decodeReport(t, `{"contentId":"c1","uploadSpeed":1000,"seedingTime":2}`)
	req, err := sr.ToCreditRequest("u1", nil)
	require.NoError(t, err)
	assert.Nil(t, req.BytesUploaded)
	assert.Equal(t, uint64(2000), req.Bytes())
}

func TestToCreditRequest_AuthIdentityWins(t *testing.T) {
	sr := decodeReport(t, `{"contentId":"c1","telegramId":"1","telegramHandle":"@body","telegramPhotoUrl":"https://p"}`)
	req, err := sr.ToCreditRequest("42", &TelegramIdentity{ID: "42", Handle: "@auth"})
	require.NoError(t, err)
	assert.Equal(t, "42", req.Identity.ID)
	assert.Equal(t, "@auth", req.Identity.Handle)
	assert.Equal(t, "https://p", req.Identity.PhotoURL)
}

func TestToCreditRequest_NoIdentity(t *testing.T) {
	sr := decodeReport(t, `{"contentId":"c1"}`)
	req, err := sr.ToCreditRequest("u1", nil)
	require.NoError(t, err)
	assert.Nil(t, req.Identity)
	assert.Nil(t, req.IsActive)
}

func TestCreditRequest_Validate(t *testing.T) {
	assert.NoError(t, (&CreditRequest{UserID: "u1", ContentID: "c1"}).Validate())
	assert.True(t, errors.Is((&CreditRequest{ContentID: "c1"}).Validate(), ErrInvalidRequest))
	assert.True(t, errors.Is((&CreditRequest{UserID: "u1"}).Validate(), ErrInvalidRequest))
}

func TestCreditRequest_BytesPreferExplicitCount(t *testing.T) {
	b := uint64(10)
	req := &CreditRequest{BytesUploaded: &b, UploadSpeed: 1000, SeedingTimeSeconds: 2}
	assert.Equal(t, uint64(10), req.Bytes())
}
