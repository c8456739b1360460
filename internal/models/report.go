package models

import (
	"fmt"
	"math"

	"github.com/gookit/validate"
	"github.com/spf13/cast"
)

// SeedingReport is the POST /metrics/seeding body. Clients send numbers as
// numbers or strings, so numeric fields are decoded leniently.
type SeedingReport struct {
	ContentID        any    `json:"contentId"`
	BytesUploaded    any    `json:"bytesUploaded"`
	UploadSpeed      any    `json:"uploadSpeed"`
	PeersConnected   any    `json:"peersConnected"`
	SeedingTime      any    `json:"seedingTime"`
	IsActive         *bool  `json:"isActive,omitempty"`
	Title            string `json:"title,omitempty"`
	TelegramID       any    `json:"telegramId,omitempty"`
	TelegramHandle   string `json:"telegramHandle,omitempty"`
	TelegramUsername string `json:"telegramUsername,omitempty"`
	TelegramPhotoURL string `json:"telegramPhotoUrl,omitempty"`
	ReportID         string `json:"reportId,omitempty"`
}

type CreditRequest struct {
	UserID    string `validate:"required"`
	ContentID string `validate:"required"`
	// BytesUploaded is nil when the client only reported a speed.
	BytesUploaded      *uint64
	UploadSpeed        float64
	SeedingTimeSeconds uint64
	PeersConnected     uint32
	IsActive           *bool
	Title              string
	Identity           *TelegramIdentity
	ReportID           string
}

func (r *CreditRequest) Validate() error {
	v := validate.Struct(r)
	if !v.Validate() {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, v.Errors.One())
	}
	return nil
}

// Bytes is the upload delta of the report, derived from speed when no byte count was sent.
func (r *CreditRequest) Bytes() uint64 {
	if r.BytesUploaded != nil {
		return *r.BytesUploaded
	}
	if r.UploadSpeed <= 0 {
		return 0
	}
	return uint64(r.UploadSpeed * float64(r.SeedingTimeSeconds))
}

func (r *CreditRequest) Sample() MetricsSample {
	return MetricsSample{
		ContentID:              r.ContentID,
		UploadSpeedBytesPerSec: r.UploadSpeed,
		BytesUploaded:          r.Bytes(),
		PeersConnected:         r.PeersConnected,
		SeedingTimeSeconds:     r.SeedingTimeSeconds,
	}
}

// ToCreditRequest converts the wire body for userID. Identity resolved from the
// auth layer takes precedence over identity fields in the body.
func (sr *SeedingReport) ToCreditRequest(userID string, authIdentity *TelegramIdentity) (*CreditRequest, error) {
	req := &CreditRequest{
		UserID:   userID,
		IsActive: sr.IsActive,
		Title:    sr.Title,
		ReportID: sr.ReportID,
	}
	if sr.ContentID != nil {
		id, err := cast.ToStringE(sr.ContentID)
		if err != nil {
			return nil, fmt.Errorf("%w: contentId: %s", ErrInvalidRequest, err)
		}
		req.ContentID = id
	}

	bytes, ok, err := nonNegative(sr.BytesUploaded)
	if err != nil {
		return nil, fmt.Errorf("%w: bytesUploaded: %s", ErrInvalidRequest, err)
	}
	if ok {
		b := uint64(bytes)
		req.BytesUploaded = &b
	}
	if req.UploadSpeed, _, err = nonNegative(sr.UploadSpeed); err != nil {
		return nil, fmt.Errorf("%w: uploadSpeed: %s", ErrInvalidRequest, err)
	}
	secs, _, err := nonNegative(sr.SeedingTime)
	if err != nil {
		return nil, fmt.Errorf("%w: seedingTime: %s", ErrInvalidRequest, err)
	}
	req.SeedingTimeSeconds = uint64(secs)
	peers, _, err := nonNegative(sr.PeersConnected)
	if err != nil {
		return nil, fmt.Errorf("%w: peersConnected: %s", ErrInvalidRequest, err)
	}
	if peers > math.MaxUint32 {
		peers = math.MaxUint32
	}
	req.PeersConnected = uint32(peers)

	identity := TelegramIdentity{
		ID:       cast.ToString(sr.TelegramID),
		Handle:   sr.TelegramHandle,
		Username: sr.TelegramUsername,
		PhotoURL: sr.TelegramPhotoURL,
	}
	if authIdentity != nil {
		merged := *authIdentity
		merged.MergeUnset(identity)
		identity = merged
	}
	if !identity.IsEmpty() {
		req.Identity = &identity
	}
	return req, nil
}

func nonNegative(v any) (float64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return 0, false, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return f, true, nil
}
