package models

import "math"

const (
	BytesPerGB      = 1 << 30
	TokensPerGB     = 10.0
	TokensPerSecond = 0.5
	TokensPerPeer   = 1.0
)

// MetricsSample is a single seeding observation reported by a client for one reporting window.
type MetricsSample struct {
	ContentID              string  `json:"contentId"`
	UploadSpeedBytesPerSec float64 `json:"uploadSpeed"`
	BytesUploaded          uint64  `json:"bytesUploaded"`
	PeersConnected         uint32  `json:"peersConnected"`
	SeedingTimeSeconds     uint64  `json:"seedingTime"`
	Timestamp              int64   `json:"timestamp"`
}

// ComputeReward is the authoritative token award for a sample.
func ComputeReward(s MetricsSample) float64 {
	fromUpload := float64(s.BytesUploaded) / BytesPerGB * TokensPerGB
	fromTime := float64(s.SeedingTimeSeconds) * TokensPerSecond
	fromPeers := float64(s.PeersConnected) * TokensPerPeer
	return Round2(fromUpload + fromTime + fromPeers)
}

// EstimateClientReward is the advisory per-report estimate shown by clients before the
// ledger confirms a total. It is never credited.
func EstimateClientReward(uploadSpeedBytesPerSec float64, numPeers uint32) float64 {
	if uploadSpeedBytesPerSec <= 0 {
		return 0
	}
	mbps := uploadSpeedBytesPerSec * 8 / 1_000_000
	return math.Max(1, math.Floor(mbps*float64(numPeers)))
}

// Round2 rounds half-up to two decimals. Inputs are non-negative.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
