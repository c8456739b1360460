package models

import "time"

const StorageVersion = 1

// Storage is the snapshot envelope written by the file driver.
type Storage struct {
	Version int                    `json:"version"`
	Ledgers map[string]*UserLedger `json:"ledgers"`
}

// PointsRecord is one user in the lightweight layout: a single JSON object keyed
// by user id holding only the balance and its audit trail.
type PointsRecord struct {
	Points  float64        `json:"points"`
	History []HistoryEntry `json:"history"`
}

// LedgerFromPoints migrates a lightweight record. Credits missing from the
// bounded history are accounted as archived tokens.
func LedgerFromPoints(userID string, rec *PointsRecord) *UserLedger {
	l := NewUserLedger(userID, latestTimestamp(rec.History))
	l.Tokens = rec.Points
	l.SeedingStats.RewardsEarned = rec.Points
	if rec.History != nil {
		l.History = rec.History
	}
	if archived := rec.Points - l.HistorySum(); archived > 0 {
		l.ArchivedTokens = archived
	}
	return l
}

func latestTimestamp(history []HistoryEntry) (latest time.Time) {
	for _, h := range history {
		if h.Timestamp.After(latest) {
			latest = h.Timestamp
		}
	}
	return latest
}
