package models

import (
	"sort"
	"time"
)

const DefaultLeaderboardSize = 10

type LeaderboardEntry struct {
	Position         int     `json:"position"`
	UserID           string  `json:"userId"`
	DisplayName      string  `json:"displayName"`
	Tokens           float64 `json:"tokens"`
	TotalUploaded    uint64  `json:"totalUploaded"`
	TotalSeedingTime uint64  `json:"totalSeedingTime"`
	Rank             Rank    `json:"rank"`
}

// BuildLeaderboard ranks ledgers by tokens descending, breaking ties by user id.
// The input slice is reordered.
func BuildLeaderboard(ledgers []*UserLedger, size int) []LeaderboardEntry {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	sort.Slice(ledgers, func(i, j int) bool {
		if ledgers[i].Tokens != ledgers[j].Tokens {
			return ledgers[i].Tokens > ledgers[j].Tokens
		}
		return ledgers[i].UserID < ledgers[j].UserID
	})
	if len(ledgers) > size {
		ledgers = ledgers[:size]
	}

	out := make([]LeaderboardEntry, 0, len(ledgers))
	for i, l := range ledgers {
		out = append(out, LeaderboardEntry{
			Position:         i + 1,
			UserID:           l.UserID,
			DisplayName:      l.DisplayName(),
			Tokens:           l.Tokens,
			TotalUploaded:    l.SeedingStats.TotalBytesUploaded,
			TotalSeedingTime: l.SeedingStats.TotalSeedingTimeSeconds,
			Rank:             ClassifyRank(l.SeedingStats),
		})
	}
	return out
}

type CreditResult struct {
	Success          bool              `json:"success"`
	TokensEarned     float64           `json:"tokensEarned"`
	TotalTokens      float64           `json:"totalTokens"`
	SeedingStats     SeedingStats      `json:"seedingStats"`
	SeedingRank      Rank              `json:"seedingRank"`
	TelegramIdentity *TelegramIdentity `json:"telegramData"`
	Duplicate        bool              `json:"duplicate,omitempty"`
}

type UserMetrics struct {
	UserID           string            `json:"userId"`
	Username         string            `json:"username"`
	Tokens           float64           `json:"tokens"`
	SeedingStats     SeedingStats      `json:"seedingStats"`
	SeedingRank      Rank              `json:"seedingRank"`
	History          []HistoryEntry    `json:"history"`
	SeedingHistory   []SeedingSession  `json:"seedingHistory"`
	TelegramIdentity *TelegramIdentity `json:"telegramData,omitempty"`
	LastActiveAt     time.Time         `json:"lastActiveAt"`
}

func NewUserMetrics(l *UserLedger) *UserMetrics {
	return &UserMetrics{
		UserID:           l.UserID,
		Username:         l.Username,
		Tokens:           l.Tokens,
		SeedingStats:     l.SeedingStats,
		SeedingRank:      ClassifyRank(l.SeedingStats),
		History:          l.History,
		SeedingHistory:   l.SeedingHistory,
		TelegramIdentity: l.TelegramIdentity,
		LastActiveAt:     l.LastActiveAt,
	}
}
