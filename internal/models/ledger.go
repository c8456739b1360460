package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 100
	ReasonSeeding       = "seeding"
)

type SeedingStats struct {
	TotalBytesUploaded      uint64  `json:"totalBytesUploaded"`
	TotalSeedingTimeSeconds uint64  `json:"totalSeedingTime"`
	TotalPeersServed        uint64  `json:"totalPeersServed"`
	ActiveSeedingCount      uint32  `json:"activeSeedingCount"`
	RewardsEarned           float64 `json:"rewardsEarned"`
	ContentSeeded           uint32  `json:"contentSeeded"`
}

type HistoryEntry struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	ContentID string    `json:"contentId"`
	Timestamp time.Time `json:"timestamp"`
}

// SeedingSession aggregates every report for one content item.
type SeedingSession struct {
	ContentID       string     `json:"contentId"`
	Title           string     `json:"title"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	BytesUploaded   uint64     `json:"bytesUploaded"`
	DurationSeconds uint64     `json:"duration"`
	PeakPeers       uint32     `json:"peakPeers"`
	Active          bool       `json:"active"`
}

type TelegramIdentity struct {
	ID       string `json:"telegramId,omitempty"`
	Handle   string `json:"telegramHandle,omitempty"`
	Username string `json:"telegramUsername,omitempty"`
	PhotoURL string `json:"telegramPhotoUrl,omitempty"`
}

func (t *TelegramIdentity) IsEmpty() bool {
	return t == nil || (t.ID == "" && t.Handle == "" && t.Username == "" && t.PhotoURL == "")
}

// MergeUnset copies every field of other that is still empty on t.
// Populated fields are never overwritten.
func (t *TelegramIdentity) MergeUnset(other TelegramIdentity) {
	if t.ID == "" {
		t.ID = other.ID
	}
	if t.Handle == "" {
		t.Handle = other.Handle
	}
	if t.Username == "" {
		t.Username = other.Username
	}
	if t.PhotoURL == "" {
		t.PhotoURL = other.PhotoURL
	}
}

type UserLedger struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Tokens   float64 `json:"tokens"`
	// ArchivedTokens is the sum of history entries evicted by the history limit,
	// so Tokens == ArchivedTokens + sum(History).
	ArchivedTokens   float64           `json:"archivedTokens"`
	SeedingStats     SeedingStats      `json:"seedingStats"`
	History          []HistoryEntry    `json:"history"`
	SeedingHistory   []SeedingSession  `json:"seedingHistory"`
	TelegramIdentity *TelegramIdentity `json:"telegramIdentity,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastActiveAt     time.Time         `json:"lastActiveAt"`
}

func NewUserLedger(userID string, now time.Time) *UserLedger {
	return &UserLedger{
		UserID:         userID,
		Username:       userID,
		History:        make([]HistoryEntry, 0),
		SeedingHistory: make([]SeedingSession, 0),
		CreatedAt:      now,
		LastActiveAt:   now,
	}
}

// SetIdentityIfUnset applies first-write-wins semantics per identity field.
func (l *UserLedger) SetIdentityIfUnset(identity *TelegramIdentity) {
	if identity.IsEmpty() {
		return
	}
	if l.TelegramIdentity == nil {
		l.TelegramIdentity = &TelegramIdentity{}
	}
	l.TelegramIdentity.MergeUnset(*identity)
}

func (l *UserLedger) DisplayName() string {
	if id := l.TelegramIdentity; id != nil {
		if id.Username != "" {
			return id.Username
		}
		if id.Handle != "" {
			return id.Handle
		}
	}
	if l.Username != "" {
		return l.Username
	}
	return l.UserID
}

func (l *UserLedger) HistorySum() float64 {
	var sum float64
	for _, h := range l.History {
		sum += h.Amount
	}
	return sum
}

func (l *UserLedger) session(contentID string) *SeedingSession {
	for i := range l.SeedingHistory {
		if l.SeedingHistory[i].ContentID == contentID {
			return &l.SeedingHistory[i]
		}
	}
	return nil
}

// ApplyCredit folds one validated report into the ledger and returns the history
// entries evicted by historyLimit. A zero reward touches counters and sessions only.
func (l *UserLedger) ApplyCredit(req *CreditRequest, reward float64, historyLimit int, now time.Time) []HistoryEntry {
	l.LastActiveAt = now

	bytes := req.Bytes()
	l.SeedingStats.TotalBytesUploaded += bytes
	l.SeedingStats.TotalSeedingTimeSeconds += req.SeedingTimeSeconds
	l.SeedingStats.TotalPeersServed += uint64(req.PeersConnected)

	sess := l.session(req.ContentID)
	if sess == nil {
		l.SeedingHistory = append(l.SeedingHistory, SeedingSession{
			ContentID: req.ContentID,
			Title:     req.Title,
			StartTime: now,
		})
		l.SeedingStats.ContentSeeded++
		sess = &l.SeedingHistory[len(l.SeedingHistory)-1]
	}
	if sess.Title == "" {
		sess.Title = req.Title
	}
	sess.BytesUploaded += bytes
	sess.DurationSeconds += req.SeedingTimeSeconds
	if req.PeersConnected > sess.PeakPeers {
		sess.PeakPeers = req.PeersConnected
	}

	if req.IsActive != nil {
		switch {
		case *req.IsActive && !sess.Active:
			sess.Active = true
			sess.EndTime = nil
			l.SeedingStats.ActiveSeedingCount++
		case !*req.IsActive && sess.Active:
			sess.Active = false
			end := now
			sess.EndTime = &end
			if l.SeedingStats.ActiveSeedingCount > 0 {
				l.SeedingStats.ActiveSeedingCount--
			}
		}
	}

	if reward <= 0 {
		return nil
	}

	l.Tokens += reward
	l.SeedingStats.RewardsEarned += reward
	l.History = append(l.History, HistoryEntry{
		ID:        uuid.NewString(),
		Amount:    reward,
		Reason:    ReasonSeeding,
		ContentID: req.ContentID,
		Timestamp: now,
	})

	if historyLimit <= 0 || len(l.History) <= historyLimit {
		return nil
	}
	n := len(l.History) - historyLimit
	evicted := make([]HistoryEntry, n)
	copy(evicted, l.History[:n])
	for _, e := range evicted {
		l.ArchivedTokens += e.Amount
	}
	l.History = append(make([]HistoryEntry, 0, historyLimit), l.History[n:]...)
	return evicted
}

// Clone returns a deep copy safe to hand out of a store.
func (l *UserLedger) Clone() *UserLedger {
	if l == nil {
		return nil
	}
	c := *l
	c.History = append(make([]HistoryEntry, 0, len(l.History)), l.History...)
	c.SeedingHistory = make([]SeedingSession, len(l.SeedingHistory))
	for i, s := range l.SeedingHistory {
		if s.EndTime != nil {
			end := *s.EndTime
			s.EndTime = &end
		}
		c.SeedingHistory[i] = s
	}
	if l.TelegramIdentity != nil {
		id := *l.TelegramIdentity
		c.TelegramIdentity = &id
	}
	return &c
}
