package models

// HistoryArchiveInterface keeps history entries evicted from a ledger by the history limit.
type HistoryArchiveInterface interface {
	Archive(userID string, entries []HistoryEntry)
	Load(userID string) ([]HistoryEntry, error)
	Has(userID string) bool
	PendingCount() int
}
