package interfaces

// SchedulerInterface drives snapshot and archive persistence around the server lifecycle.
type SchedulerInterface interface {
	// Restore loads the last snapshot before the server accepts reports.
	Restore() error
	Init()
	Stop()
	// Persist flushes pending archive entries and writes the final snapshot.
	Persist() error
	PersistSnapshot() error
}
