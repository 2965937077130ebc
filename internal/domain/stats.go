package domain

// LifetimeStats is a per-user denormalized counter record.
//
// The counters are cumulative creation totals and never decrease, even
// when rows are later evicted. The record is lazily backfilled from live
// row counts the first time it is read, so it can under-count activity
// that happened before the record existed.
type LifetimeStats struct {
	UserID                 string `json:"user_id"`
	TotalCompanionsCreated int    `json:"total_companions_created"`
	TotalSessionsCompleted int    `json:"total_sessions_completed"`
}
