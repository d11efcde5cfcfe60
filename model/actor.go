// model/actor.go
package model

// Actor is the already-authenticated caller performing a mutation. The
// boundary layer fills it from the gateway's identity headers.
type Actor struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// CacheStats is a point-in-time snapshot of the cache layer's counters.
// Hits and Misses count the decision tier; SnapshotHits and SnapshotMisses
// count the entry-snapshot tier, so one cold check shows up once in each.
type CacheStats struct {
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	SnapshotHits   int64 `json:"snapshot_hits"`
	SnapshotMisses int64 `json:"snapshot_misses"`
	Evictions      int64 `json:"evictions"`
	Size           int64 `json:"size"`
}

// EngineStats is the stats endpoint payload: cache counters plus the
// engine's operation counters.
type EngineStats struct {
	Cache    CacheStats       `json:"cache"`
	Counters map[string]int64 `json:"counters"`
}
