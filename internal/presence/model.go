package presence

import "time"

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

const (
	// ActiveWindow is how recent a heartbeat must be for an online user to
	// count as actively present.
	ActiveWindow = 5 * time.Minute
	// StaleCutoff is how long without a heartbeat before the sweep forces a
	// record offline.
	StaleCutoff = 10 * time.Minute
)

// Record is one user's cross-session presence. There is exactly one per
// user, upserted on every heartbeat or explicit update.
type Record struct {
	UserID      uint64     `json:"user_id"`
	Status      string     `json:"status"`
	Location    string     `json:"location,omitempty"`
	LastSeen    time.Time  `json:"last_seen"`
	OnlineSince *time.Time `json:"online_since,omitempty"`
	Device      string     `json:"device,omitempty"`
	Browser     string     `json:"browser,omitempty"`
}

// IsActive reports whether the user is online with a fresh heartbeat
func (r *Record) IsActive(now time.Time) bool {
	return r.Status == StatusOnline && now.Sub(r.LastSeen) < ActiveWindow
}

// IsStale reports whether the sweep should force the record offline
func (r *Record) IsStale(now time.Time) bool {
	return r.Status != StatusOffline && now.Sub(r.LastSeen) >= StaleCutoff
}

func ValidStatus(status string) bool {
	switch status {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}
