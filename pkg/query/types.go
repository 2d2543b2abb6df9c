package query

import "time"

// Summary is the status of one asset as shown to a user
type Summary struct {
	Asset           string    `json:"asset"`
	Type            string    `json:"type,omitempty"`
	LatestVersion   int       `json:"latest_version"`
	VersionsToKeep  int       `json:"versions_to_keep"`
	Locked          bool      `json:"locked"`
	LockHolder      string    `json:"lock_holder,omitempty"` // empty when unlocked
	LockedSince     time.Time `json:"locked_since,omitzero"`
	LastCheckinUser string    `json:"last_checkin_user"`
	LastCheckinTime time.Time `json:"last_checkin_time"`
	LatestComment   string    `json:"latest_comment,omitempty"`
	Installed       bool      `json:"installed"`
	InstallPath     string    `json:"install_path,omitempty"`
}

// HistoryEntry describes one retained version
type HistoryEntry struct {
	Version    int    `json:"version"`
	Folder     string `json:"folder"`
	Comment    string `json:"comment,omitempty"`
	HasComment bool   `json:"has_comment"`
	Present    bool   `json:"present"` // version directory exists
}
