package domain

import "time"

// AuditEntry records one inbound command as typed by the caller.
type AuditEntry struct {
	ID       string    `bson:"_id" json:"id"`
	LoggedAt time.Time `bson:"logged_at" json:"logged_at"`
	Username string    `bson:"username" json:"username"`
	Command  string    `bson:"command" json:"command"`
}
