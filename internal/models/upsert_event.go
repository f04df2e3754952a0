package models

import "time"

// UpsertAction says whether an upsert created or changed a record.
type UpsertAction string

const (
	UpsertInserted UpsertAction = "inserted"
	UpsertUpdated  UpsertAction = "updated"
)

// UpsertEvent is the audit entry written for every persisted upsert.
type UpsertEvent struct {
	EventID        string       `json:"event_id"`
	ProjectUID     string       `json:"project_uid"`
	ProjectName    string       `json:"project_name"`
	ProjectTicker  string       `json:"project_ticker"`
	Source         string       `json:"source"`
	Action         UpsertAction `json:"action"`
	PreferIncoming bool         `json:"prefer_incoming"`
	Version        int64        `json:"version"`
	Warnings       uint32       `json:"warnings"`
	Timestamp      time.Time    `json:"timestamp"`
}
