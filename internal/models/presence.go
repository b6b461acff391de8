package models

import "time"

type PresenceStatus string

const (
	PresencePresent PresenceStatus = "present"
	PresenceAbsent  PresenceStatus = "absent"
)

func (s PresenceStatus) Valid() bool {
	return s == PresencePresent || s == PresenceAbsent
}

// PresenceRecord is one attendance entry per user per day.
type PresenceRecord struct {
	ID        string         `bson:"_id" json:"id"`
	UserID    string         `bson:"user_id" json:"user_id"`
	Day       string         `bson:"day" json:"day"`
	Status    PresenceStatus `bson:"status" json:"status"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	MarkedBy  string         `bson:"marked_by" json:"marked_by"`
}

// PresenceRecordID is deterministic so an upsert keeps one record per day.
func PresenceRecordID(userID, day string) string {
	return userID + ":" + day
}

// RosterEntry is a user's standing for one day. Status is empty when no
// record exists.
type RosterEntry struct {
	UserID string         `json:"user_id"`
	Name   string         `json:"name"`
	Class  string         `json:"class"`
	Status PresenceStatus `json:"status,omitempty"`
}
