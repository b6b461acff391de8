package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a new document id. Ids are stored as hex strings so the
// memory and mongo stores share one representation.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// DayFormat is the layout of presence days.
const DayFormat = "2006-01-02"
