package models

import (
	"strings"
	"time"
)

type User struct {
	ID             string         `bson:"_id" json:"id"`
	Name           string         `bson:"name" json:"name"`
	Avatar         string         `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Phone          string         `bson:"phone" json:"phone"`
	Class          string         `bson:"class" json:"class"`
	IsOnline       bool           `bson:"is_online" json:"is_online"`
	IsAdmin        bool           `bson:"is_admin" json:"is_admin"`
	LastSeen       time.Time      `bson:"last_seen" json:"last_seen"`
	DeviceID       string         `bson:"device_id,omitempty" json:"-"`
	PresenceStatus PresenceStatus `bson:"presence_status,omitempty" json:"presence_status,omitempty"`
	PresenceDay    string         `bson:"presence_day,omitempty" json:"presence_day,omitempty"`
	Settings       UserSettings   `bson:"settings" json:"settings"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// UserSettings holds the notification and privacy preference blobs.
type UserSettings struct {
	Notifications NotificationSettings `bson:"notifications" json:"notifications"`
	Privacy       PrivacySettings      `bson:"privacy" json:"privacy"`
}

type NotificationSettings struct {
	Messages bool `bson:"messages" json:"messages"`
	Groups   bool `bson:"groups" json:"groups"`
	Calls    bool `bson:"calls" json:"calls"`
	Sound    bool `bson:"sound" json:"sound"`
	Preview  bool `bson:"preview" json:"preview"`
}

type PrivacySettings struct {
	LastSeen     Visibility `bson:"last_seen" json:"last_seen" validate:"omitempty,oneof=everyone contacts nobody"`
	ProfilePhoto Visibility `bson:"profile_photo" json:"profile_photo" validate:"omitempty,oneof=everyone contacts nobody"`
	ReadReceipts bool       `bson:"read_receipts" json:"read_receipts"`
	OnlineStatus bool       `bson:"online_status" json:"online_status"`
}

type Visibility string

const (
	VisibleEveryone Visibility = "everyone"
	VisibleContacts Visibility = "contacts"
	VisibleNobody   Visibility = "nobody"
)

// DefaultSettings is applied to newly registered users.
func DefaultSettings() UserSettings {
	return UserSettings{
		Notifications: NotificationSettings{Messages: true, Groups: true, Calls: true, Sound: true, Preview: true},
		Privacy: PrivacySettings{
			LastSeen:     VisibleEveryone,
			ProfilePhoto: VisibleEveryone,
			ReadReceipts: true,
			OnlineStatus: true,
		},
	}
}

// PresentOn reports whether the user's presence flag is set for day.
func (u *User) PresentOn(day string) bool {
	return u.PresenceDay == day && u.PresenceStatus == PresencePresent
}

// NormalizePhone strips everything but digits and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchesIdentity compares the login tuple. Name and class are compared
// case-insensitively after trimming, phone after normalisation.
func (u *User) MatchesIdentity(name, class, phone string) bool {
	return strings.EqualFold(strings.TrimSpace(u.Name), strings.TrimSpace(name)) &&
		strings.EqualFold(strings.TrimSpace(u.Class), strings.TrimSpace(class)) &&
		NormalizePhone(u.Phone) == NormalizePhone(phone)
}

// MatchesTerm is the linear search predicate used by user listings.
func (u *User) MatchesTerm(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Name), term) ||
		strings.Contains(strings.ToLower(u.Class), term) ||
		strings.Contains(u.Phone, term)
}
