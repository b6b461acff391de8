package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campuschat/internal/command"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"
)

// PresenceService keeps the daily attendance records and the presence flag
// mirrored on each user.
type PresenceService struct {
	store *store.Store
	pub   realtime.Publisher
	now   func() time.Time
}

func NewPresenceService(st *store.Store, pub realtime.Publisher) *PresenceService {
	return &PresenceService{store: st, pub: pub, now: time.Now}
}

// Toggle flips userID's standing for day. No record or an absent record
// becomes present; present becomes absent and the record is kept.
func (s *PresenceService) Toggle(ctx context.Context, actorID, userID, day string) (*models.PresenceRecord, error) {
	day, err := s.authorize(ctx, actorID, userID, day)
	if err != nil {
		return nil, err
	}

	current, err := s.store.Presence.Get(ctx, userID, day)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load presence record: %w", err)
	}

	next := models.PresencePresent
	if current != nil && current.Status == models.PresencePresent {
		next = models.PresenceAbsent
	}
	return s.apply(ctx, actorID, userID, day, next, current)
}

// Mark sets userID's standing for day explicitly.
func (s *PresenceService) Mark(ctx context.Context, actorID, userID, day string, status models.PresenceStatus) (*models.PresenceRecord, error) {
	if !status.Valid() {
		return nil, invalid("presence status %q", status)
	}
	day, err := s.authorize(ctx, actorID, userID, day)
	if err != nil {
		return nil, err
	}

	current, err := s.store.Presence.Get(ctx, userID, day)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load presence record: %w", err)
	}
	return s.apply(ctx, actorID, userID, day, status, current)
}

// apply writes the user flag then the record. A failed record write restores
// the previous flag.
func (s *PresenceService) apply(ctx context.Context, actorID, userID, day string, status models.PresenceStatus, previous *models.PresenceRecord) (*models.PresenceRecord, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	prevStatus, prevDay := user.PresenceStatus, user.PresenceDay

	now := s.now()
	record := &models.PresenceRecord{
		ID:        models.PresenceRecordID(userID, day),
		UserID:    userID,
		Day:       day,
		Status:    status,
		Timestamp: now,
		MarkedBy:  actorID,
	}

	// The user flag mirrors the latest day only. Back-filling an earlier day
	// writes the record and leaves the flag alone.
	updated := user
	var steps []command.Command
	if day >= user.PresenceDay {
		steps = append(steps, command.Command{
			Name: "set presence flag",
			Do: func(ctx context.Context) error {
				u, err := s.store.Users.Update(ctx, userID, store.UserUpdate{
					PresenceStatus: &status,
					PresenceDay:    &day,
					UpdatedAt:      now,
				})
				if err == nil {
					updated = u
				}
				return err
			},
			Undo: func(ctx context.Context) error {
				_, err := s.store.Users.Update(ctx, userID, store.UserUpdate{
					PresenceStatus: &prevStatus,
					PresenceDay:    &prevDay,
					UpdatedAt:      s.now(),
				})
				return err
			},
		})
	}
	steps = append(steps, command.Command{
		Name: "write presence record",
		Do: func(ctx context.Context) error {
			return s.store.Presence.Upsert(ctx, record)
		},
	})
	err = command.Run(ctx, steps...)
	if err != nil {
		logger.LogError(err, "Failed to update presence", map[string]interface{}{
			"user_id":    userID,
			"day":        day,
			"status":     status,
			"had_record": previous != nil,
		})
		return nil, fmt.Errorf("failed to update presence: %w", err)
	}

	publishUser(ctx, s.pub, updated)
	if actorID != userID {
		logger.LogAdminAction(actorID, "mark_presence", userID, map[string]interface{}{"day": day, "status": status})
	} else {
		logger.LogUserAction(userID, "mark_presence", map[string]interface{}{"day": day, "status": status})
	}
	return record, nil
}

// History returns userID's records with from <= day <= to.
func (s *PresenceService) History(ctx context.Context, actorID, userID, from, to string) ([]*models.PresenceRecord, error) {
	if actorID != userID {
		if err := s.requireAdmin(ctx, actorID); err != nil {
			return nil, err
		}
	}
	for _, d := range []string{from, to} {
		if d != "" && !utils.ValidateDay(d) {
			return nil, invalid("day %q", d)
		}
	}

	records, err := s.store.Presence.History(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load presence history: %w", err)
	}
	return records, nil
}

// Roster lists every user with their status for day. Users without a
// record have an empty status.
func (s *PresenceService) Roster(ctx context.Context, day string) ([]models.RosterEntry, error) {
	if day == "" {
		day = dayOf(s.now())
	}
	if !utils.ValidateDay(day) {
		return nil, invalid("day %q", day)
	}

	users, err := s.store.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	records, err := s.store.Presence.ForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load presence records: %w", err)
	}

	byUser := make(map[string]models.PresenceStatus, len(records))
	for _, r := range records {
		byUser[r.UserID] = r.Status
	}

	roster := make([]models.RosterEntry, 0, len(users))
	for _, u := range users {
		roster = append(roster, models.RosterEntry{
			UserID: u.ID,
			Name:   u.Name,
			Class:  u.Class,
			Status: byUser[u.ID],
		})
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Class != roster[j].Class {
			return roster[i].Class < roster[j].Class
		}
		return strings.ToLower(roster[i].Name) < strings.ToLower(roster[j].Name)
	})
	return roster, nil
}

func (s *PresenceService) authorize(ctx context.Context, actorID, userID, day string) (string, error) {
	if day == "" {
		day = dayOf(s.now())
	}
	if !utils.ValidateDay(day) {
		return "", invalid("day %q", day)
	}
	if actorID != userID {
		if err := s.requireAdmin(ctx, actorID); err != nil {
			return "", err
		}
	}
	return day, nil
}

func (s *PresenceService) requireAdmin(ctx context.Context, actorID string) error {
	actor, err := loadActor(ctx, s.store.Users, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		return forbidden("only admins can manage other users' presence")
	}
	return nil
}
