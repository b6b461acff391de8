package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/metrics"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"
)

const (
	EndReasonHangup   = "hangup"
	EndReasonNoAnswer = "no_answer"
	EndReasonMedia    = "media_error"
	EndReasonPeer     = "peer_error"
)

// CallService owns call documents and enforces the call state machine.
type CallService struct {
	store *store.Store
	pub   realtime.Publisher
	cfg   config.CallsConfig
	now   func() time.Time
}

type StartCallRequest struct {
	ReceiverID string          `json:"receiver_id" binding:"required"`
	Type       models.CallType `json:"type" binding:"required,call_type"`
}

// CallView is a call as seen by one participant.
type CallView struct {
	*models.Call
	MyStatus models.CallStatus `json:"my_status"`
}

func NewCallService(st *store.Store, pub realtime.Publisher, cfg config.CallsConfig) *CallService {
	return &CallService{store: st, pub: pub, cfg: cfg, now: time.Now}
}

func viewFor(c *models.Call, userID string) *CallView {
	return &CallView{Call: c, MyStatus: c.StatusFor(userID)}
}

// Start opens a call in the dialing state. Neither party may already be in
// an open call.
func (s *CallService) Start(ctx context.Context, callerID string, req StartCallRequest) (*CallView, error) {
	if callerID == req.ReceiverID {
		return nil, invalid("cannot call yourself")
	}
	if !req.Type.Valid() {
		return nil, invalid("call type %q", req.Type)
	}
	if _, err := s.store.Users.Get(ctx, req.ReceiverID); err != nil {
		return nil, fmt.Errorf("failed to load receiver: %w", err)
	}

	for _, id := range []string{callerID, req.ReceiverID} {
		open, err := s.store.Calls.Open(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check open calls: %w", err)
		}
		if len(open) > 0 {
			return nil, fmt.Errorf("user %s is already in a call: %w", id, models.ErrConflict)
		}
	}

	call := &models.Call{
		ID:         models.NewID(),
		CallerID:   callerID,
		ReceiverID: req.ReceiverID,
		Type:       req.Type,
		Status:     models.CallDialing,
		CreatedAt:  s.now(),
	}
	if err := s.store.Calls.Create(ctx, call); err != nil {
		logger.LogError(err, "Failed to create call", map[string]interface{}{
			"caller_id":   callerID,
			"receiver_id": req.ReceiverID,
		})
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	s.announce(ctx, realtime.Created, call, callerID, "started")
	return viewFor(call, callerID), nil
}

// Get returns the call when userID takes part in it.
func (s *CallService) Get(ctx context.Context, userID, callID string) (*CallView, error) {
	call, err := s.participantCall(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	return viewFor(call, userID), nil
}

// SetOffer stores the caller's offer. The receiver then sees the call as
// incoming.
func (s *CallService) SetOffer(ctx context.Context, callerID, callID string, offer models.SessionDescription) (*CallView, error) {
	call, err := s.participantCall(ctx, callerID, callID)
	if err != nil {
		return nil, err
	}
	if call.CallerID != callerID {
		return nil, forbidden("only the caller can send the offer")
	}
	if offer.SDP == "" {
		return nil, invalid("offer sdp must not be empty")
	}
	offer.Type = "offer"

	call, err = s.transition(ctx, call, store.CallUpdate{Status: models.CallOutgoing, Offer: &offer}, callerID, "offer")
	if err != nil {
		return nil, err
	}
	return viewFor(call, callerID), nil
}

// Answer stores the receiver's answer and makes the call active.
func (s *CallService) Answer(ctx context.Context, receiverID, callID string, answer models.SessionDescription) (*CallView, error) {
	call, err := s.participantCall(ctx, receiverID, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != receiverID {
		return nil, forbidden("only the receiver can answer")
	}
	if answer.SDP == "" {
		return nil, invalid("answer sdp must not be empty")
	}
	answer.Type = "answer"

	now := s.now()
	call, err = s.transition(ctx, call, store.CallUpdate{
		Status:     models.CallActive,
		Answer:     &answer,
		AnsweredAt: &now,
	}, receiverID, "answered")
	if err != nil {
		return nil, err
	}
	return viewFor(call, receiverID), nil
}

// AddCandidate appends an ICE candidate to the sender's list.
func (s *CallService) AddCandidate(ctx context.Context, userID, callID string, cand models.ICECandidate) (*CallView, error) {
	call, err := s.participantCall(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return nil, fmt.Errorf("%w: call is %s", models.ErrInvalidTransition, call.Status)
	}
	if strings.TrimSpace(cand.Candidate) == "" {
		return nil, invalid("candidate must not be empty")
	}

	call, err = s.store.Calls.AddCandidate(ctx, callID, call.CallerID == userID, cand)
	if err != nil {
		return nil, fmt.Errorf("failed to add candidate: %w", err)
	}
	publish(ctx, s.pub, realtime.CallTopic(call.ID), realtime.Updated, call.ID, call)
	return viewFor(call, userID), nil
}

// End hangs up. Either participant may end a call that is not yet over.
func (s *CallService) End(ctx context.Context, userID, callID, reason string) (*CallView, error) {
	call, err := s.participantCall(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = EndReasonHangup
	}

	now := s.now()
	var duration int64
	if call.AnsweredAt != nil {
		duration = int64(now.Sub(*call.AnsweredAt).Seconds())
	}
	call, err = s.transition(ctx, call, store.CallUpdate{
		Status:    models.CallEnded,
		EndedAt:   &now,
		EndedBy:   &userID,
		EndReason: &reason,
		Duration:  &duration,
	}, userID, "ended")
	if err != nil {
		return nil, err
	}
	return viewFor(call, userID), nil
}

// Reject declines a call that has not been answered.
func (s *CallService) Reject(ctx context.Context, receiverID, callID string) (*CallView, error) {
	call, err := s.participantCall(ctx, receiverID, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != receiverID {
		return nil, forbidden("only the receiver can reject")
	}

	now := s.now()
	reason := "rejected"
	call, err = s.transition(ctx, call, store.CallUpdate{
		Status:    models.CallRejected,
		EndedAt:   &now,
		EndedBy:   &receiverID,
		EndReason: &reason,
	}, receiverID, "rejected")
	if err != nil {
		return nil, err
	}
	return viewFor(call, receiverID), nil
}

// SweepUnanswered marks calls that rang longer than timeout as missed. A
// zero timeout disables the sweep.
func (s *CallService) SweepUnanswered(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}

	now := s.now()
	stale, err := s.store.Calls.Stale(ctx, []models.CallStatus{models.CallDialing, models.CallOutgoing}, now.Add(-timeout))
	if err != nil {
		logger.LogError(err, "Failed to find unanswered calls", nil)
		return 0, fmt.Errorf("failed to find unanswered calls: %w", err)
	}

	missed := 0
	reason := EndReasonNoAnswer
	system := systemUser
	for _, call := range stale {
		_, err := s.transition(ctx, call, store.CallUpdate{
			Status:    models.CallMissed,
			EndedAt:   &now,
			EndedBy:   &system,
			EndReason: &reason,
		}, system, "missed")
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				continue
			}
			return missed, err
		}
		missed++
	}
	return missed, nil
}

// History returns the user's calls, newest first.
func (s *CallService) History(ctx context.Context, userID string, limit int) ([]*CallView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	calls, err := s.store.Calls.ListForUser(ctx, userID, limit)
	if err != nil {
		logger.LogError(err, "Failed to get call history", map[string]interface{}{"user_id": userID})
		return nil, fmt.Errorf("failed to get call history: %w", err)
	}

	out := make([]*CallView, 0, len(calls))
	for _, c := range calls {
		out = append(out, viewFor(c, userID))
	}
	return out, nil
}

// ICEServers returns the STUN servers plus TURN servers with credentials
// minted for userID.
func (s *CallService) ICEServers(userID string) []models.ICEServer {
	servers := make([]models.ICEServer, 0, 2)
	if len(s.cfg.STUNServers) > 0 {
		servers = append(servers, models.ICEServer{URLs: s.cfg.STUNServers})
	}
	if len(s.cfg.TURNServers) > 0 && s.cfg.TURNSecret != "" {
		username, credential := utils.GenerateTurnCredentials(userID, s.cfg.TURNSecret, s.now().Add(s.cfg.TURNTTL))
		servers = append(servers, models.ICEServer{
			URLs:       s.cfg.TURNServers,
			Username:   username,
			Credential: credential,
		})
	}
	return servers
}

func (s *CallService) participantCall(ctx context.Context, userID, callID string) (*models.Call, error) {
	call, err := s.store.Calls.Get(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	if !call.IsParticipant(userID) {
		return nil, forbidden("not a participant of call %s", callID)
	}
	return call, nil
}

// transition checks the state machine, then applies upd only if the stored
// status is still the one that was checked.
func (s *CallService) transition(ctx context.Context, call *models.Call, upd store.CallUpdate, actorID, event string) (*models.Call, error) {
	if err := models.CheckTransition(call.Status, upd.Status); err != nil {
		return nil, err
	}

	updated, err := s.store.Calls.Transition(ctx, call.ID, call.Status, upd)
	if err != nil {
		if !errors.Is(err, models.ErrConflict) {
			logger.LogError(err, "Failed to update call", map[string]interface{}{
				"call_id": call.ID,
				"from":    call.Status,
				"to":      upd.Status,
			})
		}
		return nil, fmt.Errorf("failed to update call: %w", err)
	}

	s.announce(ctx, realtime.Updated, updated, actorID, event)
	return updated, nil
}

func (s *CallService) announce(ctx context.Context, kind realtime.Kind, call *models.Call, actorID, event string) {
	publish(ctx, s.pub, realtime.CallTopic(call.ID), kind, call.ID, call)
	publish(ctx, s.pub, realtime.UserCallsTopic(call.CallerID), kind, call.ID, viewFor(call, call.CallerID))
	publish(ctx, s.pub, realtime.UserCallsTopic(call.ReceiverID), kind, call.ID, viewFor(call, call.ReceiverID))

	metrics.RecordCallTransition(string(call.Status))
	logger.LogCallEvent(event, call.ID, actorID, map[string]interface{}{
		"status":   call.Status,
		"type":     call.Type,
		"duration": call.Duration,
	})
}
