package callsession

import (
	"context"
	"encoding/json"
	"fmt"

	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/pkg/logger"
)

// ServiceSignaler is a Signaler for one user backed by the call service and
// a realtime feed.
type ServiceSignaler struct {
	calls  *services.CallService
	feed   realtime.Feed
	userID string
}

func NewServiceSignaler(calls *services.CallService, feed realtime.Feed, userID string) *ServiceSignaler {
	return &ServiceSignaler{calls: calls, feed: feed, userID: userID}
}

func (s *ServiceSignaler) Start(ctx context.Context, receiverID string, callType models.CallType) (*models.Call, error) {
	view, err := s.calls.Start(ctx, s.userID, services.StartCallRequest{ReceiverID: receiverID, Type: callType})
	if err != nil {
		return nil, err
	}
	return view.Call, nil
}

func (s *ServiceSignaler) SetOffer(ctx context.Context, callID string, offer models.SessionDescription) error {
	_, err := s.calls.SetOffer(ctx, s.userID, callID, offer)
	return err
}

func (s *ServiceSignaler) SetAnswer(ctx context.Context, callID string, answer models.SessionDescription) error {
	_, err := s.calls.Answer(ctx, s.userID, callID, answer)
	return err
}

func (s *ServiceSignaler) AddCandidate(ctx context.Context, callID string, c models.ICECandidate) error {
	_, err := s.calls.AddCandidate(ctx, s.userID, callID, c)
	return err
}

func (s *ServiceSignaler) End(ctx context.Context, callID, reason string) error {
	_, err := s.calls.End(ctx, s.userID, callID, reason)
	return err
}

func (s *ServiceSignaler) Reject(ctx context.Context, callID string) error {
	_, err := s.calls.Reject(ctx, s.userID, callID)
	return err
}

// Watch subscribes before reading the current document so no change between
// the two is lost.
func (s *ServiceSignaler) Watch(ctx context.Context, callID string) (<-chan *models.Call, error) {
	sub, err := s.feed.Subscribe(ctx, realtime.CallTopic(callID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to call: %w", err)
	}
	current, err := s.calls.Get(ctx, s.userID, callID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	return s.forward(ctx, sub, current.Call), nil
}

func (s *ServiceSignaler) WatchIncoming(ctx context.Context) (<-chan *models.Call, error) {
	sub, err := s.feed.Subscribe(ctx, realtime.UserCallsTopic(s.userID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to calls: %w", err)
	}
	return s.forward(ctx, sub, nil), nil
}

func (s *ServiceSignaler) forward(ctx context.Context, sub *realtime.Subscription, first *models.Call) <-chan *models.Call {
	out := make(chan *models.Call, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		if first != nil {
			select {
			case out <- first:
			case <-ctx.Done():
				return
			}
		}
		for evt := range sub.Events() {
			if evt.Kind == realtime.Deleted || len(evt.Snapshot) == 0 {
				continue
			}
			var call models.Call
			if err := json.Unmarshal(evt.Snapshot, &call); err != nil {
				logger.WithError(err).WithField("topic", evt.Topic).Warn("Dropping undecodable call event")
				continue
			}
			select {
			case out <- &call:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
