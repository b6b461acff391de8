// Package callsession drives one participant's side of a call: it acquires
// media, runs the peer connection and exchanges offer, answer and ICE
// candidates through the shared call document.
package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/pkg/logger"
)

type State string

const (
	StateIdle      State = "idle"
	StateOutgoing  State = "outgoing"
	StateIncoming  State = "incoming"
	StateConnected State = "connected"
	StateEnded     State = "ended"
)

var ErrBusy = errors.New("a call is already in progress")

// Signaler reads and writes the call document.
type Signaler interface {
	Start(ctx context.Context, receiverID string, callType models.CallType) (*models.Call, error)
	SetOffer(ctx context.Context, callID string, offer models.SessionDescription) error
	SetAnswer(ctx context.Context, callID string, answer models.SessionDescription) error
	AddCandidate(ctx context.Context, callID string, c models.ICECandidate) error
	End(ctx context.Context, callID, reason string) error
	Reject(ctx context.Context, callID string) error
	// Watch streams snapshots of the call, starting with the current one,
	// until ctx ends.
	Watch(ctx context.Context, callID string) (<-chan *models.Call, error)
	// WatchIncoming streams snapshots of calls addressed to the user.
	WatchIncoming(ctx context.Context) (<-chan *models.Call, error)
}

// Signal is a local or remote signaling payload: a session description or
// an ICE candidate.
type Signal struct {
	Description *models.SessionDescription
	Candidate   *models.ICECandidate
}

// Peer is a WebRTC peer connection.
type Peer interface {
	Signal(s Signal) error
	Destroy()
}

type PeerConfig struct {
	Initiator  bool
	Stream     MediaStream
	ICEServers []models.ICEServer
}

// PeerEvents are the callbacks a Peer reports through. They may be called
// from any goroutine.
type PeerEvents struct {
	OnSignal  func(Signal)
	OnConnect func()
	OnError   func(error)
	OnClose   func()
}

type PeerFactory func(cfg PeerConfig, events PeerEvents) (Peer, error)

type MediaStream interface {
	Stop()
}

// MediaSource grants access to the camera and microphone.
type MediaSource interface {
	Acquire(ctx context.Context, video bool) (MediaStream, error)
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

type Deps struct {
	Signaler   Signaler
	Peers      PeerFactory
	Media      MediaSource
	Notifier   Notifier
	ICEServers []models.ICEServer
	// OnState is called after every state change.
	OnState func(State)
}

// Session is one user's call client. It handles a single call at a time.
type Session struct {
	userID string
	deps   Deps

	mu         sync.Mutex
	state      State
	ctx        context.Context
	cancel     context.CancelFunc
	call       *models.Call
	caller     bool
	peer       Peer
	stream     MediaStream
	answered   bool
	remoteSeen int
}

func New(userID string, deps Deps) *Session {
	return &Session{userID: userID, deps: deps, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Call returns the latest known call document.
func (s *Session) Call() *models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == nil {
		return nil
	}
	cp := *s.call
	return &cp
}

// Listen surfaces incoming calls until ctx ends. A call is reported once it
// carries an offer and the session is free.
func (s *Session) Listen(ctx context.Context) error {
	incoming, err := s.deps.Signaler.WatchIncoming(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch incoming calls: %w", err)
	}
	go func() {
		for call := range incoming {
			if call.ReceiverID != s.userID || call.Offer == nil || call.Status != models.CallOutgoing {
				continue
			}
			if err := s.Receive(ctx, call); err != nil && !errors.Is(err, ErrBusy) {
				logger.WithError(err).WithField("call_id", call.ID).Warn("Failed to surface incoming call")
			}
		}
	}()
	return nil
}

// Dial starts a call to receiverID as the initiator.
func (s *Session) Dial(ctx context.Context, receiverID string, callType models.CallType) error {
	if err := s.begin(ctx, StateOutgoing, nil, true); err != nil {
		return err
	}

	call, err := s.deps.Signaler.Start(s.ctx, receiverID, callType)
	if err != nil {
		s.teardown()
		s.notify("Could not start the call")
		return fmt.Errorf("failed to start call: %w", err)
	}
	s.mu.Lock()
	s.call = call
	s.mu.Unlock()

	if err := s.watch(call.ID); err != nil {
		s.fail(services.EndReasonPeer, "Call failed")
		return err
	}

	stream, err := s.deps.Media.Acquire(s.ctx, callType == models.CallVideo)
	if err != nil {
		s.fail(services.EndReasonMedia, "Could not access camera or microphone")
		return fmt.Errorf("failed to acquire media: %w", err)
	}
	return s.startPeer(stream, true, nil)
}

// Receive marks a call with an offer as incoming.
func (s *Session) Receive(ctx context.Context, call *models.Call) error {
	if call.ReceiverID != s.userID {
		return fmt.Errorf("%w: call is addressed to another user", models.ErrForbidden)
	}
	if call.Offer == nil {
		return fmt.Errorf("%w: call has no offer yet", models.ErrInvalidInput)
	}
	if err := s.begin(ctx, StateIncoming, call, false); err != nil {
		return err
	}
	if err := s.watch(call.ID); err != nil {
		s.fail(services.EndReasonPeer, "Call failed")
		return err
	}
	return nil
}

// Accept answers the incoming call.
func (s *Session) Accept() error {
	s.mu.Lock()
	if s.state != StateIncoming {
		s.mu.Unlock()
		return fmt.Errorf("%w: no incoming call", models.ErrInvalidTransition)
	}
	call := s.call
	ctx := s.ctx
	s.mu.Unlock()

	stream, err := s.deps.Media.Acquire(ctx, call.Type == models.CallVideo)
	if err != nil {
		s.fail(services.EndReasonMedia, "Could not access camera or microphone")
		return fmt.Errorf("failed to acquire media: %w", err)
	}
	return s.startPeer(stream, false, call.Offer)
}

// Decline rejects the incoming call.
func (s *Session) Decline() error {
	s.mu.Lock()
	if s.state != StateIncoming {
		s.mu.Unlock()
		return fmt.Errorf("%w: no incoming call", models.ErrInvalidTransition)
	}
	callID, ctx := s.call.ID, s.ctx
	s.mu.Unlock()

	s.teardown()
	if err := s.deps.Signaler.Reject(context.WithoutCancel(ctx), callID); err != nil {
		return fmt.Errorf("failed to reject call: %w", err)
	}
	return nil
}

// Hangup stops local media, closes the peer and marks the call ended.
func (s *Session) Hangup() error {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateEnded || s.call == nil {
		s.mu.Unlock()
		return nil
	}
	callID, ctx := s.call.ID, s.ctx
	s.mu.Unlock()

	s.teardown()
	if err := s.deps.Signaler.End(context.WithoutCancel(ctx), callID, services.EndReasonHangup); err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	return nil
}

func (s *Session) begin(ctx context.Context, state State, call *models.Call, caller bool) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateEnded {
		s.mu.Unlock()
		return ErrBusy
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.call = call
	s.caller = caller
	s.peer, s.stream = nil, nil
	s.answered = false
	s.remoteSeen = 0
	s.state = state
	s.mu.Unlock()

	s.stateChanged(state)
	return nil
}

func (s *Session) watch(callID string) error {
	updates, err := s.deps.Signaler.Watch(s.ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to watch call: %w", err)
	}
	go func() {
		for call := range updates {
			s.handleUpdate(call)
		}
	}()
	return nil
}

func (s *Session) startPeer(stream MediaStream, initiator bool, offer *models.SessionDescription) error {
	peer, err := s.deps.Peers(PeerConfig{
		Initiator:  initiator,
		Stream:     stream,
		ICEServers: s.deps.ICEServers,
	}, s.events())
	if err != nil {
		stream.Stop()
		s.fail(services.EndReasonPeer, "Call failed")
		return fmt.Errorf("failed to create peer: %w", err)
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		stream.Stop()
		peer.Destroy()
		return nil
	}
	s.peer, s.stream = peer, stream
	var pending []Signal
	if offer != nil {
		pending = append(pending, Signal{Description: offer})
	}
	pending = append(pending, s.unseenCandidates()...)
	s.mu.Unlock()

	return s.apply(peer, pending)
}

// unseenCandidates returns the remote candidates not yet fed to the peer.
// Callers hold s.mu.
func (s *Session) unseenCandidates() []Signal {
	remote := s.call.CallerCandidates
	if s.caller {
		remote = s.call.ReceiverCandidates
	}
	var out []Signal
	for i := s.remoteSeen; i < len(remote); i++ {
		c := remote[i]
		out = append(out, Signal{Candidate: &c})
	}
	if len(remote) > s.remoteSeen {
		s.remoteSeen = len(remote)
	}
	return out
}

// handleUpdate reacts to a new snapshot of the call document.
func (s *Session) handleUpdate(call *models.Call) {
	s.mu.Lock()
	if s.call == nil || call.ID != s.call.ID || s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.call = call
	if call.Status.Terminal() {
		s.mu.Unlock()
		s.teardown()
		return
	}

	peer := s.peer
	var pending []Signal
	if peer != nil {
		if s.caller && call.Answer != nil && !s.answered {
			s.answered = true
			pending = append(pending, Signal{Description: call.Answer})
		}
		pending = append(pending, s.unseenCandidates()...)
	}
	s.mu.Unlock()

	if err := s.apply(peer, pending); err != nil {
		logger.WithError(err).WithField("call_id", call.ID).Warn("Failed to apply remote signal")
	}
}

func (s *Session) apply(peer Peer, signals []Signal) error {
	for _, sig := range signals {
		if err := peer.Signal(sig); err != nil {
			s.fail(services.EndReasonPeer, "Call failed")
			return fmt.Errorf("failed to apply signal: %w", err)
		}
	}
	return nil
}

func (s *Session) events() PeerEvents {
	return PeerEvents{
		OnSignal: s.handleLocalSignal,
		OnConnect: func() {
			s.mu.Lock()
			if s.state != StateOutgoing && s.state != StateIncoming {
				s.mu.Unlock()
				return
			}
			s.state = StateConnected
			s.mu.Unlock()
			s.stateChanged(StateConnected)
		},
		OnError: func(err error) {
			logger.WithError(err).Warn("Peer connection failed")
			s.fail(services.EndReasonPeer, "Call failed")
		},
		OnClose: func() {
			s.teardown()
		},
	}
}

// handleLocalSignal writes a payload produced by the local peer to the call
// document.
func (s *Session) handleLocalSignal(sig Signal) {
	s.mu.Lock()
	if s.call == nil || s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	callID, ctx, caller := s.call.ID, s.ctx, s.caller
	s.mu.Unlock()

	var err error
	switch {
	case sig.Description != nil && caller:
		err = s.deps.Signaler.SetOffer(ctx, callID, *sig.Description)
	case sig.Description != nil:
		err = s.deps.Signaler.SetAnswer(ctx, callID, *sig.Description)
	case sig.Candidate != nil:
		err = s.deps.Signaler.AddCandidate(ctx, callID, *sig.Candidate)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).WithField("call_id", callID).Warn("Failed to send local signal")
		s.fail(services.EndReasonPeer, "Call failed")
	}
}

// fail tears the call down, records it as ended and tells the user.
func (s *Session) fail(reason, message string) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	var callID string
	if s.call != nil {
		callID = s.call.ID
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.teardown()
	if callID != "" {
		err := s.deps.Signaler.End(context.WithoutCancel(ctx), callID, reason)
		if err != nil && !errors.Is(err, models.ErrInvalidTransition) && !errors.Is(err, models.ErrConflict) {
			logger.WithError(err).WithField("call_id", callID).Warn("Failed to record call end")
		}
	}
	s.notify(message)
}

// teardown stops local media, destroys the peer and stops watching.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	peer, stream, cancel := s.peer, s.stream, s.cancel
	s.peer, s.stream = nil, nil
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if peer != nil {
		peer.Destroy()
	}
	if cancel != nil {
		cancel()
	}
	s.stateChanged(StateEnded)
}

func (s *Session) stateChanged(state State) {
	if s.deps.OnState != nil {
		s.deps.OnState(state)
	}
}

func (s *Session) notify(message string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(message)
	}
}
