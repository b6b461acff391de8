package callsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeSignaler struct {
	mu         sync.Mutex
	call       *models.Call
	offers     int
	answers    int
	candidates int
	ended      []string
	rejected   bool
	updates    chan *models.Call
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{updates: make(chan *models.Call, 16)}
}

func (f *fakeSignaler) Start(_ context.Context, receiverID string, callType models.CallType) (*models.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call = &models.Call{ID: "k1", CallerID: "a", ReceiverID: receiverID, Type: callType, Status: models.CallDialing}
	return f.call, nil
}

func (f *fakeSignaler) SetOffer(context.Context, string, models.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return nil
}

func (f *fakeSignaler) SetAnswer(context.Context, string, models.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return nil
}

func (f *fakeSignaler) AddCandidate(context.Context, string, models.ICECandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates++
	return nil
}

func (f *fakeSignaler) End(_ context.Context, _ string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, reason)
	return nil
}

func (f *fakeSignaler) Reject(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = true
	return nil
}

func (f *fakeSignaler) Watch(context.Context, string) (<-chan *models.Call, error) {
	return f.updates, nil
}

func (f *fakeSignaler) WatchIncoming(context.Context) (<-chan *models.Call, error) {
	return make(chan *models.Call), nil
}

func (f *fakeSignaler) endReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

type fakeStream struct{ stopped atomic.Bool }

func (s *fakeStream) Stop() { s.stopped.Store(true) }

type fakeMedia struct {
	err    error
	stream *fakeStream
	video  atomic.Bool
}

func (m *fakeMedia) Acquire(_ context.Context, video bool) (MediaStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.video.Store(video)
	m.stream = &fakeStream{}
	return m.stream, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

// fakePeer emits an offer when created as initiator, answers offers, and
// connects once the offer/answer exchange completes on its side.
type fakePeer struct {
	cfg       PeerConfig
	ev        PeerEvents
	mu        sync.Mutex
	received  []Signal
	destroyed atomic.Bool
}

func (p *fakePeer) Signal(s Signal) error {
	p.mu.Lock()
	p.received = append(p.received, s)
	p.mu.Unlock()

	if s.Description == nil {
		return nil
	}
	switch s.Description.Type {
	case "offer":
		p.ev.OnSignal(Signal{Description: &models.SessionDescription{Type: "answer", SDP: "answer-sdp"}})
		p.ev.OnSignal(Signal{Candidate: &models.ICECandidate{Candidate: "candidate:receiver"}})
		p.ev.OnConnect()
	case "answer":
		p.ev.OnConnect()
	}
	return nil
}

func (p *fakePeer) Destroy() { p.destroyed.Store(true) }

func (p *fakePeer) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.received {
		switch {
		case kind == "candidate" && s.Candidate != nil:
			n++
		case s.Description != nil && s.Description.Type == kind:
			n++
		}
	}
	return n
}

type peerRecorder struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (r *peerRecorder) factory(cfg PeerConfig, ev PeerEvents) (Peer, error) {
	if r.err != nil {
		return nil, r.err
	}
	p := &fakePeer{cfg: cfg, ev: ev}
	r.mu.Lock()
	r.peers = append(r.peers, p)
	r.mu.Unlock()
	if cfg.Initiator {
		ev.OnSignal(Signal{Description: &models.SessionDescription{Type: "offer", SDP: "offer-sdp"}})
		ev.OnSignal(Signal{Candidate: &models.ICECandidate{Candidate: "candidate:caller"}})
	}
	return p, nil
}

func (r *peerRecorder) last() *fakePeer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) == 0 {
		return nil
	}
	return r.peers[len(r.peers)-1]
}

func offerDoc(status models.CallStatus) *models.Call {
	return &models.Call{
		ID:         "k1",
		CallerID:   "a",
		ReceiverID: "b",
		Type:       models.CallVoice,
		Status:     status,
		Offer:      &models.SessionDescription{Type: "offer", SDP: "offer-sdp"},
	}
}

func withReceiver(c *models.Call, id string) *models.Call {
	c.ReceiverID = id
	return c
}

func TestCallerConnectsOnceAnswered(t *testing.T) {
	sig := newFakeSignaler()
	media := &fakeMedia{}
	peers := &peerRecorder{}
	s := New("a", Deps{Signaler: sig, Peers: peers.factory, Media: media})

	require.NoError(t, s.Dial(context.Background(), "b", models.CallVideo))
	assert.Equal(t, StateOutgoing, s.State())
	assert.True(t, media.video.Load())
	sig.mu.Lock()
	assert.Equal(t, 1, sig.offers)
	assert.Equal(t, 1, sig.candidates)
	sig.mu.Unlock()

	peer := peers.last()
	require.NotNil(t, peer)
	assert.True(t, peer.cfg.Initiator)

	// Offer stored, no answer yet: still ringing.
	doc := offerDoc(models.CallOutgoing)
	doc.ReceiverCandidates = []models.ICECandidate{{Candidate: "candidate:1"}}
	sig.updates <- doc
	assert.Eventually(t, func() bool { return peer.count("candidate") == 1 }, waitFor, tick)
	assert.Equal(t, StateOutgoing, s.State())
	assert.Zero(t, peer.count("answer"))

	answered := offerDoc(models.CallActive)
	answered.Answer = &models.SessionDescription{Type: "answer", SDP: "answer-sdp"}
	answered.ReceiverCandidates = []models.ICECandidate{{Candidate: "candidate:1"}, {Candidate: "candidate:2"}}
	sig.updates <- answered
	assert.Eventually(t, func() bool { return s.State() == StateConnected }, waitFor, tick)

	// A repeated snapshot applies nothing twice.
	sig.updates <- answered
	assert.Eventually(t, func() bool { return len(sig.updates) == 0 }, waitFor, tick)
	assert.Equal(t, 1, peer.count("answer"))
	assert.Equal(t, 2, peer.count("candidate"))

	require.NoError(t, s.Hangup())
	assert.Equal(t, StateEnded, s.State())
	assert.True(t, media.stream.stopped.Load())
	assert.True(t, peer.destroyed.Load())
	assert.Equal(t, []string{services.EndReasonHangup}, sig.endReasons())
}

func TestDialMediaFailure(t *testing.T) {
	sig := newFakeSignaler()
	notifier := &fakeNotifier{}
	peers := &peerRecorder{}
	s := New("a", Deps{
		Signaler: sig,
		Peers:    peers.factory,
		Media:    &fakeMedia{err: errors.New("permission denied")},
		Notifier: notifier,
	})

	err := s.Dial(context.Background(), "b", models.CallVoice)
	require.Error(t, err)
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, []string{services.EndReasonMedia}, sig.endReasons())
	assert.Nil(t, peers.last())
	assert.Len(t, notifier.messages, 1)
}

func TestPeerErrorEndsCall(t *testing.T) {
	sig := newFakeSignaler()
	media := &fakeMedia{}
	peers := &peerRecorder{}
	s := New("a", Deps{Signaler: sig, Peers: peers.factory, Media: media, Notifier: &fakeNotifier{}})

	require.NoError(t, s.Dial(context.Background(), "b", models.CallVoice))
	peers.last().ev.OnError(errors.New("ice failed"))

	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, []string{services.EndReasonPeer}, sig.endReasons())
	assert.True(t, media.stream.stopped.Load())
}

func TestSessionIsBusyDuringCall(t *testing.T) {
	sig := newFakeSignaler()
	peers := &peerRecorder{}
	s := New("a", Deps{Signaler: sig, Peers: peers.factory, Media: &fakeMedia{}})

	require.NoError(t, s.Dial(context.Background(), "b", models.CallVoice))
	assert.ErrorIs(t, s.Dial(context.Background(), "c", models.CallVoice), ErrBusy)
	assert.ErrorIs(t, s.Receive(context.Background(), &models.Call{ID: "k2", ReceiverID: "a", Offer: &models.SessionDescription{}}), ErrBusy)
}

func TestReceiverAcceptsIncomingCall(t *testing.T) {
	sig := newFakeSignaler()
	media := &fakeMedia{}
	peers := &peerRecorder{}
	var states []State
	var mu sync.Mutex
	s := New("b", Deps{Signaler: sig, Peers: peers.factory, Media: media, OnState: func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}})

	assert.ErrorIs(t, s.Receive(context.Background(), &models.Call{ID: "k1", CallerID: "a", ReceiverID: "b"}), models.ErrInvalidInput)
	assert.ErrorIs(t, s.Receive(context.Background(), withReceiver(offerDoc(models.CallOutgoing), "c")), models.ErrForbidden)

	doc := offerDoc(models.CallOutgoing)
	doc.CallerCandidates = []models.ICECandidate{{Candidate: "candidate:caller"}}
	require.NoError(t, s.Receive(context.Background(), doc))
	assert.Equal(t, StateIncoming, s.State())

	require.NoError(t, s.Accept())
	peer := peers.last()
	require.NotNil(t, peer)
	assert.False(t, peer.cfg.Initiator)
	assert.Equal(t, 1, peer.count("offer"))
	assert.Equal(t, 1, peer.count("candidate"))
	assert.Equal(t, StateConnected, s.State())
	sig.mu.Lock()
	assert.Equal(t, 1, sig.answers)
	assert.Equal(t, 1, sig.candidates)
	sig.mu.Unlock()

	ended := offerDoc(models.CallEnded)
	sig.updates <- ended
	assert.Eventually(t, func() bool { return s.State() == StateEnded }, waitFor, tick)
	assert.True(t, peer.destroyed.Load())
	assert.True(t, media.stream.stopped.Load())
	assert.Empty(t, sig.endReasons())

	mu.Lock()
	assert.Equal(t, []State{StateIncoming, StateConnected, StateEnded}, states)
	mu.Unlock()
}

func TestReceiverDeclines(t *testing.T) {
	sig := newFakeSignaler()
	s := New("b", Deps{Signaler: sig, Peers: (&peerRecorder{}).factory, Media: &fakeMedia{}})

	assert.ErrorIs(t, s.Decline(), models.ErrInvalidTransition)
	require.NoError(t, s.Receive(context.Background(), offerDoc(models.CallOutgoing)))
	require.NoError(t, s.Decline())

	assert.Equal(t, StateEnded, s.State())
	assert.True(t, sig.rejected)
	assert.ErrorIs(t, s.Accept(), models.ErrInvalidTransition)
}


func TestSessionsOverCallService(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := memory.New()
	for _, u := range []*models.User{
		{ID: "a", Name: "Ada", Phone: "+10000000001", Class: "A"},
		{ID: "b", Name: "Bo", Phone: "+10000000002", Class: "A"},
	} {
		require.NoError(t, st.Users.Create(ctx, u))
	}
	bus := realtime.NewBus(0)
	calls := services.NewCallService(st, bus, config.CallsConfig{STUNServers: []string{"stun:stun.l.google.com:19302"}})

	callerMedia, receiverMedia := &fakeMedia{}, &fakeMedia{}
	caller := New("a", Deps{
		Signaler:   NewServiceSignaler(calls, bus, "a"),
		Peers:      (&peerRecorder{}).factory,
		Media:      callerMedia,
		ICEServers: calls.ICEServers("a"),
	})
	receiver := New("b", Deps{
		Signaler: NewServiceSignaler(calls, bus, "b"),
		Peers:    (&peerRecorder{}).factory,
		Media:    receiverMedia,
	})
	require.NoError(t, receiver.Listen(ctx))

	require.NoError(t, caller.Dial(ctx, "b", models.CallVoice))
	assert.Eventually(t, func() bool { return receiver.State() == StateIncoming }, waitFor, tick)

	require.NoError(t, receiver.Accept())
	assert.Eventually(t, func() bool { return caller.State() == StateConnected }, waitFor, tick)
	assert.Equal(t, StateConnected, receiver.State())

	callID := caller.Call().ID
	stored, err := st.Calls.Get(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, models.CallActive, stored.Status)
	assert.NotNil(t, stored.AnsweredAt)
	assert.Len(t, stored.CallerCandidates, 1)
	assert.Len(t, stored.ReceiverCandidates, 1)

	require.NoError(t, caller.Hangup())
	assert.Eventually(t, func() bool { return receiver.State() == StateEnded }, waitFor, tick)
	assert.True(t, receiverMedia.stream.stopped.Load())
	assert.True(t, callerMedia.stream.stopped.Load())

	stored, err = st.Calls.Get(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, stored.Status)
	assert.Equal(t, services.EndReasonHangup, stored.EndReason)
	assert.Equal(t, "a", stored.EndedBy)
}
