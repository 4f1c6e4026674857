package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = 500 * time.Millisecond
)

var (
	ErrAlreadyConnected = errors.New("session is already connected")
	ErrNotConnected     = errors.New("session is not connected")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

type (
	handlerFunc func(ctx context.Context, sessionID string, data json.RawMessage)

	session struct {
		wire  model.Wire
		rooms map[string]struct{}
	}

	// Hub keeps track of live sessions and the rooms they joined, and relays
	// socket events between them. Room names are user ids or chat ids,
	// the hub does not tell them apart.
	Hub struct {
		logger     zerolog.Logger
		mx         *sync.RWMutex
		sessions   map[string]*session
		rooms      map[string]map[string]struct{}
		handlers   map[string]handlerFunc
		fwdTimeout time.Duration
	}
)

func NewHub(logger *zerolog.Logger) *Hub {
	h := &Hub{
		logger:     logger.With().Str("component", "hub").Logger(),
		mx:         &sync.RWMutex{},
		sessions:   make(map[string]*session),
		rooms:      make(map[string]map[string]struct{}),
		fwdTimeout: defaultFwdTimeout,
	}
	h.handlers = map[string]handlerFunc{
		model.EventSetup:      h.handleSetup,
		model.EventJoinChat:   h.handleJoin,
		model.EventTyping:     h.handleTyping,
		model.EventStopTyping: h.handleStopTyping,
		model.EventNewMessage: h.handleNewMessage,
	}
	return h
}

// Connect registers a session. Events arriving on wire.RX are dispatched
// until ctx is done or RX is closed. The session joins no rooms.
func (h *Hub) Connect(ctx context.Context, sessionID string, wire model.Wire) error {
	h.mx.Lock()
	if _, ok := h.sessions[sessionID]; ok {
		h.mx.Unlock()
		return ErrAlreadyConnected
	}
	h.sessions[sessionID] = &session{
		wire:  wire,
		rooms: make(map[string]struct{}),
	}
	total := len(h.sessions)
	h.mx.Unlock()

	h.logger.Debug().
		Str("session", sessionID).
		Int("sessions", total).
		Msg("session connected")

	go h.forwardEvents(ctx, sessionID, wire.RX)
	return nil
}

// Disconnect drops the session together with all its room memberships.
func (h *Hub) Disconnect(sessionID string) {
	h.mx.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		for room := range sess.rooms {
			h.leaveLocked(sessionID, room)
		}
		delete(h.sessions, sessionID)
	}
	total := len(h.sessions)
	h.mx.Unlock()

	if ok {
		h.logger.Debug().
			Str("session", sessionID).
			Int("sessions", total).
			Msg("session disconnected")
	}
}

func (h *Hub) forwardEvents(ctx context.Context, sessionID string, rx <-chan model.Event) {
fwdLoop:
	for {
		select {
		case <-ctx.Done():
			break fwdLoop
		case ev, ok := <-rx:
			if !ok {
				break fwdLoop
			}
			h.Dispatch(ctx, sessionID, ev)
		}
	}
}

// Dispatch routes an inbound event to its handler. Unknown events are ignored.
func (h *Hub) Dispatch(ctx context.Context, sessionID string, ev model.Event) {
	handler, ok := h.handlers[ev.Name]
	if !ok {
		h.logger.Debug().
			Str("session", sessionID).
			Str("event", ev.Name).
			Msg("unknown event ignored")
		return
	}
	handler(ctx, sessionID, ev.Data)
}

func (h *Hub) handleSetup(ctx context.Context, sessionID string, data json.RawMessage) {
	var p model.SetupPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.dropMalformed(sessionID, model.EventSetup, data, err)
		return
	}
	if err := h.Setup(ctx, sessionID, p); err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("setup dropped")
	}
}

func (h *Hub) handleJoin(_ context.Context, sessionID string, data json.RawMessage) {
	room, err := decodeRoom(data)
	if err != nil {
		h.dropMalformed(sessionID, model.EventJoinChat, data, err)
		return
	}
	if err = h.Join(sessionID, room); err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("join dropped")
	}
}

func (h *Hub) handleTyping(ctx context.Context, sessionID string, data json.RawMessage) {
	room, err := decodeRoom(data)
	if err != nil {
		h.dropMalformed(sessionID, model.EventTyping, data, err)
		return
	}
	h.Typing(ctx, sessionID, room)
}

func (h *Hub) handleStopTyping(ctx context.Context, sessionID string, data json.RawMessage) {
	room, err := decodeRoom(data)
	if err != nil {
		h.dropMalformed(sessionID, model.EventStopTyping, data, err)
		return
	}
	h.StopTyping(ctx, sessionID, room)
}

func (h *Hub) handleNewMessage(ctx context.Context, sessionID string, data json.RawMessage) {
	h.NewMessage(ctx, sessionID, data)
}

// Setup joins the session to the room named after the user id and answers
// with "connected" to that session only.
func (h *Hub) Setup(ctx context.Context, sessionID string, p model.SetupPayload) error {
	if p.ID == "" {
		return errors.Join(ErrInvalidPayload, errors.New("setup requires _id"))
	}
	if err := h.Join(sessionID, p.ID); err != nil {
		return err
	}

	h.mx.RLock()
	sess, ok := h.sessions[sessionID]
	h.mx.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, h.fwdTimeout)
	defer cancel()
	if !h.send(ctx, model.Event{Name: model.EventConnected}, sess.wire.TX, sessionID) {
		h.logger.Debug().Str("session", sessionID).Msg("connected ack was not delivered")
	}
	return nil
}

// Join adds the session to a room. Joining a room twice is a no-op.
func (h *Hub) Join(sessionID, room string) error {
	if room == "" {
		return errors.Join(ErrInvalidPayload, errors.New("empty room name"))
	}

	h.mx.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.mx.Unlock()
		return ErrNotConnected
	}
	sess.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[sessionID] = struct{}{}
	h.mx.Unlock()

	h.logger.Debug().
		Str("session", sessionID).
		Str("room", room).
		Msg("session joined room")
	return nil
}

// must be called with write lock held
func (h *Hub) leaveLocked(sessionID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Typing relays "typing" to every other session in the room.
func (h *Hub) Typing(ctx context.Context, sessionID, room string) int {
	ctx, cancel := context.WithTimeout(ctx, h.fwdTimeout)
	defer cancel()
	return h.relay(ctx, room, model.Event{Name: model.EventTyping}, sessionID)
}

// StopTyping relays "stop typing" to every other session in the room.
func (h *Hub) StopTyping(ctx context.Context, sessionID, room string) int {
	ctx, cancel := context.WithTimeout(ctx, h.fwdTimeout)
	defer cancel()
	return h.relay(ctx, room, model.Event{Name: model.EventStopTyping}, sessionID)
}

// NewMessage relays "message received" with the untouched payload to the
// personal room of every chat participant except the sender.
// All deliveries share one forward timeout. It returns the number of deliveries.
func (h *Hub) NewMessage(ctx context.Context, sessionID string, payload json.RawMessage) int {
	var env model.MessageEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.dropMalformed(sessionID, model.EventNewMessage, payload, err)
		return 0
	}
	if env.Chat == nil || env.Chat.Users == nil {
		h.logger.Warn().Str("session", sessionID).Msg("chat.users not defined")
		return 0
	}
	if env.Sender == nil || env.Sender.ID == "" {
		h.logger.Warn().Str("session", sessionID).Msg("sender._id not defined")
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, h.fwdTimeout)
	defer cancel()

	var (
		delivered int
		ev        = model.Event{Name: model.EventMessageReceived, Data: payload}
	)
	for _, user := range env.Chat.Users {
		if user.ID == "" || user.ID == env.Sender.ID {
			continue
		}
		delivered += h.relay(ctx, user.ID, ev, sessionID)
	}
	return delivered
}

// Emit sends an event to every session in the room.
func (h *Hub) Emit(ctx context.Context, room string, ev model.Event) int {
	ctx, cancel := context.WithTimeout(ctx, h.fwdTimeout)
	defer cancel()
	return h.relay(ctx, room, ev, "")
}

// relay waits on full buffers only until ctx is done, so callers bound the
// whole fan-out with a single deadline.
func (h *Hub) relay(ctx context.Context, room string, ev model.Event, except string) int {
	type target struct {
		id string
		tx chan<- model.Event
	}

	h.mx.RLock()
	targets := make([]target, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id == except {
			continue
		}
		targets = append(targets, target{id: id, tx: h.sessions[id].wire.TX})
	}
	h.mx.RUnlock()

	var delivered int
	for _, t := range targets {
		if h.send(ctx, ev, t.tx, t.id) {
			delivered++
		}
	}
	if delivered == 0 {
		h.logger.Debug().
			Str("room", room).
			Str("event", ev.Name).
			Msg("relay did not reach anyone")
	}
	return delivered
}

// send tries the session's TX first without waiting. A full buffer is waited
// on only while ctx lasts.
func (h *Hub) send(ctx context.Context, ev model.Event, tx chan<- model.Event, dst string) bool {
	select {
	case tx <- ev:
		return true
	default:
	}

	select {
	case tx <- ev:
		return true
	case <-ctx.Done():
		h.logger.Error().Str("dst", dst).Str("event", ev.Name).Msg("dead endpoint")
		return false
	}
}

func (h *Hub) dropMalformed(sessionID, event string, data json.RawMessage, err error) {
	h.logger.Warn().
		Err(err).
		Str("session", sessionID).
		Str("event", event).
		Msg("malformed payload dropped")
	if e := h.logger.Trace(); e.Enabled() {
		e.Str("session", sessionID).Str("payload", spew.Sdump(data)).Msg("malformed payload dump")
	}
}

// Members returns sorted session ids currently in the room.
func (h *Hub) Members(room string) []string {
	h.mx.RLock()
	defer h.mx.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns sorted room names the session has joined.
func (h *Hub) Rooms(sessionID string) []string {
	h.mx.RLock()
	defer h.mx.RUnlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(sess.rooms))
	for room := range sess.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func decodeRoom(data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil {
		return "", err
	}
	if room == "" {
		return "", errors.Join(ErrInvalidPayload, errors.New("empty room name"))
	}
	return room, nil
}
