package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gameqc/logger"
	"gameqc/qa"
)

// Frame types exchanged with runtime harness workers.
const (
	FrameLaunch       = "launch"
	FrameCommand      = "command"
	FrameClose        = "close"
	FrameLaunched     = "launched"
	FrameLaunchFailed = "launch_failed"
	FrameEvent        = "event"
)

// RuntimeFrame is the wire format of /ws/runtime. The server sends launch,
// command and close; harnesses answer with launched, launch_failed and event.
type RuntimeFrame struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	EntryURL  string     `json:"entryUrl,omitempty"`
	Command   qa.Command `json:"command,omitempty"`
	Event     *qa.Event  `json:"event,omitempty"`
	Error     string     `json:"error,omitempty"`
}

var errHarnessGone = errors.New("runtime harness disconnected")

type harnessConn struct {
	id       string
	socket   *websocket.Conn
	send     chan []byte
	done     chan struct{}
	sessions int
}

type runtimeSession struct {
	id       qa.Handle
	harness  *harnessConn
	launched chan error
	signal   chan struct{}

	mu     sync.Mutex
	queue  []qa.Event
	errors []qa.Event
}

func (s *runtimeSession) push(ev qa.Event) {
	s.mu.Lock()
	if ev.Type == qa.EventError {
		s.errors = append(s.errors, ev)
	} else {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *runtimeSession) take(eventType qa.EventType) (qa.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.queue {
		if ev.Type == eventType {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return ev, true
		}
	}
	return qa.Event{}, false
}

// RuntimeBridge is the qa.Bridge served by harness workers that connect over
// websocket and run game builds in a real browser.
type RuntimeBridge struct {
	mu            sync.Mutex
	harnesses     map[string]*harnessConn
	sessions      map[qa.Handle]*runtimeSession
	launchTimeout time.Duration
	log           *logger.Logger
	now           func() time.Time
}

func NewRuntimeBridge(launchTimeout time.Duration, log *logger.Logger) *RuntimeBridge {
	if log == nil {
		log = logger.Nop()
	}
	return &RuntimeBridge{
		harnesses:     make(map[string]*harnessConn),
		sessions:      make(map[qa.Handle]*runtimeSession),
		launchTimeout: launchTimeout,
		log:           log.With("service", "RuntimeBridge"),
		now:           time.Now,
	}
}

// Attach registers a harness connection and starts its pumps. A harness
// reconnecting under the same ID replaces the old connection.
func (b *RuntimeBridge) Attach(harnessID string, conn *websocket.Conn) {
	h := &harnessConn{
		id:     harnessID,
		socket: conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	old := b.harnesses[harnessID]
	b.harnesses[harnessID] = h
	b.mu.Unlock()
	if old != nil {
		old.socket.Close()
	}
	b.log.Info("runtime harness attached", "harness_id", harnessID)

	go b.writePump(h)
	go b.readPump(h)
}

func (b *RuntimeBridge) HarnessCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.harnesses)
}

func (b *RuntimeBridge) Launch(ctx context.Context, entryURL string) (qa.Handle, error) {
	b.mu.Lock()
	var pick *harnessConn
	for _, h := range b.harnesses {
		if pick == nil || h.sessions < pick.sessions {
			pick = h
		}
	}
	if pick == nil {
		b.mu.Unlock()
		return "", qa.ErrNoRuntime
	}
	s := &runtimeSession{
		id:       qa.Handle(uuid.NewString()),
		harness:  pick,
		launched: make(chan error, 1),
		signal:   make(chan struct{}, 1),
	}
	pick.sessions++
	b.sessions[s.id] = s
	b.mu.Unlock()

	frame := RuntimeFrame{Type: FrameLaunch, SessionID: string(s.id), EntryURL: entryURL}
	if err := b.write(ctx, pick, frame); err != nil {
		b.forget(s.id)
		return "", err
	}

	timer := time.NewTimer(b.launchTimeout)
	defer timer.Stop()
	select {
	case err := <-s.launched:
		if err != nil {
			b.forget(s.id)
			return "", fmt.Errorf("harness %s: %w", pick.id, err)
		}
		b.log.Debug("runtime session launched", "session", s.id, "harness_id", pick.id)
		return s.id, nil
	case <-timer.C:
		b.forget(s.id)
		return "", fmt.Errorf("harness %s did not acknowledge launch within %s", pick.id, b.launchTimeout)
	case <-ctx.Done():
		b.forget(s.id)
		return "", ctx.Err()
	}
}

func (b *RuntimeBridge) SendCommand(ctx context.Context, h qa.Handle, cmd qa.Command) error {
	s, ok := b.session(h)
	if !ok {
		return qa.ErrUnknownHandle
	}
	return b.write(ctx, s.harness, RuntimeFrame{Type: FrameCommand, SessionID: string(h), Command: cmd})
}

func (b *RuntimeBridge) AwaitEvent(ctx context.Context, h qa.Handle, eventType qa.EventType, timeout time.Duration) (qa.Event, error) {
	s, ok := b.session(h)
	if !ok {
		return qa.Event{}, qa.ErrUnknownHandle
	}
	if ev, ok := s.take(eventType); ok {
		return ev, nil
	}
	if timeout <= 0 {
		return qa.Event{}, qa.ErrEventTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.signal:
			if ev, ok := s.take(eventType); ok {
				return ev, nil
			}
		case <-s.harness.done:
			if ev, ok := s.take(eventType); ok {
				return ev, nil
			}
			return qa.Event{}, errHarnessGone
		case <-timer.C:
			return qa.Event{}, qa.ErrEventTimeout
		case <-ctx.Done():
			return qa.Event{}, ctx.Err()
		}
	}
}

func (b *RuntimeBridge) Errors(h qa.Handle) []qa.Event {
	s, ok := b.session(h)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]qa.Event(nil), s.errors...)
}

func (b *RuntimeBridge) Close(h qa.Handle) error {
	s, ok := b.session(h)
	if !ok {
		return qa.ErrUnknownHandle
	}
	b.forget(h)
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := b.write(ctx, s.harness, RuntimeFrame{Type: FrameClose, SessionID: string(h)}); err != nil && !errors.Is(err, errHarnessGone) {
		return err
	}
	return nil
}

func (b *RuntimeBridge) session(h qa.Handle) (*runtimeSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[h]
	return s, ok
}

func (b *RuntimeBridge) forget(h qa.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[h]; ok {
		s.harness.sessions--
		delete(b.sessions, h)
	}
}

func (b *RuntimeBridge) write(ctx context.Context, h *harnessConn, frame RuntimeFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode runtime frame: %w", err)
	}
	select {
	case h.send <- data:
		return nil
	case <-h.done:
		return errHarnessGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *RuntimeBridge) readPump(h *harnessConn) {
	defer b.detach(h)

	h.socket.SetReadLimit(maxMessageSize)
	_ = h.socket.SetReadDeadline(time.Now().Add(pongWait))
	h.socket.SetPongHandler(func(string) error {
		return h.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := h.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("runtime harness read", "harness_id", h.id, "error", err)
			}
			return
		}
		var frame RuntimeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			b.log.Warn("runtime frame not json", "harness_id", h.id, "error", err)
			continue
		}
		b.dispatch(h, frame)
	}
}

func (b *RuntimeBridge) dispatch(h *harnessConn, frame RuntimeFrame) {
	s, ok := b.session(qa.Handle(frame.SessionID))
	if !ok || s.harness != h {
		b.log.Debug("runtime frame for unknown session", "harness_id", h.id, "session", frame.SessionID, "type", frame.Type)
		return
	}
	switch frame.Type {
	case FrameLaunched:
		select {
		case s.launched <- nil:
		default:
		}
	case FrameLaunchFailed:
		msg := frame.Error
		if msg == "" {
			msg = "launch failed"
		}
		select {
		case s.launched <- errors.New(msg):
		default:
		}
	case FrameEvent:
		if frame.Event == nil {
			return
		}
		ev := *frame.Event
		ev.ReceivedAt = b.now()
		s.push(ev)
	default:
		b.log.Debug("unknown runtime frame", "harness_id", h.id, "type", frame.Type)
	}
}

func (b *RuntimeBridge) detach(h *harnessConn) {
	b.mu.Lock()
	if b.harnesses[h.id] == h {
		delete(b.harnesses, h.id)
	}
	b.mu.Unlock()
	close(h.done)
	h.socket.Close()
	b.log.Info("runtime harness detached", "harness_id", h.id)
}

func (b *RuntimeBridge) writePump(h *harnessConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.socket.Close()
	}()

	for {
		select {
		case data := <-h.send:
			_ = h.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = h.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-h.done:
			_ = h.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
