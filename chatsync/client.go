package chatsync

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chatsync/chatsync-go/chatsync/internal"
	"github.com/chatsync/chatsync-go/chatsync/session"

	"github.com/coder/websocket"
)

// transport is the bidirectional event channel the client drives. The
// production implementation is internal.Conn over a websocket; tests
// substitute a fake.
type transport interface {
	Read(ctx context.Context, v any) error
	Write(ctx context.Context, v any) error
	Close(code websocket.StatusCode, reason string) error
}

// Client owns the single transport connection and the reconciliation loop.
//
// All state mutation happens on one internal goroutine: server events and
// local intents are drained from channels and each is handled to
// completion before the next, so an observer never sees a half-applied
// transition. Intents translate to transport emissions, not to local state
// changes; the server echo is what mutates the snapshot.
type Client struct {
	cfg        Config
	logger     Logger
	store      session.Store
	rec        *Reconciler
	dispatcher Dispatcher

	writeCh  chan Inbound
	eventCh  chan Outbound
	intentCh chan func()
	done     chan struct{}
	loopOnce sync.Once

	onMessage            func(MessageEvent)
	onParticipantJoined  func(Participant)
	onParticipantLeft    func(Participant)
	onParticipantUpdated func(Participant)
	onRoomCreated        func(Room)
	onTyping             func(TypingSignal)
	onSnapshot           func(*Snapshot)
	onStateChanged       func(StateEvent)
	onError              func(error)

	mu         sync.Mutex
	state      ConnectionState
	conn       transport
	connCancel context.CancelFunc
	closed     bool
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() or ConfigFromEnv() as a starting point.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:      cfg,
		logger:   noopLogger{},
		writeCh:  make(chan Inbound, 16),
		eventCh:  make(chan Outbound, 16),
		intentCh: make(chan func(), 32),
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
	c.rec = NewReconciler(c.logger)
	c.wireDispatcher()
	return c
}

// SetLogger overrides logger (optional). Call before Connect.
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.rec.logger = l
}

// SetSessionStore attaches a persistence store for the remembered display
// name. With a store attached the client re-announces the persisted name
// automatically on every (re)connect. Call before Connect.
func (c *Client) SetSessionStore(s session.Store) { c.store = s }

// Callback registration. Callbacks are invoked from the client loop and
// must not block; register before Connect.

func (c *Client) OnMessage(fn func(MessageEvent))           { c.onMessage = fn }
func (c *Client) OnParticipantJoined(fn func(Participant))  { c.onParticipantJoined = fn }
func (c *Client) OnParticipantLeft(fn func(Participant))    { c.onParticipantLeft = fn }
func (c *Client) OnParticipantUpdated(fn func(Participant)) { c.onParticipantUpdated = fn }
func (c *Client) OnRoomCreated(fn func(Room))               { c.onRoomCreated = fn }
func (c *Client) OnTyping(fn func(TypingSignal))            { c.onTyping = fn }
func (c *Client) OnStateChanged(fn func(StateEvent))        { c.onStateChanged = fn }
func (c *Client) OnError(fn func(error))                    { c.onError = fn }

// OnSnapshot registers the presentation callback. The snapshot passed in
// is the live one and is only valid for the duration of the call; use
// Clone to retain it.
func (c *Client) OnSnapshot(fn func(*Snapshot)) { c.onSnapshot = fn }

// Connect dials the server and starts the internal loops. If a display
// name is configured or persisted, the join intent is issued automatically
// so a returning user never sees a login prompt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ErrorClosed, "client closed")
	}
	switch c.state {
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if c.cfg.URL == "" {
		c.transition(StateDisconnected, nil)
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	if err := c.dial(ctx); err != nil {
		c.transition(StateDisconnected, err)
		return err
	}
	return nil
}

// Close shuts down the client and closes the connection. The client
// cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosed
	cancel := c.connCancel
	conn := c.conn
	c.connCancel = nil
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

// Intents. Each is validated and handled on the client loop; an invalid
// intent or one issued while disconnected is dropped silently per the
// error model: no fault ever reaches the presentation layer. The returned
// error only reports enqueue failure (cancelled context, closed client).

// Join announces the display name and persists it for future sessions.
func (c *Client) Join(ctx context.Context, displayName string) error {
	return c.enqueue(ctx, func() { c.joinIntent(displayName) })
}

// SendMessage emits a message for the active room. The local message list
// stays untouched until the server echoes it back, so every client
// converges on identical ordering.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.enqueue(ctx, func() {
		text := strings.TrimSpace(text)
		if text == "" || !c.connectedNow() {
			return
		}
		room := c.rec.Snapshot().ActiveRoomID
		if room == "" {
			return
		}
		c.emit(Inbound{Type: intentMessage, Data: MessagePayload{RoomID: room, Text: text}})
	})
}

// SetTyping emits the local typing state for the active room. The local
// typing set is never self-updated: a client never shows itself typing.
func (c *Client) SetTyping(ctx context.Context, isTyping bool) error {
	return c.enqueue(ctx, func() {
		if !c.connectedNow() {
			return
		}
		room := c.rec.Snapshot().ActiveRoomID
		if room == "" {
			return
		}
		c.emit(Inbound{Type: intentTyping, Data: TypingPayload{RoomID: room, IsTyping: isTyping}})
	})
}

// CreateRoom requests a new group room. The active room switches only
// once the roomCreated event arrives.
func (c *Client) CreateRoom(ctx context.Context, name string, participantIDs []string) error {
	return c.enqueue(ctx, func() {
		name := strings.TrimSpace(name)
		if name == "" || !c.connectedNow() {
			return
		}
		c.emit(Inbound{Type: intentCreateRoom, Data: CreateRoomPayload{Name: name, ParticipantIDs: participantIDs}})
	})
}

// StartDirectChat requests a one-to-one room. No room is fabricated
// locally; the client waits for the corresponding roomCreated event.
func (c *Client) StartDirectChat(ctx context.Context, participantID string) error {
	return c.enqueue(ctx, func() {
		if participantID == "" || !c.connectedNow() {
			return
		}
		c.emit(Inbound{Type: intentStartPrivateChat, Data: StartPrivateChatPayload{ParticipantID: participantID}})
	})
}

// UpdateProfile persists and applies the new name locally right away so
// the UI reflects it without a round trip, then emits the update; remote
// clients converge on their userUpdated echo.
func (c *Client) UpdateProfile(ctx context.Context, displayName, description string) error {
	return c.enqueue(ctx, func() {
		name := strings.TrimSpace(displayName)
		if name == "" || !c.connectedNow() {
			return
		}
		c.persistName(name)
		c.rec.SetProfile(name, description)
		c.emit(Inbound{Type: intentUpdateUser, Data: UpdateUserPayload{Username: name, Description: description}})
		c.notifySnapshot()
	})
}

// SetActiveRoom moves the active-room pointer. Purely local: nothing is
// emitted.
func (c *Client) SetActiveRoom(ctx context.Context, roomID string) error {
	return c.enqueue(ctx, func() {
		c.rec.SetActiveRoom(roomID)
		c.notifySnapshot()
	})
}

// CurrentSnapshot returns a deep copy of the canonical state, taken
// between two reconciliation steps.
func (c *Client) CurrentSnapshot(ctx context.Context) (*Snapshot, error) {
	ch := make(chan *Snapshot, 1)
	if err := c.enqueue(ctx, func() { ch <- c.rec.Snapshot().Clone() }); err != nil {
		return nil, err
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, NewError(ErrorClosed, "client closed")
	}
}

func (c *Client) joinIntent(displayName string) {
	name := strings.TrimSpace(displayName)
	if name == "" || !c.connectedNow() {
		c.logger.Debug("join intent dropped", map[string]any{"connected": c.connectedNow()})
		return
	}
	c.persistName(name)
	c.rec.MarkLoggedIn(name)
	c.emit(Inbound{Type: intentJoin, Data: JoinPayload{DisplayName: name}})
	c.notifySnapshot()
}

func (c *Client) persistName(name string) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveDisplayName(name); err != nil {
		c.logger.Warn("persist display name failed", map[string]any{"error": err.Error()})
	}
}

// emit hands an envelope to the write loop. Intents are never queued
// across a disconnect: if the write buffer is unavailable the envelope is
// dropped and logged.
func (c *Client) emit(in Inbound) {
	select {
	case c.writeCh <- in:
	default:
		c.logger.Warn("write buffer full, intent dropped", map[string]any{"type": in.Type})
	}
}

func (c *Client) connectedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// wireDispatcher routes every decoded server event through the reconciler
// first, then to the matching user callback, then publishes the snapshot.
func (c *Client) wireDispatcher() {
	c.dispatcher.SetOnMessage(func(ev MessageEvent) {
		c.rec.ApplyMessage(ev)
		if c.onMessage != nil {
			c.onMessage(ev)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnParticipantJoined(func(p Participant) {
		c.rec.ApplyParticipantJoined(p)
		if c.onParticipantJoined != nil {
			c.onParticipantJoined(p)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnParticipantLeft(func(p Participant) {
		c.rec.ApplyParticipantLeft(p.ID)
		if c.onParticipantLeft != nil {
			c.onParticipantLeft(p)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnParticipantUpdated(func(p Participant) {
		c.rec.ApplyParticipantUpdated(p)
		if c.onParticipantUpdated != nil {
			c.onParticipantUpdated(p)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnRoster(func(ps []Participant) {
		c.rec.ApplyRoster(ps)
		c.notifySnapshot()
	})
	c.dispatcher.SetOnRooms(func(rooms []Room) {
		c.rec.ApplyRooms(rooms)
		c.notifySnapshot()
	})
	c.dispatcher.SetOnRoomCreated(func(room Room) {
		c.rec.ApplyRoomCreated(room)
		if c.onRoomCreated != nil {
			c.onRoomCreated(room)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnTyping(func(sig TypingSignal) {
		c.rec.ApplyTyping(sig)
		if c.onTyping != nil {
			c.onTyping(sig)
		}
		c.notifySnapshot()
	})
	c.dispatcher.SetOnError(func(err error) {
		if c.onError != nil {
			c.onError(err)
		}
	})
}

func (c *Client) notifySnapshot() {
	if c.onSnapshot != nil {
		c.onSnapshot(c.rec.Snapshot())
	}
}

func (c *Client) startLoop() {
	c.loopOnce.Do(func() { go c.runLoop() })
}

// runLoop is the single thread of control: one server event or one intent
// is handled to completion before the next is drawn.
func (c *Client) runLoop() {
	for {
		select {
		case out := <-c.eventCh:
			c.dispatcher.Dispatch(out)
		case fn := <-c.intentCh:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Client) enqueue(ctx context.Context, fn func()) error {
	c.startLoop()
	select {
	case c.intentCh <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return NewError(ErrorClosed, "client closed")
	}
}

func (c *Client) dial(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "parse URL", err)
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return WrapError(ErrorConnection, "dial failed", err)
	}
	c.attach(internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout))
	return nil
}

// attach installs a live transport, starts the per-connection loops, and
// re-announces the persisted identity.
func (c *Client) attach(t transport) {
	c.startLoop()
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = t
	c.connCancel = cancel
	c.mu.Unlock()

	c.transition(StateConnected, nil)
	go c.readLoop(runCtx, t)
	go c.writeLoop(runCtx, t)
	c.autoJoin()
}

// autoJoin issues the join intent from the configured or persisted
// display name, if any, without user interaction.
func (c *Client) autoJoin() {
	name := c.cfg.DisplayName
	if name == "" && c.store != nil {
		stored, err := c.store.LoadDisplayName()
		if err != nil {
			c.logger.Warn("load persisted display name failed", map[string]any{"error": err.Error()})
		}
		name = stored
	}
	if name == "" {
		return
	}
	_ = c.enqueue(context.Background(), func() { c.joinIntent(name) })
}

func (c *Client) readLoop(ctx context.Context, t transport) {
	for {
		var out Outbound
		if err := t.Read(ctx, &out); err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			c.asyncError(WrapError(ErrorConnection, "read failed", err))
			c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			c.handleDrop(err)
			return
		}
		select {
		case c.eventCh <- out:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, t transport) {
	for {
		select {
		case in := <-c.writeCh:
			if err := t.Write(ctx, in); err != nil {
				c.asyncError(WrapError(ErrorConnection, "write failed", err))
				c.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleDrop reacts to an unexpected transport loss. The snapshot keeps
// everything except the binary connection flag: reconciliation on
// reconnect is corrective, driven by the server's bulk resend.
func (c *Client) handleDrop(cause error) {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	cancel := c.connCancel
	c.connCancel = nil
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.drainWrites()
	c.transition(StateDisconnected, cause)
	if c.cfg.AutoReconnect {
		go c.reconnectLoop()
	}
}

// drainWrites discards envelopes still buffered when the connection died
// so they are never flushed to the next connection: a message the server
// did not acknowledge simply never appears.
func (c *Client) drainWrites() {
	for {
		select {
		case in := <-c.writeCh:
			c.logger.Debug("pending envelope discarded on disconnect", map[string]any{"type": in.Type})
		default:
			return
		}
	}
}

// reconnectLoop re-dials with a capped exponential delay until it
// succeeds, gives up, or the client closes.
func (c *Client) reconnectLoop() {
	delay := c.cfg.ReconnectInterval
	if delay <= 0 {
		delay = 2 * time.Second
	}
	tries := 0
	for {
		tries++
		if c.cfg.MaxReconnectTries > 0 && tries > c.cfg.MaxReconnectTries {
			c.logger.Warn("reconnect gave up", map[string]any{"tries": tries - 1})
			c.transition(StateDisconnected, nil)
			return
		}
		c.transition(StateReconnecting, nil)

		select {
		case <-time.After(delay):
		case <-c.done:
			return
		}

		err := c.dial(context.Background())
		if err == nil {
			return
		}
		c.logger.Warn("reconnect attempt failed", map[string]any{"try": tries, "error": err.Error()})
		if delay *= 2; c.cfg.MaxReconnectDelay > 0 && delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *Client) asyncError(err error) {
	_ = c.enqueue(context.Background(), func() {
		if c.onError != nil {
			c.onError(err)
		}
	})
}

// transition records a connection state change and publishes it through
// the client loop so observers see it in event order.
func (c *Client) transition(newState ConnectionState, cause error) {
	c.mu.Lock()
	old := c.state
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = newState
	c.mu.Unlock()
	if old == newState {
		return
	}

	ev := StateEvent{OldState: old, NewState: newState, Error: cause}
	_ = c.enqueue(context.Background(), func() {
		c.rec.SetConnectionState(newState)
		if c.onStateChanged != nil {
			c.onStateChanged(ev)
		}
		c.notifySnapshot()
	})
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
