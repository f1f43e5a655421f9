package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

const sessionChannel = "auth.session"

type sessionEvent struct {
	Origin      string    `json:"origin"`
	Token       string    `json:"token"`
	Present     bool      `json:"present"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
}

func (e sessionEvent) state() identity.State {
	if !e.Present {
		return identity.Absent()
	}
	role, _ := identity.ParseRole(e.Role)
	return identity.Present(identity.Identity{ID: e.UserID, Email: e.Email, DisplayName: e.DisplayName, Role: role})
}

func eventFor(origin, token string, state identity.State) sessionEvent {
	ev := sessionEvent{Origin: origin, Token: token}
	if id, ok := state.Identity(); ok {
		ev.Present = true
		ev.UserID = id.ID
		ev.Email = id.Email
		ev.DisplayName = id.DisplayName
		ev.Role = id.Role.String()
	}
	return ev
}

// Broadcaster fans session changes out to subscribers keyed by session token.
// Changes published by other instances arrive through Redis pub/sub once
// Listen is running; a nil client keeps delivery in-process.
type Broadcaster struct {
	client *redis.Client
	origin string
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[uint64]func(identity.State)
	next uint64
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(client *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		client: client,
		origin: uuid.NewString(),
		logger: logger,
		subs:   make(map[string]map[uint64]func(identity.State)),
	}
}

// Subscribe registers fn for changes to token.
func (b *Broadcaster) Subscribe(token string, fn func(identity.State)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	if b.subs[token] == nil {
		b.subs[token] = make(map[uint64]func(identity.State))
	}
	b.subs[token][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[token], id)
		if len(b.subs[token]) == 0 {
			delete(b.subs, token)
		}
	}
}

// Publish delivers state to local subscribers of token and to other instances.
func (b *Broadcaster) Publish(ctx context.Context, token string, state identity.State) {
	b.dispatch(token, state)
	if b.client == nil {
		return
	}
	payload, err := json.Marshal(eventFor(b.origin, token, state))
	if err != nil {
		b.logger.Error("encode session event", slog.Any("error", err))
		return
	}
	if err := b.client.Publish(ctx, sessionChannel, payload).Err(); err != nil {
		b.logger.Warn("publish session event", slog.Any("error", err))
	}
}

// Listen relays events published by other instances until ctx ends.
func (b *Broadcaster) Listen(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, sessionChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev sessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("decode session event", slog.Any("error", err))
					continue
				}
				if ev.Origin == b.origin {
					continue
				}
				b.dispatch(ev.Token, ev.state())
			}
		}
	}()
	return nil
}

func (b *Broadcaster) dispatch(token string, state identity.State) {
	b.mu.RLock()
	fns := make([]func(identity.State), 0, len(b.subs[token]))
	for _, fn := range b.subs[token] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(state)
	}
}
