package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"guildwarden/internal/kv"
)

const sessionCookie = "gw_session"

var errNoSession = errors.New("no session")

type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Guilds    []string  `json:"guilds"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) CanManage(guildID string) bool {
	for _, id := range s.Guilds {
		if id == guildID {
			return true
		}
	}
	return false
}

// Sessions keeps dashboard logins in the shared kv store so any instance can
// serve a request.
type Sessions struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewSessions(store kv.Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{store: store, ttl: ttl, now: time.Now}
}

func (s *Sessions) Create(ctx context.Context, userID, username string, guilds []string) (Session, error) {
	session := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		Guilds:    guilds,
		ExpiresAt: s.now().Add(s.ttl),
	}
	raw, err := sonic.Marshal(session)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Set(ctx, kv.SessionKey(session.ID), raw, s.ttl); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

func (s *Sessions) Get(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, errNoSession
	}
	raw, ok, err := s.store.Get(ctx, kv.SessionKey(id))
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, errNoSession
	}
	var session Session
	if err := sonic.Unmarshal(raw, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !session.ExpiresAt.IsZero() && s.now().After(session.ExpiresAt) {
		return Session{}, errNoSession
	}
	session.ID = id
	return session, nil
}

func (s *Sessions) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, kv.SessionKey(id))
}

type sessionCtxKey struct{}

func withSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, session)
}

func sessionFrom(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionCtxKey{}).(Session)
	return session, ok
}
