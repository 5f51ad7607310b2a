// Package sessionstore persists login sessions in SQL with an in-memory
// read-through cache in front.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/db"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

// CacheName is the registry name of the session read cache.
const CacheName = "sessions"

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is a stored login session.
type Session struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (s *Session) clone() *Session {
	cp := *s
	if s.Data != nil {
		cp.Data = append(json.RawMessage(nil), s.Data...)
	}
	return &cp
}

// Options configures a Store.
type Options struct {
	// DefaultTTL is the session lifetime when Set or Touch get ttl <= 0.
	DefaultTTL time.Duration
	// Cache memoizes reads. Defaults to a private cache named CacheName.
	Cache *cache.Cache[*Session]
	// CacheTTL bounds how long a read stays cached. It is further capped by
	// the session's own expiry.
	CacheTTL time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Store is a SQL-backed session store.
type Store struct {
	db         *db.DB
	cache      *cache.Cache[*Session]
	defaultTTL time.Duration
	cacheTTL   time.Duration
	now        func() time.Time
}

// New creates a store over conn. The schema must already be migrated.
func New(conn *db.DB, opts Options) *Store {
	s := &Store{
		db:         conn,
		cache:      opts.Cache,
		defaultTTL: opts.DefaultTTL,
		cacheTTL:   opts.CacheTTL,
		now:        opts.Clock,
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = 24 * time.Hour
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cache == nil {
		s.cache = cache.New[*Session](cache.Options{Name: CacheName, DefaultTTL: s.cacheTTL, Clock: s.now})
	}
	return s
}

// NewID returns a random session identifier.
func NewID() string {
	return uuid.NewString()
}

// Cache returns the read cache.
func (s *Store) Cache() *cache.Cache[*Session] { return s.cache }

// Get returns the session stored under sid.
func (s *Store) Get(ctx context.Context, sid string) (sess *Session, err error) {
	now := s.now()
	if cached, ok := s.cache.Get(sid); ok {
		if now.Before(cached.ExpiresAt) {
			return cached.clone(), nil
		}
		s.cache.Delete(sid)
		return nil, ErrNotFound
	}

	defer observe("session_get", time.Now(), &err)
	var (
		data      pqtype.NullRawMessage
		expiresAt int64
	)
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT data, expires_at FROM sessions WHERE sid = ?"), sid)
	if err := row.Scan(&data, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess = &Session{ID: sid, ExpiresAt: time.UnixMilli(expiresAt)}
	if data.Valid {
		sess.Data = append(json.RawMessage(nil), data.RawMessage...)
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	s.remember(sess, now)
	return sess.clone(), nil
}

// Set stores data under sid for ttl, replacing any existing session.
func (s *Store) Set(ctx context.Context, sid string, data json.RawMessage, ttl time.Duration) (err error) {
	if sid == "" {
		return errors.New("set session: empty id")
	}
	defer observe("session_set", time.Now(), &err)

	now := s.now()
	sess := &Session{ID: sid, ExpiresAt: now.Add(s.ttl(ttl))}
	if len(data) > 0 {
		sess.Data = append(json.RawMessage(nil), data...)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO sessions (sid, data, expires_at) VALUES (?, ?, ?)
ON CONFLICT (sid) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`),
		sid,
		pqtype.NullRawMessage{RawMessage: sess.Data, Valid: sess.Data != nil},
		sess.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		s.cache.Delete(sid)
		return fmt.Errorf("set session: %w", err)
	}
	s.remember(sess, now)
	return nil
}

// Touch extends the lifetime of an existing session.
func (s *Store) Touch(ctx context.Context, sid string, ttl time.Duration) (err error) {
	defer observe("session_touch", time.Now(), &err)

	now := s.now()
	expiresAt := now.Add(s.ttl(ttl))
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE sessions SET expires_at = ? WHERE sid = ? AND expires_at > ?"),
		expiresAt.UnixMilli(), sid, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.cache.Delete(sid)
		return ErrNotFound
	}

	if cached, ok := s.cache.Get(sid); ok {
		updated := cached.clone()
		updated.ExpiresAt = expiresAt
		s.remember(updated, now)
	}
	return nil
}

// Destroy removes a session. Removing an unknown session is not an error.
func (s *Store) Destroy(ctx context.Context, sid string) (err error) {
	defer observe("session_destroy", time.Now(), &err)

	s.cache.Delete(sid)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE sid = ?"), sid); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Length counts unexpired sessions.
func (s *Store) Length(ctx context.Context) (n int64, err error) {
	defer observe("session_length", time.Now(), &err)

	err = s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM sessions WHERE expires_at > ?"), s.now().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Clear removes every session.
func (s *Store) Clear(ctx context.Context) (err error) {
	defer observe("session_clear", time.Now(), &err)

	s.cache.Clear()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// Prune deletes expired sessions and sweeps the read cache. It returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context) (removed int64, err error) {
	defer observe("session_prune", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE expires_at <= ?"), s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	removed, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	s.cache.Sweep()
	metrics.SessionsPruned.Add(float64(removed))
	return removed, nil
}

func (s *Store) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	return ttl
}

// remember caches sess until the earlier of the cache TTL and its expiry.
func (s *Store) remember(sess *Session, now time.Time) {
	ttl := s.cacheTTL
	if remaining := sess.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		s.cache.Delete(sess.ID)
		return
	}
	s.cache.SetWithTTL(sess.ID, sess, ttl)
}

func observe(op string, start time.Time, err *error) {
	metrics.DBOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *err != nil && !errors.Is(*err, ErrNotFound) {
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
	}
}
