// Package memstore is an in-memory store.Store used by tests and local
// development. Transactions are serialized and rolled back by restoring a
// snapshot taken when they began.
package memstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

type txKey struct{}

type data struct {
	nextID     int64
	users      map[int64]models.User
	apiKeys    []models.APIKey
	sessions   map[int64]models.Session
	perms      map[string]struct{}
	userPerms  map[int64]map[string]struct{}
	groupPerms map[string]map[string]struct{}
}

func (d *data) clone() *data {
	c := &data{
		nextID:     d.nextID,
		users:      maps.Clone(d.users),
		apiKeys:    slices.Clone(d.apiKeys),
		sessions:   maps.Clone(d.sessions),
		perms:      maps.Clone(d.perms),
		userPerms:  make(map[int64]map[string]struct{}, len(d.userPerms)),
		groupPerms: make(map[string]map[string]struct{}, len(d.groupPerms)),
	}
	for k, v := range d.userPerms {
		c.userPerms[k] = maps.Clone(v)
	}
	for k, v := range d.groupPerms {
		c.groupPerms[k] = maps.Clone(v)
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    *data

	// PingErr, when set, is returned by Ping.
	PingErr error
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{d: &data{
		users:      map[int64]models.User{},
		sessions:   map[int64]models.Session{},
		perms:      map[string]struct{}{},
		userPerms:  map[int64]map[string]struct{}{},
		groupPerms: map[string]map[string]struct{}{},
	}}
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *Store) restore(snapshot *data) {
	s.mu.Lock()
	s.d = snapshot
	s.mu.Unlock()
}

func (s *Store) id() int64 {
	s.d.nextID++
	return s.d.nextID
}

// --- Users ---

func (s *Store) GetUserByName(_ context.Context, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range slices.Sorted(maps.Keys(s.d.users)) {
		u := s.d.users[id]
		if strings.ToLower(u.Name) == strings.ToLower(name) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, id := range slices.Sorted(maps.Keys(s.d.users)) {
		u := s.d.users[id]
		out = append(out, &u)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.d.users {
		if strings.ToLower(u.Name) == strings.ToLower(user.Name) {
			return store.ErrDuplicateKey
		}
	}
	user.ID = s.id()
	s.d.users[user.ID] = *user
	return nil
}

func (s *Store) SetUserPassword(_ context.Context, id int64, hash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = hash
	s.d.users[id] = u
	return nil
}

// --- API Keys ---

func (s *Store) APIKeysByIdent(_ context.Context, ident string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.d.apiKeys {
		if strings.HasPrefix(k.Key, ident+"-") {
			keys = append(keys, &k)
		}
	}
	return keys, nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.ID = s.id()
	s.d.apiKeys = append(s.d.apiKeys, *key)
	return nil
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.d.sessions {
		if !other.Done && other.Cookie == sess.Cookie {
			return store.ErrDuplicateKey
		}
	}
	sess.ID = s.id()
	sess.CreatedAt = time.Now().UTC()
	sess.Done = false
	sess.NextCookie = nil
	s.d.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) FindSession(_ context.Context, value string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.findLive(value); ok {
		return &sess, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) findLive(value string) (models.Session, bool) {
	ids := slices.Sorted(maps.Keys(s.d.sessions))
	for _, id := range ids {
		sess := s.d.sessions[id]
		if sess.Done {
			continue
		}
		if sess.Cookie == value || (sess.NextCookie != nil && *sess.NextCookie == value) {
			return sess, true
		}
	}
	return models.Session{}, false
}

func (s *Store) PromoteNextCookie(_ context.Context, id int64, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.d.sessions[id]
	if !ok || sess.Done || sess.NextCookie == nil || *sess.NextCookie != next {
		return false, nil
	}
	sess.Cookie = next
	sess.NextCookie = nil
	s.d.sessions[id] = sess
	return true, nil
}

func (s *Store) AssignNextCookies(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.d.sessions {
		if sess.Done || sess.NextCookie != nil {
			continue
		}
		next := uuid.NewString()
		sess.NextCookie = &next
		s.d.sessions[id] = sess
		n++
	}
	return n, nil
}

func (s *Store) EndSession(_ context.Context, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.findLive(value)
	if !ok {
		return 0, nil
	}
	sess.Done = true
	sess.NextCookie = nil
	s.d.sessions[sess.ID] = sess
	return 1, nil
}

func (s *Store) ListSessions(_ context.Context, userID int64) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, id := range slices.Sorted(maps.Keys(s.d.sessions)) {
		sess := s.d.sessions[id]
		if sess.UserID == userID && !sess.Done {
			out = append(out, &sess)
		}
	}
	return out, nil
}

// --- Permissions ---

func (s *Store) PermissionNames(_ context.Context, userID int64, roles []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := maps.Clone(s.d.userPerms[userID])
	if set == nil {
		set = map[string]struct{}{}
	}
	for _, role := range roles {
		for name := range s.d.groupPerms[role] {
			set[name] = struct{}{}
		}
	}
	names := slices.Sorted(maps.Keys(set))
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Store) GrantUserPermission(_ context.Context, userID int64, perm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.perms[perm] = struct{}{}
	if s.d.userPerms[userID] == nil {
		s.d.userPerms[userID] = map[string]struct{}{}
	}
	s.d.userPerms[userID][perm] = struct{}{}
	return nil
}

func (s *Store) RevokeUserPermission(_ context.Context, userID int64, perm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.userPerms[userID][perm]; !ok {
		return store.ErrNotFound
	}
	delete(s.d.userPerms[userID], perm)
	return nil
}

func (s *Store) GrantGroupPermission(_ context.Context, role, perm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.perms[perm] = struct{}{}
	if s.d.groupPerms[role] == nil {
		s.d.groupPerms[role] = map[string]struct{}{}
	}
	s.d.groupPerms[role][perm] = struct{}{}
	return nil
}

// SessionCount returns the number of stored login rows, done or not.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.sessions)
}
