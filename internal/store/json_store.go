package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vowpact/internal/contract"
	"vowpact/internal/logging"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	contractsFile = "contracts.json"
	usersFile     = "users.json"
	sessionsFile  = "sessions.json"

	fileFormatVersion = 1
)

type contractsDoc struct {
	Version   int                  `json:"version"`
	Contracts []*contract.Contract `json:"contracts"`
}

type usersDoc struct {
	Version int     `json:"version"`
	Users   []*User `json:"users"`
}

type sessionsDoc struct {
	Version  int        `json:"version"`
	Sessions []*Session `json:"sessions"`
}

// JSONStore keeps everything in memory and mirrors each collection to its
// own file in dir. Every mutation rewrites the affected file atomically.
type JSONStore struct {
	mu        sync.RWMutex
	dir       string
	contracts map[string]*contract.Contract
	users     map[string]*User
	sessions  map[string]*Session
	written   map[string][32]byte // content hash of the last write per file
	watcher   *Watcher
	closed    bool
}

// OpenJSON loads (or initializes) a JSON store rooted at dir.
func OpenJSON(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	s := &JSONStore{
		dir:       dir,
		contracts: make(map[string]*contract.Contract),
		users:     make(map[string]*User),
		sessions:  make(map[string]*Session),
		written:   make(map[string][32]byte),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{contractsFile, usersFile, sessionsFile} {
		if _, err := s.loadLocked(name); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	logging.Store("json store opened at %s (%d contracts, %d users)", dir, len(s.contracts), len(s.users))
	return s, nil
}

// Dir returns the data directory.
func (s *JSONStore) Dir() string {
	return s.dir
}

// Watch starts reloading files that are changed by other processes.
func (s *JSONStore) Watch(ctx context.Context) error {
	w, err := NewWatcher(s)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Close stops the watcher. Data is already on disk.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.closed = true
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

// =============================================================================
// FILE I/O
// =============================================================================

// loadLocked reads name from disk and replaces the matching collection.
// It reports false when the bytes match the last write (our own change).
// Caller must hold the write lock.
func (s *JSONStore) loadLocked(name string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)
	if prev, ok := s.written[name]; ok && prev == sum {
		return false, nil
	}
	if len(data) == 0 {
		logging.StoreWarn("%s is empty, keeping in-memory data", name)
		return false, nil
	}
	if !json.Valid(data) {
		return false, fmt.Errorf("%s is not valid JSON", name)
	}

	switch name {
	case contractsFile:
		var doc contractsDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, err
		}
		m := make(map[string]*contract.Contract, len(doc.Contracts))
		for _, c := range doc.Contracts {
			if c != nil && c.ID != "" {
				m[c.ID] = c
			}
		}
		s.contracts = m
	case usersFile:
		var doc usersDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, err
		}
		m := make(map[string]*User, len(doc.Users))
		for _, u := range doc.Users {
			if u != nil && u.ID != "" {
				m[u.ID] = u
			}
		}
		s.users = m
	case sessionsFile:
		var doc sessionsDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, err
		}
		m := make(map[string]*Session, len(doc.Sessions))
		for _, sess := range doc.Sessions {
			if sess != nil && sess.Token != "" {
				m[sess.Token] = sess
			}
		}
		s.sessions = m
	default:
		return false, fmt.Errorf("unknown data file %s", name)
	}
	s.written[name] = sum
	return true, nil
}

// reload is called by the watcher when name changed on disk.
func (s *JSONStore) reload(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	changed, err := s.loadLocked(name)
	if err != nil {
		logging.StoreWarn("reload %s failed, keeping in-memory data: %v", name, err)
		return err
	}
	if changed {
		logging.Store("reloaded %s after external change", name)
	}
	return nil
}

// writeLocked atomically replaces name with v. Caller must hold the write lock.
func (s *JSONStore) writeLocked(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	// The watcher reloads under s.mu, so it sees this hash before the event.
	s.written[name] = sha256.Sum256(data)
	logging.StoreDebug("wrote %s (%d bytes)", name, len(data))
	return nil
}

func (s *JSONStore) flushContractsLocked() error {
	list := make([]*contract.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return s.writeLocked(contractsFile, contractsDoc{Version: fileFormatVersion, Contracts: list})
}

func (s *JSONStore) flushUsersLocked() error {
	list := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return s.writeLocked(usersFile, usersDoc{Version: fileFormatVersion, Users: list})
}

func (s *JSONStore) flushSessionsLocked() error {
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Token < list[j].Token })
	return s.writeLocked(sessionsFile, sessionsDoc{Version: fileFormatVersion, Sessions: list})
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *JSONStore) CreateContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.contracts[c.ID]; exists {
		return fmt.Errorf("contract %s: %w", c.ID, ErrDuplicate)
	}
	for _, other := range s.contracts {
		if c.ShareToken != "" && other.ShareToken == c.ShareToken {
			return fmt.Errorf("share token: %w", ErrDuplicate)
		}
	}
	s.contracts[c.ID] = c.Clone()
	if err := s.flushContractsLocked(); err != nil {
		delete(s.contracts, c.ID)
		return err
	}
	return nil
}

func (s *JSONStore) GetContract(ctx context.Context, id string) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *JSONStore) GetContractByShareToken(ctx context.Context, token string) (*contract.Contract, error) {
	if token == "" {
		return nil, fmt.Errorf("share token: %w", ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contracts {
		if c.ShareToken == token {
			return c.Clone(), nil
		}
	}
	return nil, fmt.Errorf("share token: %w", ErrNotFound)
}

func (s *JSONStore) ListContracts(ctx context.Context, f ContractFilter) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contract.Contract, 0)
	for _, c := range s.contracts {
		if f.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sortContracts(out)
	return out, nil
}

func (s *JSONStore) UpdateContract(ctx context.Context, id string, fn UpdateFunc) (*contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	current, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	s.contracts[id] = next
	if err := s.flushContractsLocked(); err != nil {
		s.contracts[id] = current
		return nil, err
	}
	return next.Clone(), nil
}

// =============================================================================
// USERS
// =============================================================================

func (s *JSONStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	email := NormalizeEmail(u.Email)
	for _, other := range s.users {
		if other.ID == u.ID || NormalizeEmail(other.Email) == email {
			return fmt.Errorf("user %s: %w", email, ErrDuplicate)
		}
	}
	cp := cloneUser(u)
	cp.Email = email
	s.users[u.ID] = cp
	if err := s.flushUsersLocked(); err != nil {
		delete(s.users, u.ID)
		return err
	}
	return nil
}

func (s *JSONStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *JSONStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if NormalizeEmail(u.Email) == email {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (s *JSONStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *JSONStore) SaveSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.sessions[sess.Token]
	s.sessions[sess.Token] = cloneSession(sess)
	if err := s.flushSessionsLocked(); err != nil {
		if had {
			s.sessions[sess.Token] = prev
		} else {
			delete(s.sessions, sess.Token)
		}
		return err
	}
	return nil
}

func (s *JSONStore) GetSession(ctx context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return cloneSession(sess), nil
}

func (s *JSONStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, ok := s.sessions[token]
	if !ok {
		return nil
	}
	delete(s.sessions, token)
	if err := s.flushSessionsLocked(); err != nil {
		s.sessions[token] = prev
		return err
	}
	return nil
}

func (s *JSONStore) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	expired := make(map[string]*Session)
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			expired[token] = sess
			delete(s.sessions, token)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.flushSessionsLocked(); err != nil {
		for token, sess := range expired {
			s.sessions[token] = sess
		}
		return 0, err
	}
	return len(expired), nil
}
