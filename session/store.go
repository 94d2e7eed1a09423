package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerops/ledgergate/credential"
)

// UnknownUsername is returned by CurrentUsername when no identity is held.
const UnknownUsername = "unknown user"

// Keys names the two durable storage entries a Store owns.
type Keys struct {
	Credential string
	Identity   string
}

// DefaultKeys matches the entries the web frontend has always used.
var DefaultKeys = Keys{Credential: "token", Identity: "userInfo"}

// Option customizes a Store.
type Option func(*Store)

// WithKeys overrides the storage keys. Empty fields keep their defaults.
func WithKeys(k Keys) Option {
	return func(s *Store) {
		if k.Credential != "" {
			s.keys.Credential = k.Credential
		}
		if k.Identity != "" {
			s.keys.Identity = k.Identity
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDiscardExpired makes Restore drop a persisted JWT credential whose exp
// claim has passed (allowing leeway).
func WithDiscardExpired(leeway time.Duration) Option {
	return func(s *Store) {
		s.discardExpired = true
		s.expiryLeeway = leeway
	}
}

// WithClock overrides the time source used by Restore.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store holds the live session and mirrors every mutation to [Storage].
//
// Mutators are serialized with their persistence write, so concurrent callers
// always observe credential and identity changing together. Queries take a
// read lock and never touch storage.
type Store struct {
	storage        Storage
	keys           Keys
	logger         *slog.Logger
	now            func() time.Time
	discardExpired bool
	expiryLeeway   time.Duration

	mu          sync.RWMutex
	credential  string
	identity    Identity
	hasIdentity bool
	generation  uint64
}

// NewStore creates an empty Store backed by storage. A nil storage falls back
// to a fresh [MemoryStorage].
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage: storage,
		keys:    DefaultKeys,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted session once at startup. Absent or corrupt
// entries leave the Store empty; only storage I/O failures return an error.
func (s *Store) Restore(ctx context.Context) error {
	cred, hasCred, err := s.storage.GetItem(ctx, s.keys.Credential)
	if err != nil {
		return storageErr(err)
	}
	raw, hasRaw, err := s.storage.GetItem(ctx, s.keys.Identity)
	if err != nil {
		return storageErr(err)
	}

	var (
		ident       Identity
		hasIdentity bool
	)
	if hasRaw {
		decoded, decErr := DecodeIdentity([]byte(raw))
		switch {
		case decErr != nil:
			s.logger.Warn("discarding corrupt persisted identity", slog.String("error", decErr.Error()))
		case !decoded.IsZero():
			ident, hasIdentity = decoded, true
		}
	}

	if !hasCred || cred == "" {
		cred = ""
	} else {
		claims, inspectErr := credential.Inspect(cred)
		if inspectErr == nil && s.discardExpired && claims.Expired(s.now(), s.expiryLeeway) {
			s.logger.Info("persisted credential expired, starting signed out",
				slog.Time("expires_at", claims.ExpiresAt))
			return s.removePersisted(ctx)
		}
		if !hasIdentity {
			if inspectErr != nil || claims.Subject == "" {
				s.logger.Warn("persisted credential has no identity, starting signed out")
				return s.removePersisted(ctx)
			}
			ident = Identity{
				ID:       claims.Subject,
				Username: claims.Username,
				Role:     Role(claims.Role),
			}
			hasIdentity = true
			if err := s.persistIdentity(ctx, ident); err != nil {
				s.logger.Error("persist rebuilt identity", slog.String("error", err.Error()))
			}
		}
	}

	s.mu.Lock()
	s.credential = cred
	s.identity = ident
	s.hasIdentity = hasIdentity
	if cred != "" {
		s.generation++
	}
	s.mu.Unlock()

	return nil
}

// Login installs a new session. Inputs are trusted as given.
func (s *Store) Login(ctx context.Context, cred string, ident Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credential = cred
	s.identity = ident.clone()
	s.hasIdentity = true
	s.generation++

	var errs []error
	if err := s.storage.SetItem(ctx, s.keys.Credential, cred); err != nil {
		errs = append(errs, storageErr(err))
	}
	if err := s.persistIdentity(ctx, ident); err != nil {
		errs = append(errs, err)
	}
	return s.logged("persist login", errors.Join(errs...))
}

// UpdateIdentity shallow-merges patch into the identity and persists it.
// The credential is untouched; calling this while signed out is allowed and
// yields a partial identity with no credential.
func (s *Store) UpdateIdentity(ctx context.Context, patch IdentityPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = s.identity.Merge(patch)
	s.hasIdentity = true

	return s.logged("persist identity", s.persistIdentity(ctx, s.identity))
}

// Logout clears the session and its persisted entries. It reports whether a
// session was actually ended; calling it again is harmless.
func (s *Store) Logout(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := s.credential != "" || s.hasIdentity
	s.clearLocked()
	return ended, s.logged("remove session", s.removePersisted(ctx))
}

// Invalidate ends the session only if it is still the one identified by
// generation. It is how a rejected call ends the session it was sent with
// without disturbing a newer login.
func (s *Store) Invalidate(ctx context.Context, generation uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == "" || s.generation != generation {
		return false, nil
	}
	s.clearLocked()
	return true, s.logged("remove session", s.removePersisted(ctx))
}

// Credential returns the current credential and the session generation it
// belongs to. An empty credential means signed out.
func (s *Store) Credential() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential, s.generation
}

// Snapshot returns a consistent copy of the whole session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Credential:  s.credential,
		Identity:    s.identity.clone(),
		HasIdentity: s.hasIdentity,
		Generation:  s.generation,
	}
}

// Identity returns the current identity and whether one is held.
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.clone(), s.hasIdentity
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential != ""
}

// CurrentRole returns the identity's role, defaulting to [RoleUser].
func (s *Store) CurrentRole() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Role.Normalize()
}

func (s *Store) IsAdmin() bool {
	return s.CurrentRole() == RoleAdmin
}

func (s *Store) IsPowerUser() bool {
	return s.CurrentRole() == RolePowerUser
}

// CurrentUserID returns the identity id or "" when absent.
func (s *Store) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.ID
}

// CurrentUsername returns the username or [UnknownUsername] when absent.
func (s *Store) CurrentUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity.Username == "" {
		return UnknownUsername
	}
	return s.identity.Username
}

func (s *Store) clearLocked() {
	wasActive := s.credential != ""
	s.credential = ""
	s.identity = Identity{}
	s.hasIdentity = false
	if wasActive {
		s.generation++
	}
}

func (s *Store) persistIdentity(ctx context.Context, ident Identity) error {
	data, err := EncodeIdentity(ident)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.storage.SetItem(ctx, s.keys.Identity, string(data)); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) removePersisted(ctx context.Context) error {
	var errs []error
	if err := s.storage.RemoveItem(ctx, s.keys.Credential); err != nil {
		errs = append(errs, storageErr(err))
	}
	if err := s.storage.RemoveItem(ctx, s.keys.Identity); err != nil {
		errs = append(errs, storageErr(err))
	}
	return errors.Join(errs...)
}

func (s *Store) logged(op string, err error) error {
	if err != nil {
		s.logger.Error(op, slog.String("error", err.Error()))
	}
	return err
}

func storageErr(err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
