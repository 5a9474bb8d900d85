// Package session holds authenticated store accounts: it performs the sign-in
// round trip through an Authenticator, persists credentials in the system
// keyring, and tracks which account is currently selected.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"

	"github.com/appflight/appflight/internal/logging"
)

var log = logging.L("session")

const indexKey = "accounts"

// ErrReauthRequired is returned by Refresh when the persisted session
// material is no longer accepted and the caller must sign in again. The
// store never removes the account on its own; that decision belongs to the
// caller.
var ErrReauthRequired = errors.New("session expired, re-authentication required")

// ErrNoAccount is returned when an operation needs a selected account and
// none exists.
var ErrNoAccount = errors.New("no account selected")

// Authenticator performs the store sign-in protocol. Implemented by the
// store protocol client.
type Authenticator interface {
	// SignIn performs one authentication round trip. authCode may be empty;
	// the implementation returns store.ErrAuthCodeRequired when the account
	// needs a second factor.
	SignIn(ctx context.Context, email, password, authCode string) (Account, error)
	// ValidateSession re-validates an account's token and cookies, returning
	// refreshed session material on success.
	ValidateSession(ctx context.Context, acct Account) (Account, error)
}

// index is the persisted account ordering and selection.
type index struct {
	Emails  []string `json:"emails"`
	Current int      `json:"current"`
}

// Store owns all Account values. All mutation happens under one mutex; the
// accessors hand out copies, never pointers into internal state.
type Store struct {
	auth Authenticator
	ring keyring.Keyring

	mu       sync.Mutex
	accounts []Account
	current  int
}

// NewStore loads persisted accounts from the ring. A corrupt or empty ring
// yields an empty store, not an error.
func NewStore(auth Authenticator, ring keyring.Keyring) *Store {
	s := &Store{auth: auth, ring: ring, current: -1}
	s.load()
	return s
}

// Authenticate signs in, persists the account, and makes it the current
// selection. Re-authenticating an existing email replaces the stored record.
func (s *Store) Authenticate(ctx context.Context, email, password, authCode string) (Account, error) {
	acct, err := s.auth.SignIn(ctx, email, password, authCode)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(acct); err != nil {
		return Account{}, fmt.Errorf("persist account: %w", err)
	}

	pos := s.find(acct.Email)
	if pos < 0 {
		s.accounts = append(s.accounts, acct)
		pos = len(s.accounts) - 1
	} else {
		s.accounts[pos] = acct
	}
	s.current = pos
	s.persistIndex()

	log.Info("account authenticated", "account", acct.Email, "region", acct.Region)
	return acct, nil
}

// Refresh re-validates an account's session material. On success the new
// Account replaces the stored one. On rejection it returns ErrReauthRequired
// and leaves the stored record in place.
func (s *Store) Refresh(ctx context.Context, acct Account) (Account, error) {
	fresh, err := s.auth.ValidateSession(ctx, acct)
	if err != nil {
		if errors.Is(err, ErrReauthRequired) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("validate session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pos := s.find(fresh.Email); pos >= 0 {
		s.accounts[pos] = fresh
	}
	if err := s.persist(fresh); err != nil {
		return Account{}, fmt.Errorf("persist refreshed account: %w", err)
	}
	return fresh, nil
}

// Accounts returns a snapshot of all stored accounts.
func (s *Store) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Current returns the selected account.
func (s *Store) Current() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.accounts) {
		return Account{}, false
	}
	return s.accounts[s.current], true
}

// Select makes the account at the given position current.
func (s *Store) Select(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.accounts) {
		return fmt.Errorf("account index %d out of range (have %d)", pos, len(s.accounts))
	}
	s.current = pos
	s.persistIndex()
	return nil
}

// Remove deletes the account with the given email from the store and ring.
func (s *Store) Remove(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.find(email)
	if pos < 0 {
		return fmt.Errorf("no account %q", email)
	}

	if err := s.ring.Remove(accountKey(email)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove account from keyring: %w", err)
	}

	s.accounts = append(s.accounts[:pos], s.accounts[pos+1:]...)
	switch {
	case len(s.accounts) == 0:
		s.current = -1
	case s.current >= len(s.accounts):
		s.current = len(s.accounts) - 1
	case s.current > pos:
		s.current--
	}
	s.persistIndex()

	log.Info("account removed", "account", email)
	return nil
}

func (s *Store) find(email string) int {
	for i, a := range s.accounts {
		if a.Email == email {
			return i
		}
	}
	return -1
}

func accountKey(email string) string {
	return "account:" + email
}

func (s *Store) persist(acct Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	return s.ring.Set(keyring.Item{
		Key:         accountKey(acct.Email),
		Data:        data,
		Label:       "appflight account " + acct.Email,
		Description: "store account credentials",
	})
}

func (s *Store) persistIndex() {
	idx := index{Current: s.current}
	for _, a := range s.accounts {
		idx.Emails = append(idx.Emails, a.Email)
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return
	}
	if err := s.ring.Set(keyring.Item{Key: indexKey, Data: data}); err != nil {
		log.Warn("persist account index failed", "error", err)
	}
}

// load restores accounts from the ring. Missing or unreadable records are
// skipped so one bad entry cannot hide the rest.
func (s *Store) load() {
	item, err := s.ring.Get(indexKey)
	if err != nil {
		return
	}
	var idx index
	if err := json.Unmarshal(item.Data, &idx); err != nil {
		log.Warn("account index unreadable, starting empty", "error", err)
		return
	}

	for _, email := range idx.Emails {
		rec, err := s.ring.Get(accountKey(email))
		if err != nil {
			log.Warn("stored account missing from keyring", "account", email)
			continue
		}
		var acct Account
		if err := json.Unmarshal(rec.Data, &acct); err != nil {
			log.Warn("stored account unreadable", "account", email, "error", err)
			continue
		}
		s.accounts = append(s.accounts, acct)
	}

	if idx.Current >= 0 && idx.Current < len(s.accounts) {
		s.current = idx.Current
	} else if len(s.accounts) > 0 {
		s.current = 0
	}
}
