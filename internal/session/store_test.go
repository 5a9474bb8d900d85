package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/99designs/keyring"
)

type fakeAuth struct {
	signInErr error
	refreshed Account
	validated bool
}

func (f *fakeAuth) SignIn(_ context.Context, email, password, authCode string) (Account, error) {
	if f.signInErr != nil {
		return Account{}, f.signInErr
	}
	return Account{
		Email:         email,
		FirstName:     "Test",
		LastName:      "User",
		PasswordToken: "token-" + password,
		DSID:          "12345",
		PersonID:      "12345",
		Region:        "US",
		StorefrontID:  "143441",
	}, nil
}

func (f *fakeAuth) ValidateSession(_ context.Context, acct Account) (Account, error) {
	f.validated = true
	if f.refreshed.Email != "" {
		return f.refreshed, nil
	}
	return Account{}, ErrReauthRequired
}

func newTestStore(t *testing.T) (*Store, keyring.Keyring, *fakeAuth) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	auth := &fakeAuth{}
	return NewStore(auth, ring), ring, auth
}

func TestAuthenticatePersistsAndSelects(t *testing.T) {
	store, ring, _ := newTestStore(t)

	acct, err := store.Authenticate(context.Background(), "user@example.com", "secret", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acct.Email != "user@example.com" {
		t.Fatalf("acct.Email = %q", acct.Email)
	}

	cur, ok := store.Current()
	if !ok || cur.Email != acct.Email {
		t.Fatalf("Current() = %+v, %v", cur, ok)
	}

	// A fresh store over the same ring must see the account.
	store2 := NewStore(&fakeAuth{}, ring)
	if got := store2.Accounts(); len(got) != 1 || got[0].Email != acct.Email {
		t.Fatalf("reloaded accounts = %+v", got)
	}
	if cur2, ok := store2.Current(); !ok || cur2.PasswordToken != acct.PasswordToken {
		t.Fatalf("reloaded current = %+v, %v", cur2, ok)
	}
}

func TestAuthenticateFailureDoesNotPersist(t *testing.T) {
	store, _, auth := newTestStore(t)
	auth.signInErr = errors.New("invalid credentials")

	if _, err := store.Authenticate(context.Background(), "user@example.com", "bad", ""); err == nil {
		t.Fatal("expected sign-in error")
	}
	if got := store.Accounts(); len(got) != 0 {
		t.Fatalf("failed auth persisted accounts: %+v", got)
	}
}

func TestReauthenticateReplacesRecord(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Authenticate(ctx, "user@example.com", "first", ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := store.Authenticate(ctx, "user@example.com", "second", ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	accounts := store.Accounts()
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].PasswordToken != "token-second" {
		t.Fatalf("record not replaced: %q", accounts[0].PasswordToken)
	}
}

func TestSelectAndRemove(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		if _, err := store.Authenticate(ctx, email, "pw", ""); err != nil {
			t.Fatalf("Authenticate %s: %v", email, err)
		}
	}

	if err := store.Select(1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	cur, _ := store.Current()
	if cur.Email != "user1@example.com" {
		t.Fatalf("Current = %q", cur.Email)
	}

	if err := store.Select(7); err == nil {
		t.Fatal("Select out of range should fail")
	}

	// Removing an account before the selection shifts it down.
	if err := store.Remove("user0@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	cur, ok := store.Current()
	if !ok || cur.Email != "user1@example.com" {
		t.Fatalf("selection lost after remove: %+v, %v", cur, ok)
	}

	if err := store.Remove("nobody@example.com"); err == nil {
		t.Fatal("Remove of unknown account should fail")
	}
}

func TestRemoveLastAccountClearsSelection(t *testing.T) {
	store, _, _ := newTestStore(t)
	if _, err := store.Authenticate(context.Background(), "user@example.com", "pw", ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := store.Remove("user@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := store.Current(); ok {
		t.Fatal("Current should be empty after removing last account")
	}
}

func TestRefreshSignalsReauth(t *testing.T) {
	store, _, auth := newTestStore(t)
	ctx := context.Background()

	acct, err := store.Authenticate(ctx, "user@example.com", "pw", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if _, err := store.Refresh(ctx, acct); !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("Refresh error = %v, want ErrReauthRequired", err)
	}
	// The account must survive a failed refresh.
	if got := store.Accounts(); len(got) != 1 {
		t.Fatalf("account dropped after failed refresh: %+v", got)
	}

	auth.refreshed = acct
	auth.refreshed.PasswordToken = "token-new"
	fresh, err := store.Refresh(ctx, acct)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh.PasswordToken != "token-new" {
		t.Fatalf("refresh did not return new material: %q", fresh.PasswordToken)
	}
	if got := store.Accounts(); got[0].PasswordToken != "token-new" {
		t.Fatalf("stored record not updated: %q", got[0].PasswordToken)
	}
}
