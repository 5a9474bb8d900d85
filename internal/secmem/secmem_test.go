package secmem

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func TestRevealRoundTrip(t *testing.T) {
	pw := NewSecureString("account-password")
	if got := pw.Reveal(); got != "account-password" {
		t.Fatalf("Reveal() = %q, want %q", got, "account-password")
	}
}

func TestNilReceiverIsInert(t *testing.T) {
	var pw *SecureString
	if got := pw.Reveal(); got != "" {
		t.Fatalf("nil Reveal() = %q, want empty", got)
	}
	if pw.IsZeroed() {
		t.Fatal("nil IsZeroed() = true, want false")
	}
	pw.Zero()
}

func TestZeroWipesAndReports(t *testing.T) {
	pw := NewSecureString("account-password")
	if pw.IsZeroed() {
		t.Fatal("IsZeroed() = true before Zero()")
	}

	pw.Zero()

	if !pw.IsZeroed() {
		t.Fatal("IsZeroed() = false after Zero()")
	}
	if got := pw.Reveal(); got != "" {
		t.Fatalf("Reveal() after Zero() = %q, want empty", got)
	}
	pw.mu.Lock()
	data := pw.data
	pw.mu.Unlock()
	if data != nil {
		t.Fatalf("backing slice survived Zero(): %v", data)
	}
}

func TestEveryRenderingPathRedacts(t *testing.T) {
	pw := NewSecureString("account-password")

	for _, format := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
		if got := fmt.Sprintf(format, pw); got != "[REDACTED]" {
			t.Errorf("Sprintf(%q) = %q, want [REDACTED]", format, got)
		}
	}
	if got := pw.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", got)
	}
	if got := pw.GoString(); got != "[REDACTED]" {
		t.Errorf("GoString() = %q, want [REDACTED]", got)
	}

	data, err := json.Marshal(pw)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON = %s, want \"[REDACTED]\"", data)
	}

	text, err := pw.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "[REDACTED]" {
		t.Errorf("MarshalText = %q, want [REDACTED]", text)
	}
}

func TestCredentialsNeverLeakThroughStructEncoding(t *testing.T) {
	login := struct {
		Email    string        `json:"email"`
		Password *SecureString `json:"password"`
	}{
		Email:    "user@example.com",
		Password: NewSecureString("account-password"),
	}

	data, err := json.Marshal(login)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if parsed["password"] != "[REDACTED]" {
		t.Fatalf("password in JSON = %v, want [REDACTED]", parsed["password"])
	}
	if parsed["email"] != "user@example.com" {
		t.Fatalf("email in JSON = %v, want user@example.com", parsed["email"])
	}
}

func TestUnmarshalIntoSecureStringRejected(t *testing.T) {
	var pw SecureString
	if err := json.Unmarshal([]byte(`"injected"`), &pw); err == nil {
		t.Fatal("UnmarshalJSON accepted untrusted input")
	}
}

func TestConcurrentRevealAndZero(t *testing.T) {
	pw := NewSecureString("account-password")
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pw.Reveal()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		pw.Zero()
	}()
	wg.Wait()

	if got := pw.Reveal(); got != "" {
		t.Fatalf("Reveal() after concurrent Zero = %q, want empty", got)
	}
}

func TestPostZeroRevealWarnsOnce(t *testing.T) {
	pw := NewSecureString("account-password")
	_ = pw.Reveal()
	if pw.warnedOnce.Load() {
		t.Fatal("warnedOnce set while token still alive")
	}

	pw.Zero()
	_ = pw.Reveal()
	if !pw.warnedOnce.Load() {
		t.Fatal("warnedOnce not set on first Reveal after Zero")
	}
	_ = pw.Reveal()
	if !pw.warnedOnce.Load() {
		t.Fatal("warnedOnce cleared by a later Reveal")
	}
}
