package session

import (
	"net/http"
	"time"
)

// Account is an authenticated store identity. Values are immutable once
// authenticated: refreshing session material produces a new Account, never an
// in-place mutation.
type Account struct {
	Email         string   `json:"email"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	PasswordToken string   `json:"passwordToken"`
	DSID          string   `json:"dsid"`
	PersonID      string   `json:"personId"`
	Region        string   `json:"region"`
	StorefrontID  string   `json:"storefrontId"`
	Cookies       []Cookie `json:"cookies"`
}

// Cookie is the serializable subset of http.Cookie persisted with an account.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
}

// Name returns a display name for the account.
func (a Account) Name() string {
	switch {
	case a.FirstName == "" && a.LastName == "":
		return a.Email
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}

// HTTPCookies converts the persisted cookies back to http.Cookie values.
func (a Account) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(a.Cookies))
	for _, c := range a.Cookies {
		out = append(out, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
			Secure:  c.Secure,
		})
	}
	return out
}

// FromHTTPCookies converts http cookies into the persisted representation.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
			Secure:  c.Secure,
		})
	}
	return out
}
