package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/storefront"
)

// authResponse is the plist body of the authenticate endpoint. Success
// carries accountInfo + passwordToken; failure carries the
// failureType/customerMessage pair.
type authResponse struct {
	FailureType     string `plist:"failureType"`
	CustomerMessage string `plist:"customerMessage"`
	PasswordToken   string `plist:"passwordToken"`
	DSPersonID      string `plist:"dsPersonId"`
	AccountInfo     struct {
		AppleID string `plist:"appleId"`
		Address struct {
			FirstName string `plist:"firstName"`
			LastName  string `plist:"lastName"`
		} `plist:"address"`
	} `plist:"accountInfo"`
}

// SignIn performs one authentication round trip. authCode may be empty; the
// store answers with a bad-login customerMessage when the account wants a
// second factor, which is mapped to ErrAuthCodeRequired so the caller can
// resubmit with the code.
func (c *Client) SignIn(ctx context.Context, email, password, authCode string) (session.Account, error) {
	body := map[string]any{
		"appleId":       email,
		"password":      password + authCode,
		"guid":          c.guid,
		"attempt":       "1",
		"createSession": "true",
		"rmp":           "0",
		"why":           "signIn",
	}

	var resp authResponse
	cookies, err := c.postPlist(ctx, c.guidURL(c.endpoints.Auth), nil, body, &resp)
	if err != nil {
		return session.Account{}, fmt.Errorf("authenticate: %w", err)
	}

	if err := classifyAuth(resp, authCode); err != nil {
		return session.Account{}, err
	}

	sfID, _ := storefront.ID(c.region)
	acct := session.Account{
		Email:         resp.AccountInfo.AppleID,
		FirstName:     resp.AccountInfo.Address.FirstName,
		LastName:      resp.AccountInfo.Address.LastName,
		PasswordToken: resp.PasswordToken,
		DSID:          resp.DSPersonID,
		PersonID:      resp.DSPersonID,
		Region:        c.region,
		StorefrontID:  sfID,
		Cookies:       session.FromHTTPCookies(cookies),
	}
	if acct.Email == "" {
		acct.Email = email
	}

	log.Info("sign-in succeeded", "account", acct.Email)
	return acct, nil
}

// ValidateSession re-plays the authenticate exchange with the stored password
// token. An expired-token failure maps to session.ErrReauthRequired; success
// yields a fresh Account with rotated session material.
func (c *Client) ValidateSession(ctx context.Context, acct session.Account) (session.Account, error) {
	body := map[string]any{
		"appleId":       acct.Email,
		"password":      acct.PasswordToken,
		"guid":          c.guid,
		"attempt":       "1",
		"createSession": "true",
		"rmp":           "0",
		"why":           "tokenValidate",
	}

	var resp authResponse
	cookies, err := c.postPlist(ctx, c.guidURL(c.endpoints.Auth), &acct, body, &resp)
	if err != nil {
		return session.Account{}, fmt.Errorf("validate session: %w", err)
	}

	ferr := classifyFailure(resp.FailureType, resp.CustomerMessage)
	switch {
	case ferr == nil:
	case errors.Is(ferr, ErrAccountInvalid) || errors.Is(ferr, ErrInvalidCredentials):
		return session.Account{}, session.ErrReauthRequired
	default:
		return session.Account{}, ferr
	}
	if resp.PasswordToken == "" {
		return session.Account{}, session.ErrReauthRequired
	}

	fresh := acct
	fresh.PasswordToken = resp.PasswordToken
	if resp.DSPersonID != "" {
		fresh.DSID = resp.DSPersonID
		fresh.PersonID = resp.DSPersonID
	}
	if len(cookies) > 0 {
		fresh.Cookies = session.FromHTTPCookies(cookies)
	}
	return fresh, nil
}

// classifyAuth maps an authenticate response to the auth error taxonomy.
func classifyAuth(resp authResponse, authCode string) error {
	if resp.FailureType == "" && resp.CustomerMessage == customerMessageBadLogin {
		// The store answers identically for "wrong password" and "needs a
		// second factor" when no code was supplied; an empty code means the
		// caller has not been asked yet.
		if authCode == "" {
			return ErrAuthCodeRequired
		}
		return ErrInvalidCredentials
	}
	if err := classifyFailure(resp.FailureType, resp.CustomerMessage); err != nil {
		return err
	}
	if resp.PasswordToken == "" {
		return &ProtocolError{CustomerMessage: "authenticate response missing password token"}
	}
	return nil
}
