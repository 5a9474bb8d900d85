package store

import (
	"errors"
	"fmt"
)

// Failures reported by the authentication endpoint.
var (
	// ErrInvalidCredentials means the identifier/secret pair was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthCodeRequired means the account needs a second factor; callers
	// should resubmit with the code appended.
	ErrAuthCodeRequired = errors.New("two-factor authentication code required")
	// ErrAccountLocked means the vendor has locked the account.
	ErrAccountLocked = errors.New("account locked")
)

// Store failures (license/purchase endpoints).
var (
	// ErrLicenseRequired means the item is not owned by the account. Callers
	// decide between the purchase flow and a storefront redirect; the client
	// never swallows this.
	ErrLicenseRequired = errors.New("license not found for item")
	// ErrItemNotFound means the store has no salable item for the identifier.
	ErrItemNotFound = errors.New("item not found")
	// ErrAccountInvalid means the account's session material was rejected and
	// must be refreshed or re-authenticated.
	ErrAccountInvalid = errors.New("account session invalid")
)

// failureType values observed on the finance endpoints.
const (
	failureTypeInvalidCredentials     = "-5000"
	failureTypePasswordTokenExpired   = "2034"
	failureTypeTemporarilyUnavailable = "2059"
	failureTypeLicenseNotFound        = "9610"
)

// customerMessage values that need special classification.
const (
	customerMessageBadLogin = "MZFinance.BadLogin.Configurator_message"
	customerMessageLocked   = "MZFinance.BadLogin.Lockout_message"
)

// ProtocolError carries an unclassified failureType/customerMessage pair from
// the store so callers can log the vendor's own wording.
type ProtocolError struct {
	FailureType     string
	CustomerMessage string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.CustomerMessage != "" && e.FailureType != "":
		return fmt.Sprintf("store error %s: %s", e.FailureType, e.CustomerMessage)
	case e.CustomerMessage != "":
		return "store error: " + e.CustomerMessage
	case e.FailureType != "":
		return "store error " + e.FailureType
	default:
		return "store error"
	}
}

// classifyFailure maps a failureType/customerMessage pair to the error
// taxonomy. Returns nil when the pair indicates success.
func classifyFailure(failureType, customerMessage string) error {
	if failureType == "" && customerMessage == "" {
		return nil
	}
	switch failureType {
	case failureTypeInvalidCredentials:
		return ErrInvalidCredentials
	case failureTypePasswordTokenExpired:
		return ErrAccountInvalid
	case failureTypeLicenseNotFound:
		return ErrLicenseRequired
	}
	switch customerMessage {
	case customerMessageLocked:
		return ErrAccountLocked
	}
	return &ProtocolError{FailureType: failureType, CustomerMessage: customerMessage}
}
