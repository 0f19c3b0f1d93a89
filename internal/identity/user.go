// Package identity describes the end user on whose behalf remote feed calls
// are made.
package identity

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoIdentity is returned by Validate when neither an email nor an external
// id is present.
var ErrNoIdentity = errors.New("identity: email or external id is required")

// User is the resolved end-user context. Email and ExternalID identify the
// user; HMAC authenticates them when the project enforces HMAC validation.
type User struct {
	Email      string `yaml:"email" json:"email,omitempty"`
	ExternalID string `yaml:"external_id" json:"external_id,omitempty"`
	HMAC       string `yaml:"hmac" json:"-"`
}

// Email returns a User identified by email only.
func Email(email string) User {
	return User{Email: email}
}

// EmailHMAC returns a User identified by email and authenticated by hmac.
func EmailHMAC(email, hmac string) User {
	return User{Email: email, HMAC: hmac}
}

// ExternalID returns a User identified by external id only.
func ExternalID(externalID string) User {
	return User{ExternalID: externalID}
}

// ExternalIDHMAC returns a User identified by external id and authenticated
// by hmac.
func ExternalIDHMAC(externalID, hmac string) User {
	return User{ExternalID: externalID, HMAC: hmac}
}

// EmailExternalID returns a User carrying both identifiers.
func EmailExternalID(email, externalID string) User {
	return User{Email: email, ExternalID: externalID}
}

// Full returns a User carrying both identifiers and an hmac.
func Full(email, externalID, hmac string) User {
	return User{Email: email, ExternalID: externalID, HMAC: hmac}
}

// Key returns a stable key for the user, built from the quoted identifiers so
// distinct users never share a key. The hmac is not part of the key: the same
// person authenticated twice maps to the same key.
func (u User) Key() string {
	parts := make([]string, 0, 2)
	if u.Email != "" {
		parts = append(parts, "email="+strconv.Quote(u.Email))
	}
	if u.ExternalID != "" {
		parts = append(parts, "external_id="+strconv.Quote(u.ExternalID))
	}
	return strings.Join(parts, ",")
}

// Validate reports whether u carries enough information to be sent upstream.
func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" && strings.TrimSpace(u.ExternalID) == "" {
		return ErrNoIdentity
	}
	return nil
}

// Headers returns the user identification headers expected by the remote API.
// Empty fields are omitted.
func (u User) Headers() map[string]string {
	h := make(map[string]string, 3)
	if u.Email != "" {
		h["X-MAGICBELL-USER-EMAIL"] = u.Email
	}
	if u.ExternalID != "" {
		h["X-MAGICBELL-USER-EXTERNAL-ID"] = u.ExternalID
	}
	if u.HMAC != "" {
		h["X-MAGICBELL-USER-HMAC"] = u.HMAC
	}
	return h
}
