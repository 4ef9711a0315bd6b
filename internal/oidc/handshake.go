// Package oidc implements the tool side of the third-party-initiated
// login flow: the platform opens our initiation endpoint, we resolve the
// trusted registration for the claimed issuer and bounce the browser to
// the platform's authentication endpoint.
package oidc

import (
	"context"
	"encoding/hex"
	"net/url"

	"github.com/google/uuid"
)

// LoginRequest carries the login-initiation parameters, arriving by
// query or form. ClientID is optional; the rest are required at the
// HTTP boundary.
type LoginRequest struct {
	Issuer         string
	ClientID       string
	TargetLinkURI  string
	LoginHint      string
	LTIMessageHint string
}

// Handshake resolves registrations and builds authentication-request
// redirects.
type Handshake struct {
	registrations RegistrationStore

	// newID mints state and nonce values; overridable for tests.
	newID func() string
}

func NewHandshake(registrations RegistrationStore) *Handshake {
	return &Handshake{registrations: registrations, newID: randomID}
}

// NewHandshakeWithIDSource is NewHandshake with an explicit state/nonce
// source.
func NewHandshakeWithIDSource(registrations RegistrationStore, newID func() string) *Handshake {
	return &Handshake{registrations: registrations, newID: newID}
}

func randomID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Resolve looks up the trusted registration for the claimed issuer and
// optional client id. A miss is terminal for the handshake and surfaces
// as *RegistrationNotFoundError.
func (h *Handshake) Resolve(ctx context.Context, issuer, clientID string) (Registration, error) {
	return h.registrations.Get(ctx, issuer, clientID)
}

// BuildRedirect constructs the authentication request sent back to the
// platform's auth endpoint. The protocol parameters are fixed by the
// LTI security spec; login_hint and lti_message_hint pass through
// untouched. The client_id is always the registration's own; the
// request-supplied one may be absent or different and is deliberately
// ignored here. state and nonce are freshly generated per call and are
// NOT stored: verifying them on the way back belongs to the launch
// callback, outside this package.
func (h *Handshake) BuildRedirect(reg Registration, req LoginRequest) string {
	q := url.Values{}
	q.Set("scope", "openid")
	q.Set("response_type", "id_token")
	q.Set("response_mode", "form_post")
	q.Set("prompt", "none")
	q.Set("login_hint", req.LoginHint)
	q.Set("lti_message_hint", req.LTIMessageHint)
	q.Set("client_id", reg.ClientID)
	q.Set("state", h.newID())
	q.Set("nonce", h.newID())
	q.Set("redirect_uri", req.TargetLinkURI)
	return reg.AuthLoginURL + "?" + q.Encode()
}
