package session

import (
	"net/http"

	"github.com/edubridge/ltibridge/internal/principal"
)

// authorizationParam names the query and form fields carrying the
// bearer value. The header equivalent is the standard Authorization
// header.
const authorizationParam = "authorization"

// FromRequest extracts the authorization value from the request: the
// Authorization header, then the query string, then the form body. The
// first non-absent location wins; an empty value is not distinguishable
// from an absent one.
func FromRequest(r *http.Request) (string, bool) {
	if v := r.Header.Get("Authorization"); v != "" {
		return v, true
	}
	if v := r.URL.Query().Get(authorizationParam); v != "" {
		return v, true
	}
	if v := r.PostFormValue(authorizationParam); v != "" {
		return v, true
	}
	return "", false
}

// DecodeRequest recovers the Principal from any of the three transport
// locations. Absence in all of them is ErrMissingSessionToken, distinct
// from an invalid value.
func (c *Codec) DecodeRequest(r *http.Request) (principal.Principal, error) {
	value, ok := FromRequest(r)
	if !ok {
		return principal.Principal{}, ErrMissingSessionToken
	}
	return c.Decode(value)
}
