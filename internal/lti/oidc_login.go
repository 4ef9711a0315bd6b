package lti

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edubridge/ltibridge/internal/oidc"
)

// OIDCLoginHandler accepts the third-party login initiation (GET or
// POST, query or form) and bounces the browser to the platform auth
// endpoint with the fixed authentication-request parameters.
func OIDCLoginHandler(h *oidc.Handshake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		// r.Form merges query and form values after ParseForm.
		req := oidc.LoginRequest{
			Issuer:         r.Form.Get("iss"),
			ClientID:       r.Form.Get("client_id"), // optional
			TargetLinkURI:  r.Form.Get("target_link_uri"),
			LoginHint:      r.Form.Get("login_hint"),
			LTIMessageHint: r.Form.Get("lti_message_hint"),
		}
		for name, v := range map[string]string{
			"iss":              req.Issuer,
			"target_link_uri":  req.TargetLinkURI,
			"login_hint":       req.LoginHint,
			"lti_message_hint": req.LTIMessageHint,
		} {
			if v == "" {
				http.Error(w, "missing required parameter: "+name, http.StatusUnprocessableEntity)
				return
			}
		}

		reg, err := h.Resolve(r.Context(), req.Issuer, req.ClientID)
		if err != nil {
			var notFound *oidc.RegistrationNotFoundError
			if errors.As(err, &notFound) {
				log.Warn().Str("iss", notFound.Issuer).Str("client_id", notFound.ClientID).
					Msg("login initiation for unknown registration")
				http.Error(w, "registration not found", http.StatusForbidden)
				return
			}
			log.Err(err).Msg("registration lookup failed")
			http.Error(w, "registration lookup failed", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, h.BuildRedirect(reg, req), http.StatusFound)
	}
}
