package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	api "github.com/edubridge/ltibridge/internal/api/http"
	"github.com/edubridge/ltibridge/internal/config"
	"github.com/edubridge/ltibridge/internal/db"
	"github.com/edubridge/ltibridge/internal/lti"
	"github.com/edubridge/ltibridge/internal/oidc"
	"github.com/edubridge/ltibridge/internal/secretbox"
	"github.com/edubridge/ltibridge/internal/session"
	"github.com/edubridge/ltibridge/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}

	// --- Identity core ---
	var cipher *secretbox.Cipher
	if key, _ := cfg.AESKey(); key != nil {
		if cipher, err = secretbox.New(key); err != nil {
			log.Fatal().Err(err).Msg("aes key")
		}
	}
	registry := tenant.NewRegistry(tenant.NewSQLStore(dbh, cfg.DBDriver), cipher)
	registrations := oidc.NewSQLStore(dbh, cfg.DBDriver)
	handshake := oidc.NewHandshake(registrations)
	codec := session.NewCodec([]byte(cfg.JWTSecret))

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/lti", func(lr chi.Router) {
		lr.Get("/login", lti.OIDCLoginHandler(handshake))
		lr.Post("/login", lti.OIDCLoginHandler(handshake))
		lr.Post("/launch", lti.LaunchHandler(registry, registrations, codec))
	})

	// Token-protected API: the bearer token minted at launch carries the
	// Principal across otherwise stateless requests.
	r.Group(func(pr chi.Router) {
		pr.Use(session.Middleware(codec))
		pr.Get("/api/me", meHandler())
	})

	r.Group(func(ar chi.Router) {
		ar.Use(api.RequireAdmin(cfg.AdminUser, cfg.AdminPassHash))
		ar.Route("/admin", func(rr chi.Router) {
			api.MountAdmin(rr, registry, registrations)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := session.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user_id":                     p.UserID,
			"tenant_id":                   p.TenantID,
			"display_name":                p.DisplayName,
			"email":                       p.Email,
			"roles":                       p.Roles,
			"tool_consumer_instance_guid": p.ToolConsumerInstanceGUID,
			"is_instructor":               p.IsInstructor(),
			"is_learner":                  p.IsLearner(),
		})
	}
}
