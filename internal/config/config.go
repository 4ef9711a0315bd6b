package config

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all process configuration. The signing secret and the
// tenant-secret encryption key are loaded once here and handed to the
// session codec and the cipher as explicit constructor arguments;
// nothing else reads them from the environment.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicURL string `env:"PUBLIC_URL"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	// HS256 secret for bearer session tokens.
	JWTSecret string `env:"JWT_SECRET,required"`

	// Hex-encoded AES key (16, 24 or 32 bytes once decoded) for tenant
	// developer secrets. Optional: when unset, developer secrets are
	// stored as provided.
	AESKeyHex string `env:"AES_KEY"`

	AdminUser     string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash string `env:"ADMIN_PASS_HASH"` // bcrypt

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Load reads configuration from environment variables, after attempting
// to load a .env file for local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.AESKey(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AESKey decodes AESKeyHex. Returns nil when no key is configured.
func (c Config) AESKey() ([]byte, error) {
	if c.AESKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AESKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config: AES_KEY is not valid hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("config: AES_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}
