// Package config builds runtime configuration from an optional .env file and
// environment variables so main stays lean. Defense thresholds live here so
// every windowed counter is configured from one place.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TASKDESK_"

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	TokenTTL       time.Duration
	Issuer         string
	FrontendOrigin string
	UploadDir      string
	Defense        Defense
}

// Defense groups the thresholds for every request-defense guard.
type Defense struct {
	// General API limiter: fixed window with a soft (delay) and hard (reject) cap.
	GeneralSoftCap int
	GeneralHardCap int
	GeneralWindow  time.Duration
	SoftCapDelay   time.Duration

	// Auth endpoint limiter: failures only, no soft cap.
	AuthHardCap int
	AuthWindow  time.Duration

	// Brute-force lockout per client+route.
	LoginMaxAttempts int
	LoginWindow      time.Duration

	// Real-time channel admission.
	SocketMaxPerUser    int
	SocketMaxAttempts   int
	SocketAttemptWindow time.Duration

	// Upload gate.
	MaxUploadBytes int64

	// Address ranges exempt from the general limiter (never the auth limiter).
	TrustedCIDRs []string

	SweepInterval time.Duration
}

// Load builds a Server config from .env (if present) and TASKDESK_* environment
// variables. Environment variables win over the file.
// DevSigningKey is the fallback JWT key for local development. cmd/tokengen
// signs with the same key so dev tokens verify out of the box.
const DevSigningKey = "dev-secret-key-change-in-production"

func Load(envPath string) Server {
	k := koanf.New(".")

	if _, err := os.Stat(envPath); err == nil {
		_ = k.Load(file.Provider(envPath), dotenv.Parser())
	}
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)

	cfg := Server{
		Addr:           str(k, "addr", ":8080"),
		JWTSigningKey:  str(k, "jwt_signing_key", DevSigningKey),
		TokenTTL:       dur(k, "token_ttl", 24*time.Hour),
		Issuer:         str(k, "issuer", "taskdesk"),
		FrontendOrigin: str(k, "frontend_origin", ""),
		UploadDir:      str(k, "upload_dir", "./uploads"),
		Defense:        DefaultDefense(),
	}

	cfg.Defense.GeneralSoftCap = integer(k, "general_soft_cap", cfg.Defense.GeneralSoftCap)
	cfg.Defense.GeneralHardCap = integer(k, "general_hard_cap", cfg.Defense.GeneralHardCap)
	cfg.Defense.GeneralWindow = dur(k, "general_window", cfg.Defense.GeneralWindow)
	cfg.Defense.AuthHardCap = integer(k, "auth_hard_cap", cfg.Defense.AuthHardCap)
	cfg.Defense.AuthWindow = dur(k, "auth_window", cfg.Defense.AuthWindow)
	cfg.Defense.LoginMaxAttempts = integer(k, "login_max_attempts", cfg.Defense.LoginMaxAttempts)
	cfg.Defense.LoginWindow = dur(k, "login_window", cfg.Defense.LoginWindow)
	cfg.Defense.SweepInterval = dur(k, "sweep_interval", cfg.Defense.SweepInterval)
	if v := k.String("trusted_cidrs"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Defense.TrustedCIDRs = parts
	}

	return cfg
}

// DefaultDefense returns the fixed defense thresholds. Tests build on these so
// end-to-end expectations stay aligned with production defaults.
func DefaultDefense() Defense {
	return Defense{
		GeneralSoftCap: 50,
		GeneralHardCap: 100,
		GeneralWindow:  15 * time.Minute,
		SoftCapDelay:   500 * time.Millisecond,

		AuthHardCap: 5,
		AuthWindow:  15 * time.Minute,

		LoginMaxAttempts: 5,
		LoginWindow:      15 * time.Minute,

		SocketMaxPerUser:    3,
		SocketMaxAttempts:   10,
		SocketAttemptWindow: time.Hour,

		MaxUploadBytes: 10 << 20,

		TrustedCIDRs: []string{
			"127.0.0.0/8",
			"::1/128",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
		},

		SweepInterval: 30 * time.Minute,
	}
}

func str(k *koanf.Koanf, key, def string) string {
	if v := k.String(key); v != "" {
		return v
	}
	return def
}

func integer(k *koanf.Koanf, key string, def int) int {
	if v := k.Int(key); v > 0 {
		return v
	}
	return def
}

func dur(k *koanf.Koanf, key string, def time.Duration) time.Duration {
	if v := k.String(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
