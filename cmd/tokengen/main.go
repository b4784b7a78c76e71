// Package main provides a CLI tool for generating test tokens for the
// taskdesk API. These tokens use the dev signing key and will NOT work
// against a server configured with a real key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/auth"
	"taskdesk/internal/auth/models"
	"taskdesk/internal/platform/config"
)

const (
	defaultIssuer   = "taskdesk"
	defaultTokenTTL = 24 * time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	userID := flag.String("user-id", "", "Subject user ID. Generated if empty.")
	email := flag.String("email", "dev@taskdesk.local", "Email claim")
	role := flag.String("role", "USER", "Role claim: USER, ADMIN or BOSS")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	signingKey := flag.String("signing-key", config.DevSigningKey, "HS256 signing key")
	issuer := flag.String("issuer", defaultIssuer, "Issuer claim")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	r, err := models.ParseRole(*role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid role %q: must be USER, ADMIN or BOSS\n", *role)
		os.Exit(1)
	}

	subject := *userID
	if subject == "" {
		subject = uuid.NewString()
	}

	svc := auth.NewTokenService(*signingKey, *issuer, *ttl)
	token, err := svc.Issue(context.Background(), subject, *email, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			Type:      "Bearer",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":   subject,
				"email": *email,
				"role":  string(r),
				"iss":   *issuer,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			os.Exit(1)
		}
		return
	}

	fmt.Println(token)
}
