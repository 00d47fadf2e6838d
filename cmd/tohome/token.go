package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tohomedistance/tohomedistance/internal/auth"
)

// runToken signs an access token with JWT_SIGNING_KEY and writes it to out.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "operator", "token subject")
	scope := fs.String("scope", auth.ScopeRead, "token scope: read or admin")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		return errors.New("JWT_SIGNING_KEY must be set")
	}

	tokens, err := auth.NewJWTService(auth.JWTConfig{SigningKey: key})
	if err != nil {
		return err
	}
	token, expires, err := tokens.GenerateToken(*subject, *scope, *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
