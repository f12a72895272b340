package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate/internal/auth"
	"authgate/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newTokenCmd(time.Now))
}

// newTokenCmd builds the development helpers around the gate's token format.
// Both subcommands read JWT_SECRET from the environment.
func newTokenCmd(now func() time.Time) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign and verify HS256 tokens with JWT_SECRET",
	}
	cmd.AddCommand(newTokenSignCmd(now), newTokenVerifyCmd(now))
	return cmd
}

func newTokenSignCmd(now func() time.Time) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		extra   []string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := loadSecret()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			claims, err := parseClaimFlags(extra)
			if err != nil {
				return err
			}
			if subject != "" {
				claims["sub"] = subject
			}
			issuedAt := now()
			claims["iat"] = issuedAt.Unix()
			claims["exp"] = issuedAt.Add(ttl).Unix()

			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "lifetime of the token")
	cmd.Flags().StringArrayVar(&extra, "claim", nil, "extra claim as key=value, value parsed as JSON when possible (repeatable)")
	return cmd
}

func newTokenVerifyCmd(now func() time.Time) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := loadSecret()
			if err != nil {
				return err
			}

			claims, err := auth.NewHS256Verifier(auth.WithClock(now)).Verify(strings.TrimSpace(args[0]), secret)
			if err != nil {
				// operator tool: the internal reason is shown
				if authErr, ok := auth.IsAuthError(err); ok {
					return fmt.Errorf("%s (%s)", authErr.Error(), authErr.Detail())
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}

func loadSecret() ([]byte, error) {
	a, err := config.LoadAdmission()
	if err != nil {
		return nil, err
	}
	if a.Secret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return a.SecretBytes(), nil
}

// parseClaimFlags turns key=value pairs into claims. Values that are valid
// JSON (numbers, booleans, objects) keep their type, anything else is a string.
func parseClaimFlags(pairs []string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --claim %q, expected key=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		claims[key] = value
	}
	return claims, nil
}
