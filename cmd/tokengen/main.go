// Package main provides a CLI tool for generating caller tokens for the aidreg API.
// These tokens use the dev signing key unless -key is given and will NOT work in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"aidreg/internal/jwttoken"
	"aidreg/internal/platform/config"
	id "aidreg/pkg/domain"
)

const (
	defaultIssuer   = "aidreg"
	defaultAudience = "aidreg-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	callerCmd := flag.NewFlagSet("caller", flag.ExitOnError)
	callerID := callerCmd.String("caller", "", "Caller principal (required)")
	callerTTL := callerCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	callerKey := callerCmd.String("key", "", "Signing key. Defaults to the dev key.")
	callerIssuer := callerCmd.String("issuer", defaultIssuer, "Token issuer")
	callerAudience := callerCmd.String("audience", defaultAudience, "Token audience")
	callerJSON := callerCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "caller":
		callerCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateCallerToken(*callerID, *callerKey, *callerIssuer, *callerAudience, *callerTTL, *callerJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate caller tokens for the aidreg API

WARNING: Without -key these tokens use the dev signing key and will NOT work in production.
         Only use for local development and testing.

Usage:
  tokengen <command> [flags]

Commands:
  caller    Generate a caller token (JWT) whose subject is the caller principal

Examples:
  # Token for the registry admin configured as REGISTRY_DEPLOYER
  tokengen caller -caller ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG

  # Longer-lived token as JSON
  tokengen caller -caller alice -ttl 1h -json

Use "tokengen <command> -h" for more information about a command.`)
}

func generateCallerToken(caller, key, issuer, audience string, ttl time.Duration, jsonOutput bool) {
	principal, err := id.ParsePrincipal(caller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid caller: %v\n", err)
		os.Exit(1)
	}

	keyType := "custom"
	if key == "" {
		key = config.DevJWTSigningKey
		keyType = "dev"
	}

	svc := jwttoken.NewJWTService(key, issuer, audience)
	token, err := svc.GenerateCallerToken(principal, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "caller_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub": principal.String(),
				"iss": issuer,
				"aud": audience,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}

	fmt.Println("Caller Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("Caller:      %s\n", principal)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/recipients/...")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
