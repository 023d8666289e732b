package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/andrewanujbusiness/messenger/internal/config"
	"github.com/andrewanujbusiness/messenger/internal/crypto"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to JWT_SECRET)")
	userID := flag.String("user", "", "User id to mint a token for")
	username := flag.String("username", "", "Username to embed in the token")
	ttl := flag.Duration("ttl", 0, "Token lifetime (0 means no expiry)")
	verify := flag.String("verify", "", "Token to verify instead of minting")
	flag.Parse()

	if *secret == "" {
		*secret = config.DefaultJWTSecret
	}

	signer, err := crypto.NewTokenSigner(*secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid secret: %v\n", err)
		os.Exit(1)
	}

	if *verify != "" {
		claims, err := signer.Parse(*verify)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("id:       %s\n", claims.ID)
		fmt.Printf("username: %s\n", claims.Username)
		if claims.IssuedAt != nil {
			fmt.Printf("issued:   %s\n", claims.IssuedAt.Format(time.RFC3339))
		}
		if claims.ExpiresAt != nil {
			fmt.Printf("expires:  %s\n", claims.ExpiresAt.Format(time.RFC3339))
		}
		return
	}

	if *userID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> -username <name> [-ttl <duration>] [-secret <secret>]")
		fmt.Fprintln(os.Stderr, "       token -verify <token> [-secret <secret>]")
		os.Exit(1)
	}

	token, err := signer.Sign(*userID, *username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
}
