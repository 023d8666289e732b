package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
)

func main() {
	password := flag.String("password", "", "Plaintext password (or use stdin)")
	check := flag.String("check", "", "Existing bcrypt hash to verify the password against")
	flag.Parse()

	pw := *password
	if pw == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "Usage: hashpw [-password <pw>] [-check <hash>]")
			fmt.Fprintln(os.Stderr, "  Reads the password from stdin if -password not specified")
			os.Exit(1)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	if *check != "" {
		if err := crypto.CheckPassword(*check, pw); err != nil {
			fmt.Fprintf(os.Stderr, "No match: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("match")
		return
	}

	hash, err := crypto.HashPassword(pw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
