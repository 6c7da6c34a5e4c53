//go:build ignore

// generate_hash.go produces a bcrypt hash for ADMIN_PASSWORD_HASH.
// Run: go run scripts/generate_hash.go <password>
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/generate_hash.go <password>")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Set this as ADMIN_PASSWORD_HASH:")
	fmt.Println(string(hash))
}
