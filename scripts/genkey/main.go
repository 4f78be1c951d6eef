// genkey generates a new random API key for CETI_API_KEYS.
//
// Usage:
//
//	go run ./scripts/genkey
//
// Prints a single high-entropy key to stdout. Append it to CETI_API_KEYS
// (comma-separated) and restart the server — keys are Argon2id-hashed at
// startup, so the plaintext only needs to exist in the operator's
// environment, never in the ledger or logs.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "error: generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
}
