// genkey creates a Signet identity keypair ahead of first run.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go
//
// Writes the encrypted signing keypair to <home>/.keys/signing.enc (home
// defaults to SIGNET_HOME, or ~/.signet) and prints the resulting did:key.
// Normally signetd generates this keypair itself on first start; this
// script exists for operators who want the identity to exist, and its
// DID known, before the daemon is ever pointed at a shared federation.
//
// Refuses to overwrite an existing keypair — delete it first to rotate.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signet-ai/signet/internal/config"
	"github.com/signet-ai/signet/internal/keyvault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	keyPath := filepath.Join(cfg.Home, ".keys", "signing.enc")
	vault := keyvault.New(keyPath)

	if _, err := vault.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	did, err := vault.DID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: derive did: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", keyPath)
	fmt.Printf("did: %s\n", did)
}
