package main

import (
	"flag"
	"fmt"

	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/fingerprint"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.New()
)

func main() {
	userID := flag.String("user", "", "user id the fingerprint is computed for")
	flag.Parse()

	// Generate a new identity key pair
	pair, err := key_ed25519.NewPair()
	if err != nil {
		logger.Fatalf("Failed to generate identity key pair: %v", err)
	}

	fp, err := fingerprint.Fingerprint(pair.Pub, []byte(*userID))
	if err != nil {
		logger.Fatalf("Failed to compute fingerprint: %v", err)
	}

	// Print the private and public key in hex format
	fmt.Printf("PRIVATE: %x\n", []byte(pair.Priv))
	fmt.Printf("PUBLIC: %x\n", []byte(pair.Pub))
	fmt.Printf("FINGERPRINT: %s\n", fingerprint.Display(fp))
}
