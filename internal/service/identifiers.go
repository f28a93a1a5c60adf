package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	transferPrefix = "TX"
	topUpPrefix    = "TP"
)

var accountNoSpace = big.NewInt(1_000_000_000)

// newReference builds a human readable reference like TX-1700000000-a1b2c3.
func newReference(prefix string) string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Unix(), hex.EncodeToString(suffix))
}

// newAccountNo returns AC followed by nine random digits.
func newAccountNo() string {
	n, err := rand.Int(rand.Reader, accountNoSpace)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("AC%09d", n.Int64())
}
