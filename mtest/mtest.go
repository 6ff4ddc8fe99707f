// Package mtest holds small helpers shared by the module's test files.
package mtest

import (
	crand "crypto/rand"
	"encoding/hex"
)

// RandBytes returns n random bytes.
func RandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandHex returns a random hex string n characters long.
func RandHex(n int) string {
	b := RandBytes((n + 1) / 2)
	return hex.EncodeToString(b)[:n]
}
