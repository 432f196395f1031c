package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns an uppercase hex string built from n random bytes.
// Used for realtime connection ids.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateConnectionID issues an id for a realtime hub connection.
func GenerateConnectionID() (string, error) {
	code, err := GenerateCode(16)
	if err != nil {
		return "", err
	}
	return "conn_" + strings.ToLower(code), nil
}
