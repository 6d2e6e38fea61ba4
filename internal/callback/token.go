package callback

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const tokenPrefix = "cb"
const tokenSep = "::"

// randomBytes is the amount of entropy behind each token.
const randomBytes = 16

// NewToken mints a token of the form cb::{graphType}::{random}, where
// the random segment is URL-safe base64 of 16 bytes from crypto/rand.
func NewToken(graphType string) (string, error) {
	if graphType == "" {
		return "", fmt.Errorf("graph type is required")
	}
	if strings.Contains(graphType, tokenSep) {
		return "", fmt.Errorf("graph type %q must not contain %q", graphType, tokenSep)
	}

	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	random := base64.RawURLEncoding.EncodeToString(buf)

	return tokenPrefix + tokenSep + graphType + tokenSep + random, nil
}

// ParseToken validates the token shape and returns the graph type it
// carries. Tokens are self-describing of their owning namespace; the
// random segment is never interpreted.
func ParseToken(token string) (graphType string, err error) {
	parts := strings.Split(token, tokenSep)
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("malformed callback token")
	}
	return parts[1], nil
}
