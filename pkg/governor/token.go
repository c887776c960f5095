package governor

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// tokenBytes gives 192 bits of entropy, comfortably above the 128-bit
// floor the approval contract requires.
const tokenBytes = 24

// mintToken returns a URL-safe random approval token.
func mintToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to mint approval token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// tokenMatches compares a presented token against the stored one in
// constant time. Empty stored tokens never match.
func tokenMatches(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
