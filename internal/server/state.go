package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// oauthStateMaxAge bounds how long an authorization redirect may take before
// the callback is rejected as stale.
const oauthStateMaxAge = 10 * time.Minute

// makeOAuthState produces an HMAC-signed state: "user_b64:timestamp_hex:hmac_hex".
// The callback has no session, so the state is what carries the user identity
// across the authorization round trip.
func makeOAuthState(userID, secret string) string {
	user := base64.RawURLEncoding.EncodeToString([]byte(userID))
	ts := strconv.FormatInt(time.Now().Unix(), 16)
	return user + ":" + ts + ":" + signState(user, ts, secret)
}

func signState(user, tsHex, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(user + ":" + tsHex))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyOAuthState verifies and parses the signed state, returning the user ID.
func verifyOAuthState(state, secret string) (string, error) {
	parts := strings.SplitN(state, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed state")
	}
	user, tsHex, sigHex := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(sigHex), []byte(signState(user, tsHex, secret))) {
		return "", fmt.Errorf("invalid state signature")
	}

	tsUnix, err := strconv.ParseInt(tsHex, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp in state")
	}
	if time.Since(time.Unix(tsUnix, 0)) > oauthStateMaxAge {
		return "", fmt.Errorf("state expired")
	}

	userID, err := base64.RawURLEncoding.DecodeString(user)
	if err != nil {
		return "", fmt.Errorf("invalid user in state")
	}
	return string(userID), nil
}
