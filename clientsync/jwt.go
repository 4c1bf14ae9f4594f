package clientsync

import (
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// extracts the expiry instant from a bearer token without verifying the
// signature. any structural failure (wrong segment count, bad base64,
// missing exp claim) yields no expiry known, which callers treat as "do not
// schedule proactive refresh", not as an error.
func ExtractTokenExpiry(token string) (time.Time, bool) {
	if len(strings.Split(token, ".")) != 3 {
		return time.Time{}, false
	}

	parser := gojwt.NewParser()
	parsedToken, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	expiry, err := parsedToken.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, false
	}
	return expiry.Time, true
}
