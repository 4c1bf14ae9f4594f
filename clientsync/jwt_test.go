package clientsync

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/go-playground/assert/v2"
)

func signTestToken(t *testing.T, claims gojwt.MapClaims) string {
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	assert.Equal(t, err, nil)
	return token
}

func TestExtractTokenExpiry(t *testing.T) {
	exp := time.Now().Add(1 * time.Hour).Unix()
	token := signTestToken(t, gojwt.MapClaims{
		"exp":     exp,
		"user_id": "a",
	})

	expiry, ok := ExtractTokenExpiry(token)
	assert.Equal(t, true, ok)
	assert.Equal(t, exp, expiry.Unix())
}

func TestExtractTokenExpiryMissingClaim(t *testing.T) {
	token := signTestToken(t, gojwt.MapClaims{
		"user_id": "a",
	})

	_, ok := ExtractTokenExpiry(token)
	assert.Equal(t, false, ok)
}

func TestExtractTokenExpiryMalformed(t *testing.T) {
	for _, token := range []string{
		"",
		"notajwt",
		"one.two",
		"one.two.three.four",
		"!!!.???.###",
	} {
		_, ok := ExtractTokenExpiry(token)
		assert.Equal(t, false, ok)
	}
}
