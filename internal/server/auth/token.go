// Package auth issues and verifies the signed download tokens carried by
// download links. A token is self-contained and verifiable without a
// database round trip, but it is necessary, not sufficient: the link row
// stays authoritative for enablement, expiry and consumption state.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sharefile/internal/common"
)

// DownloadClaims are the claims encoded in a download token.
type DownloadClaims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
	FileID  string `json:"fid"`
	OneTime bool   `json:"one_time"`
}

// GenerateDownloadToken signs an HS256 token binding tokenID to fileID with
// issued-at, not-before and the given expiry.
func GenerateDownloadToken(tokenID, fileID string, oneTime bool, expiresAt time.Time, secretKey []byte) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenID: tokenID,
		FileID:  fileID,
		OneTime: oneTime,
	})

	return token.SignedString(secretKey)
}

// ParseDownloadToken verifies the signature of a download token and returns
// its claims. Any verification failure maps to common.ErrInvalidToken so
// callers need not distinguish jwt internals. An expired token still parses:
// the link row is authoritative for expiry, and collapsing expiry into
// ErrInvalidToken here would hide it from the caller.
func ParseDownloadToken(tokenString string, secretKey []byte) (*DownloadClaims, error) {
	claims := &DownloadClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	// Expiry is only reached after the signature has been verified.
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrInvalidToken
	}

	if claims.FileID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
