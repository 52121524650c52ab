package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidTokenHash         = errors.New("invalid token hash format")
	ErrIncompatibleTokenVersion = errors.New("incompatible token hash version")
)

// OwnerSubject is the principal every valid API token authenticates as.
const OwnerSubject = "owner"

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// CreateTokenHash derives the PHC-formatted argon2id hash stored in configuration.
func CreateTokenHash(token string, params Argon2idParams) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyToken compares token with a hash produced by CreateTokenHash.
func VerifyToken(hashedToken, token string) error {
	parts := strings.Split(hashedToken, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidTokenHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidTokenHash
	}
	if version != argon2.Version {
		return ErrIncompatibleTokenVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return ErrInvalidTokenHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidTokenHash
	}
	decoded, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidTokenHash
	}

	candidate := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(decoded)))
	if subtle.ConstantTimeCompare(decoded, candidate) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// TokenVerifier compares a stored hash with a presented token.
type TokenVerifier func(hashedToken, token string) error

// TokenAuthenticator admits the single back-office owner by API token.
type TokenAuthenticator struct {
	hash   string
	verify TokenVerifier
	logger *slog.Logger
}

// NewTokenAuthenticator builds an authenticator for the configured hash.
func NewTokenAuthenticator(hash string, verify TokenVerifier, logger *slog.Logger) *TokenAuthenticator {
	if verify == nil {
		verify = VerifyToken
	}
	return &TokenAuthenticator{hash: hash, verify: verify, logger: defaultLogger(logger)}
}

// ValidateSession resolves a bearer token to the owner principal.
func (a *TokenAuthenticator) ValidateSession(ctx context.Context, token string) (Principal, error) {
	if a == nil || a.hash == "" {
		return Principal{}, ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthorized
	}

	if err := a.verify(a.hash, token); err != nil {
		logger := serviceLogger(ctx, a.logger, "TokenAuthenticator", "ValidateSession")
		if errors.Is(err, ErrUnauthorized) {
			logger.WarnContext(ctx, "token rejected", "error_kind", ErrorKind(err))
		} else {
			logger.ErrorContext(ctx, "token hash unusable", "error", err)
		}
		return Principal{}, ErrUnauthorized
	}
	return Principal{Subject: OwnerSubject}, nil
}
