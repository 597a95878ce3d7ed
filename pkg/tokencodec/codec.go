package tokencodec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Codec.
type Config struct {
	SigningKey []byte
	Issuer     string
	Clock      Clock
}

// Sentinel errors exposed by the codec.
var (
	ErrMissingSigningKey = errors.New("token.codec.missing_signing_key")
	ErrMissingIssuer     = errors.New("token.codec.missing_issuer")
	ErrMissingSubject    = errors.New("token.codec.missing_subject")
	ErrInvalidTokenType  = errors.New("token.codec.invalid_token_type")
	ErrInvalidTTL        = errors.New("token.codec.invalid_ttl")
	ErrMissingToken      = errors.New("token.missing")
	ErrMalformedToken    = errors.New("token.malformed")
	ErrSignatureMismatch = errors.New("token.signature_mismatch")
	ErrInvalidIssuer     = errors.New("token.invalid_issuer")
	ErrTokenExpired      = errors.New("token.expired")
	ErrTokenTypeMismatch = errors.New("token.type_mismatch")
)

// Token is a freshly signed token and its lifetime bounds.
type Token struct {
	Value     string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 tokens with a single process-wide key.
type Codec struct {
	signingKey []byte
	issuer     string
	clock      Clock
	parser     *jwt.Parser
}

// New constructs a Codec after validating the supplied configuration.
func New(configuration Config) (*Codec, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("token.codec.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("token.codec.new: %w", ErrMissingIssuer)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	signingKey := make([]byte, len(configuration.SigningKey))
	copy(signingKey, configuration.SigningKey)
	return &Codec{
		signingKey: signingKey,
		issuer:     configuration.Issuer,
		clock:      clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Now returns the codec clock's current time.
func (codec *Codec) Now() time.Time {
	return codec.clock.Now()
}

// Issue signs a token of the given type for the user handle.
func (codec *Codec) Issue(tokenType TokenType, handle string, role string, displayName string, ttl time.Duration) (Token, error) {
	if !tokenType.Valid() {
		return Token{}, fmt.Errorf("token.codec.issue: %w", ErrInvalidTokenType)
	}
	if strings.TrimSpace(handle) == "" {
		return Token{}, fmt.Errorf("token.codec.issue: %w", ErrMissingSubject)
	}
	if ttl < time.Millisecond {
		return Token{}, fmt.Errorf("token.codec.issue: %w", ErrInvalidTTL)
	}
	issuedAt := codec.clock.Now().UTC().Truncate(time.Millisecond)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Millisecond)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		TokenType:       tokenType,
		Role:            role,
		DisplayName:     displayName,
		IssuedAtMillis:  issuedAt.UnixMilli(),
		ExpiresAtMillis: expiresAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   handle,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return Token{}, fmt.Errorf("token.codec.issue: %w", signErr)
	}
	return Token{
		Value:     signed,
		Type:      tokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseAndVerify checks the signature and structure of the token and returns its claims.
// An expired token is not an error here; callers ask Claims.Expired or use VerifyActive.
func (codec *Codec) ParseAndVerify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token.codec.parse: %w", ErrMissingToken)
	}
	parsedToken, parseErr := codec.parser.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	})
	if parseErr != nil {
		return nil, fmt.Errorf("token.codec.parse: %w", codec.classifyParseError(tokenString, parseErr))
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("token.codec.parse: %w", ErrSignatureMismatch)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("token.codec.parse: %w", ErrMalformedToken)
	}
	if claims.Issuer != codec.issuer {
		return nil, fmt.Errorf("token.codec.parse: %w", ErrInvalidIssuer)
	}
	if !claims.TokenType.Valid() || strings.TrimSpace(claims.Subject) == "" || claims.ExpiresAtMillis == 0 {
		return nil, fmt.Errorf("token.codec.parse: %w", ErrMalformedToken)
	}
	return claims, nil
}

// IsExpired reports whether a validly signed token has reached its expiry.
func (codec *Codec) IsExpired(tokenString string) (bool, error) {
	claims, err := codec.ParseAndVerify(tokenString)
	if err != nil {
		return false, err
	}
	return claims.Expired(codec.clock.Now()), nil
}

// VerifyActive parses the token and additionally requires it to be unexpired and of the expected type.
func (codec *Codec) VerifyActive(tokenString string, expected TokenType) (*Claims, error) {
	claims, err := codec.ParseAndVerify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Expired(codec.clock.Now()) {
		return nil, fmt.Errorf("token.codec.verify_active: %w", ErrTokenExpired)
	}
	if claims.TokenType != expected {
		return nil, fmt.Errorf("token.codec.verify_active: %w", ErrTokenTypeMismatch)
	}
	return claims, nil
}

// classifyParseError maps jwt parser failures onto the codec's sentinel errors.
// A token whose header and payload decode cleanly but whose signature segment
// does not is reported as a signature mismatch.
func (codec *Codec) classifyParseError(tokenString string, parseErr error) error {
	switch {
	case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureMismatch
	case errors.Is(parseErr, jwt.ErrTokenMalformed):
		if hasWellFormedBody(tokenString) {
			return ErrSignatureMismatch
		}
		return ErrMalformedToken
	default:
		return ErrMalformedToken
	}
}

func hasWellFormedBody(tokenString string) bool {
	segments := strings.Split(tokenString, ".")
	if len(segments) != 3 {
		return false
	}
	headerBytes, headerErr := base64.RawURLEncoding.Strict().DecodeString(segments[0])
	if headerErr != nil {
		return false
	}
	var header map[string]interface{}
	if json.Unmarshal(headerBytes, &header) != nil {
		return false
	}
	payloadBytes, payloadErr := base64.RawURLEncoding.Strict().DecodeString(segments[1])
	if payloadErr != nil {
		return false
	}
	return json.Unmarshal(payloadBytes, &Claims{}) == nil
}
