package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSigningConfiguration indicates the codec cannot sign tokens safely
// (missing secrets, identical secrets, broken TTLs). It is structural and
// never user-facing.
var ErrSigningConfiguration = errors.New("jwt: signing configuration invalid")

// ErrTokenMalformed indicates a token failed signature or structural checks.
var ErrTokenMalformed = errors.New("jwt: token malformed")

// ErrTokenExpired indicates a structurally valid token past its expiry.
var ErrTokenExpired = errors.New("jwt: token expired")

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 168 * time.Hour
)

// AccessTokenClaims carries the identity fields embedded in access tokens.
type AccessTokenClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carries only the subject and the per-issuance token id
// (the registered jti claim) that pairs with the session-store record.
type RefreshTokenClaims struct {
	jwt.RegisteredClaims
}

// TokenCodecOptions configures construction of a TokenCodec.
type TokenCodecOptions struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenCodec signs and parses access and refresh tokens. The two token kinds
// use distinct HMAC secrets so possession of one cannot forge the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenCodecOption customizes codec construction.
type TokenCodecOption func(*TokenCodec)

// WithClock overrides the codec's time source for deterministic tests.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec validates the signing configuration and builds a codec.
func NewTokenCodec(opts TokenCodecOptions, codecOpts ...TokenCodecOption) (*TokenCodec, error) {
	accessSecret := strings.TrimSpace(opts.AccessSecret)
	refreshSecret := strings.TrimSpace(opts.RefreshSecret)

	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("%w: secrets must be set", ErrSigningConfiguration)
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrSigningConfiguration)
	}

	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrSigningConfiguration)
	}

	accessTTL := opts.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := opts.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	codec := &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		audience:      strings.TrimSpace(opts.Audience),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range codecOpts {
		opt(codec)
	}

	return codec, nil
}

// AccessTokenTTL reports the configured access-token lifetime.
func (c *TokenCodec) AccessTokenTTL() time.Duration {
	return c.accessTTL
}

// RefreshTokenTTL reports the configured refresh-token lifetime.
func (c *TokenCodec) RefreshTokenTTL() time.Duration {
	return c.refreshTTL
}

// AccessTokenOptions configures creation of an access token.
type AccessTokenOptions struct {
	Subject  string
	Email    string
	Username string
	Role     string
}

// SignAccessToken builds and signs an access token for the supplied identity.
// The returned claims carry the exact issued-at and expiry the token encodes.
func (c *TokenCodec) SignAccessToken(opts AccessTokenOptions) (string, *AccessTokenClaims, error) {
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return "", nil, fmt.Errorf("jwt: subject is required")
	}

	now := c.now()
	claims := &AccessTokenClaims{
		Email:    strings.TrimSpace(opts.Email),
		Username: strings.TrimSpace(opts.Username),
		Role:     strings.TrimSpace(opts.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  c.audienceClaim(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.accessSecret)
	if err != nil {
		return "", nil, fmt.Errorf("%w: sign access token: %v", ErrSigningConfiguration, err)
	}

	return signed, claims, nil
}

// SignRefreshToken builds and signs a refresh token bound to subject and the
// supplied per-issuance token id.
func (c *TokenCodec) SignRefreshToken(subject, tokenID string) (string, *RefreshTokenClaims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, fmt.Errorf("jwt: subject is required")
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return "", nil, fmt.Errorf("jwt: token id is required")
	}

	now := c.now()
	claims := &RefreshTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  c.audienceClaim(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			ID:        tokenID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.refreshSecret)
	if err != nil {
		return "", nil, fmt.Errorf("%w: sign refresh token: %v", ErrSigningConfiguration, err)
	}

	return signed, claims, nil
}

// ParseAccessToken verifies signature, issuer, audience, and expiry of an
// access token and returns its claims. When the only defect is expiry the
// claims are still returned alongside ErrTokenExpired: the signature already
// verified, and callers need the expiry to emit refresh hints.
func (c *TokenCodec) ParseAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if err := c.parse(tokenString, claims, c.accessSecret); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return claims, err
		}
		return nil, err
	}
	return claims, nil
}

// ParseRefreshToken verifies signature, issuer, audience, and expiry of a
// refresh token and returns its claims.
func (c *TokenCodec) ParseRefreshToken(tokenString string) (*RefreshTokenClaims, error) {
	claims := &RefreshTokenClaims{}
	if err := c.parse(tokenString, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("%w: refresh token without id", ErrTokenMalformed)
	}
	return claims, nil
}

func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	parseOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(c.audience))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, parseOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	return nil
}

func (c *TokenCodec) audienceClaim() jwt.ClaimStrings {
	if c.audience == "" {
		return nil
	}
	return jwt.ClaimStrings{c.audience}
}
