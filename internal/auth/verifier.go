package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

var (
	hmacMethods       = []string{"HS256", "HS384", "HS512"}
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
)

// Verifier decodes a raw token and checks its integrity and validity window.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// AnonymousVerifier reports every token as absent. It stands in when token
// verification is switched off so the rest of the pipeline still runs.
type AnonymousVerifier struct{}

func (AnonymousVerifier) Verify(context.Context, string) (Claims, error) {
	return Claims{}, ErrTokenAbsent
}

type VerifierConfig struct {
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf. Zero means a token is rejected
	// as soon as its expiration instant has passed.
	Leeway time.Duration
	// Methods restricts the accepted "alg" header values.
	Methods []string
	// Now overrides the clock used for exp/nbf/iat checks.
	Now func() time.Time
}

type jwtVerifier struct {
	keys keyfunc.Keyfunc
	opts []jwt.ParserOption
}

func newJWTVerifier(keys keyfunc.Keyfunc, cfg VerifierConfig, defaultMethods []string) *jwtVerifier {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = defaultMethods
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithValidMethods(methods),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &jwtVerifier{keys: keys, opts: opts}
}

const (
	jwksRefreshInterval = time.Hour
	jwksHTTPTimeout     = 10 * time.Second
)

// NewJWKSVerifier verifies tokens against the key set published at jwksURL.
// The first fetch must succeed. Keys are then refreshed in the background until
// ctx is cancelled, and an unknown kid triggers a rate limited refresh.
func NewJWKSVerifier(ctx context.Context, jwksURL string, cfg VerifierConfig) (Verifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is empty")
	}

	remote, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		HTTPTimeout:     jwksHTTPTimeout,
		RefreshInterval: jwksRefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{jwksURL: remote},
		RateLimitWaitMax:  time.Minute,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(5*time.Minute), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("jwks client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	return newJWTVerifier(kf, cfg, asymmetricMethods), nil
}

// NewSecretVerifier verifies HMAC tokens signed with secret. Tokens must carry
// keyID in their "kid" header.
func NewSecretVerifier(ctx context.Context, secret []byte, keyID string, cfg VerifierConfig) (Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	if keyID == "" {
		return nil, fmt.Errorf("key id is empty")
	}

	jwk, err := jwkset.NewJWKFromKey(secret, jwkset.JWKOptions{
		Marshal: jwkset.JWKMarshalOptions{Private: true},
		Metadata: jwkset.JWKMetadataOptions{
			KID: keyID,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build jwk: %w", err)
	}

	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("store jwk: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	return newJWTVerifier(kf, cfg, hmacMethods), nil
}

func (v *jwtVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrTokenAbsent
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, v.keys.KeyfuncCtx(ctx), v.opts...)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, ErrSignatureInvalid
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: expiration is missing", ErrMalformed)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: subject is empty", ErrMalformed)
	}

	return claims, nil
}
