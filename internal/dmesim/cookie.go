package dmesim

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieClaims are the JWT claims carried by a session cookie. The cookie
// binds a session to the registering app and the peer address it came from.
type CookieClaims struct {
	jwt.RegisteredClaims
	PeerIP  string `json:"peerip"`
	DevName string `json:"devname"`
	AppName string `json:"appname"`
	AppVers string `json:"appvers"`
}

// CookieIssuer issues and verifies session cookies signed with HS256.
type CookieIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCookieIssuer creates a CookieIssuer. ttl defaults to 24 hours.
func NewCookieIssuer(secret string, ttl time.Duration) *CookieIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CookieIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed session cookie for app, registered from peerIP.
func (i *CookieIssuer) Issue(app App, peerIP string) (string, error) {
	now := i.now().UTC()
	claims := CookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   app.key(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
		PeerIP:  peerIP,
		DevName: app.DevName,
		AppName: app.AppName,
		AppVers: app.AppVers,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign cookie: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session cookie, returning its claims.
func (i *CookieIssuer) Verify(cookie string) (*CookieClaims, error) {
	token, err := jwt.ParseWithClaims(
		cookie,
		&CookieClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify cookie: %w", err)
	}
	claims, ok := token.Claims.(*CookieClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid cookie claims")
	}
	return claims, nil
}

// TTL returns the configured cookie lifetime.
func (i *CookieIssuer) TTL() time.Duration { return i.ttl }
