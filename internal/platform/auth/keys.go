package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	keyTTL = 5 * time.Minute
	// An unknown kid forces a refetch at most this often.
	minRefetch = 10 * time.Second
)

// jsonWebKey is one entry of a JWKS document. Only RSA keys are used.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// staffKeys holds the identity provider's signing keys. The JWKS URL is
// either configured or discovered from the issuer on first use, so a
// provider that is down at startup does not lock staff out for good.
type staffKeys struct {
	issuer string
	client *http.Client

	mu        sync.Mutex
	jwksURL   string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newStaffKeys(jwksURL, issuer string) *staffKeys {
	return &staffKeys{
		issuer:  strings.TrimRight(issuer, "/"),
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// keyFunc is a jwt.Keyfunc selecting the key named by the token's kid.
func (s *staffKeys) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}
	return s.lookup(kid)
}

func (s *staffKeys) lookup(kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := time.Since(s.fetchedAt)
	if key, ok := s.keys[kid]; ok && age < keyTTL {
		return key, nil
	}
	if s.keys == nil || age >= minRefetch {
		if err := s.refresh(); err != nil {
			return nil, err
		}
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q not published by the identity provider", kid)
	}
	return key, nil
}

// refresh must be called with mu held.
func (s *staffKeys) refresh() error {
	if s.jwksURL == "" {
		url, err := s.discover()
		if err != nil {
			return err
		}
		s.jwksURL = url
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := s.getJSON(s.jwksURL, &doc); err != nil {
		return fmt.Errorf("fetch signing keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	s.keys = keys
	s.fetchedAt = time.Now()
	return nil
}

// discover reads jwks_uri from the issuer's OpenID configuration.
func (s *staffKeys) discover() (string, error) {
	if s.issuer == "" {
		return "", fmt.Errorf("no JWKS URL or issuer configured")
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := s.getJSON(s.issuer+"/.well-known/openid-configuration", &doc); err != nil {
		return "", fmt.Errorf("discover signing keys: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discovery document for %s has no jwks_uri", s.issuer)
	}
	return doc.JWKSURI, nil
}

func (s *staffKeys) getJSON(url string, v interface{}) error {
	resp, err := s.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
