// Package ordertoken encodes and decodes the merchant order number carried
// through the payment gateway.
//
// Wire format: <created_ms>.<contact>.<product_id>.<nonce>, where every '.'
// inside contact is replaced by '#'. The raw string never leaves this package;
// callers work with Token.
package ordertoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	delimiter   = "."
	placeholder = "#"
	parts       = 4

	// DefaultTTL bounds how long after creation a token is honored.
	DefaultTTL = 30 * time.Minute
)

var (
	ErrMalformedToken = errors.New("malformed order token")
	ErrTokenExpired   = errors.New("order token expired")
)

// Token is the decoded merchant order number.
type Token struct {
	CreatedAt time.Time
	Contact   string
	ProductID string
	Nonce     string
}

// New builds a token created now with a fresh random nonce.
func New(now time.Time, contact, productID string) (Token, error) {
	nonce, err := NewNonce()
	if err != nil {
		return Token{}, err
	}
	return Token{CreatedAt: now, Contact: contact, ProductID: productID, Nonce: nonce}, nil
}

// NewNonce returns a random decimal disambiguator below one million.
func NewNonce() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("order token nonce: %w", err)
	}
	return n.String(), nil
}

// Encode renders the token in wire format. Contacts containing the
// placeholder and ids containing the delimiter cannot round-trip and are
// rejected.
func (t Token) Encode() (string, error) {
	switch {
	case t.Contact == "" || t.ProductID == "" || t.Nonce == "":
		return "", fmt.Errorf("%w: empty field", ErrMalformedToken)
	case strings.Contains(t.Contact, placeholder):
		return "", fmt.Errorf("%w: contact contains %q", ErrMalformedToken, placeholder)
	case strings.Contains(t.ProductID, delimiter) || strings.Contains(t.Nonce, delimiter):
		return "", fmt.Errorf("%w: product id or nonce contains %q", ErrMalformedToken, delimiter)
	}
	return strings.Join([]string{
		strconv.FormatInt(t.CreatedAt.UnixMilli(), 10),
		strings.ReplaceAll(t.Contact, delimiter, placeholder),
		t.ProductID,
		t.Nonce,
	}, delimiter), nil
}

// Decode parses a wire-format token.
func Decode(raw string) (Token, error) {
	fields := strings.Split(raw, delimiter)
	if len(fields) != parts {
		return Token{}, fmt.Errorf("%w: expected %d parts, got %d", ErrMalformedToken, parts, len(fields))
	}
	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || ms < 0 {
		return Token{}, fmt.Errorf("%w: bad creation time %q", ErrMalformedToken, fields[0])
	}
	if fields[1] == "" || fields[2] == "" {
		return Token{}, fmt.Errorf("%w: empty contact or product id", ErrMalformedToken)
	}
	return Token{
		CreatedAt: time.UnixMilli(ms),
		Contact:   strings.ReplaceAll(fields[1], placeholder, delimiter),
		ProductID: fields[2],
		Nonce:     fields[3],
	}, nil
}

// CheckExpiry fails with ErrTokenExpired once more than ttl has elapsed since
// creation. A non-positive ttl uses DefaultTTL.
func (t Token) CheckExpiry(now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	age := now.UnixMilli() - t.CreatedAt.UnixMilli()
	if age > ttl.Milliseconds() {
		return fmt.Errorf("%w: age %s exceeds %s", ErrTokenExpired, time.Duration(age)*time.Millisecond, ttl)
	}
	return nil
}

// Codec decodes tokens and applies the validity window in one step.
type Codec struct {
	TTL time.Duration
	Now func() time.Time
}

// NewCodec returns a Codec with the given window using the wall clock.
func NewCodec(ttl time.Duration) *Codec {
	return &Codec{TTL: ttl, Now: time.Now}
}

// Parse decodes raw and rejects it if it is outside the validity window.
func (c *Codec) Parse(raw string) (Token, error) {
	t, err := Decode(raw)
	if err != nil {
		return Token{}, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if err := t.CheckExpiry(now(), c.TTL); err != nil {
		return t, err
	}
	return t, nil
}
