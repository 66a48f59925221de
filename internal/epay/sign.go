// Package epay implements the signature scheme of the epay-compatible
// payment gateway.
//
// A signature is the lowercase hex MD5 of the non-empty fields sorted by key,
// joined as k=v pairs with '&', followed directly by the merchant secret. The
// sign and sign_type fields never take part in the digest.
package epay

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	FieldSign     = "sign"
	FieldSignType = "sign_type"

	// SignTypeMD5 is the only algorithm tag the gateway issues.
	SignTypeMD5 = "MD5"
)

// Verifier checks inbound callbacks against the shared merchant secret.
type Verifier struct {
	key string
}

// NewVerifier returns a Verifier bound to the merchant secret.
func NewVerifier(key string) *Verifier {
	return &Verifier{key: key}
}

// Content returns the canonical string that is hashed, without the secret.
func Content(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" || k == FieldSign || k == FieldSignType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// Sign computes the signature of fields under key.
func Sign(fields map[string]string, key string) string {
	sum := md5.Sum([]byte(Content(fields) + key))
	return hex.EncodeToString(sum[:])
}

// Sign computes the signature of fields under the verifier's secret.
func (v *Verifier) Sign(fields map[string]string) string {
	return Sign(fields, v.key)
}

// Verify reports whether fields carry a valid signature. A missing sign field,
// an unknown sign_type or an empty secret all fail verification.
func (v *Verifier) Verify(fields map[string]string) bool {
	if v.key == "" {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(fields[FieldSign]))
	if got == "" {
		return false
	}
	if st := fields[FieldSignType]; st != "" && !strings.EqualFold(st, SignTypeMD5) {
		return false
	}
	want := v.Sign(fields)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Flatten keeps the first value of each query or form field.
func Flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
