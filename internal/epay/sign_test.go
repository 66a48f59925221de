package epay

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackFields() map[string]string {
	return map[string]string{
		"pid":          "1001",
		"trade_no":     "2025010112000001",
		"out_trade_no": "1735689600000.a#b@example#com.P1.123456",
		"type":         "epay",
		"name":         "Video VIP",
		"money":        "10.00",
		"trade_status": "TRADE_SUCCESS",
		"param":        "",
	}
}

func TestContentSortsAndSkipsEmptyAndSignFields(t *testing.T) {
	f := map[string]string{"b": "2", "a": "1", "c": "", "sign": "x", "sign_type": "MD5", "B": "3"}
	assert.Equal(t, "B=3&a=1&b=2", Content(f))
}

func TestSignMatchesManualDigest(t *testing.T) {
	f := map[string]string{"money": "1.00", "name": "n", "pid": "7"}
	sum := md5.Sum([]byte("money=1.00&name=n&pid=7" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Sign(f, "secret"))
}

func TestVerify(t *testing.T) {
	v := NewVerifier("secret")
	signed := func(mut func(map[string]string)) map[string]string {
		f := callbackFields()
		f[FieldSign] = v.Sign(f)
		f[FieldSignType] = SignTypeMD5
		if mut != nil {
			mut(f)
		}
		return f
	}

	tests := []struct {
		name   string
		fields map[string]string
		want   bool
	}{
		{name: "valid", fields: signed(nil), want: true},
		{name: "uppercase signature", fields: signed(func(f map[string]string) { f[FieldSign] = strings.ToUpper(f[FieldSign]) }), want: true},
		{name: "missing sign_type", fields: signed(func(f map[string]string) { delete(f, FieldSignType) }), want: true},
		{name: "tampered money", fields: signed(func(f map[string]string) { f["money"] = "0.01" }), want: false},
		{name: "tampered token", fields: signed(func(f map[string]string) { f["out_trade_no"] = "1.x.P2.1" }), want: false},
		{name: "added field", fields: signed(func(f map[string]string) { f["extra"] = "1" }), want: false},
		{name: "empty field added", fields: signed(func(f map[string]string) { f["extra"] = "" }), want: true},
		{name: "missing sign", fields: signed(func(f map[string]string) { delete(f, FieldSign) }), want: false},
		{name: "unknown algorithm", fields: signed(func(f map[string]string) { f[FieldSignType] = "RSA" }), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(tt.fields))
		})
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	f := callbackFields()
	f[FieldSign] = Sign(f, "other")
	assert.False(t, NewVerifier("secret").Verify(f))
	assert.False(t, NewVerifier("").Verify(f))
}

func TestFlattenKeepsFirstValue(t *testing.T) {
	q, err := url.ParseQuery("money=1.00&money=9.00&sign=abc")
	require.NoError(t, err)
	f := Flatten(q)
	assert.Equal(t, "1.00", f["money"])
	assert.Equal(t, "abc", f["sign"])
}
