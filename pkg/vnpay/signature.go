package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// HMACSHA512 returns the lowercase hex HMAC-SHA512 of data
func HMACSHA512(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashData builds the string VNPay signs for redirect and IPN parameters:
// every non-empty vnp_ field except the hash fields, sorted by key, joined as
// key=urlencoded(value) with "&".
func HashData(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == ParamSecureHash || key == ParamSecureHashType {
			continue
		}
		if !strings.HasPrefix(key, "vnp_") || params.Get(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(key)))
	}
	return sb.String()
}

// SignParams computes vnp_SecureHash for a parameter set
func SignParams(params url.Values, secret string) string {
	return HMACSHA512(secret, HashData(params))
}

// VerifyParams checks vnp_SecureHash against the remaining parameters
func VerifyParams(params url.Values, secret string) bool {
	received := strings.ToLower(params.Get(ParamSecureHash))
	if received == "" || secret == "" {
		return false
	}
	expected := SignParams(params, secret)
	return hmac.Equal([]byte(received), []byte(expected))
}
