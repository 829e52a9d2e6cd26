// Package twilio verifies carrier status callbacks. There is no outbound
// messaging here; sending is owned by the main application.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

const SignatureHeader = "X-Twilio-Signature"

// VerifySignature checks the carrier HMAC over the exact callback URL plus
// the sorted, concatenated form pairs. fullURL must match the URL configured
// on the Twilio side byte for byte.
func VerifySignature(authToken, fullURL, provided string, form url.Values) bool {
	if authToken == "" || provided == "" {
		return false
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(canonicalString(fullURL, form)))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

func canonicalString(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		// Twilio signs the first value of each key
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	return b.String()
}
