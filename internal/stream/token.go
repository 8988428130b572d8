package stream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedToken indicates a presented stream token did not decode to the
// expected (username, password, source URL) triple.
var ErrMalformedToken = errors.New("malformed stream token")

// EncodeToken packs the credential triple into an opaque, URL-embeddable
// string. The encoding is reversible and order-preserving; it is not a
// cryptographic commitment. Validity is enforced by comparing the decoded
// fields against the camera's current configuration at request time.
func EncodeToken(username, password, sourceURL string) string {
	payload, err := json.Marshal([3]string{username, password, sourceURL})
	if err != nil {
		// A string triple always marshals.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeToken unpacks a token produced by EncodeToken. Any token that does
// not decode to exactly three string fields fails with ErrMalformedToken.
func DecodeToken(token string) (username, password, sourceURL string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", "", "", ErrMalformedToken
	}
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", "", "", ErrMalformedToken
	}
	if len(fields) != 3 {
		return "", "", "", ErrMalformedToken
	}
	return fields[0], fields[1], fields[2], nil
}
