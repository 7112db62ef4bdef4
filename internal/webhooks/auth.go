package webhooks

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtExpiry = 10 * time.Minute

// buildAuthHeader returns the header name/value pair (if any) required by
// the subscriber's authentication variant, per spec.md §4.3 step 7.
func buildAuthHeader(auth Authentication) (name, value string, err error) {
	switch auth.Type {
	case AuthNone, "":
		return "", "", nil
	case AuthBearer:
		return "Authorization", "Bearer " + auth.Token, nil
	case AuthBasic:
		encoded := base64.StdEncoding.EncodeToString([]byte(auth.User + ":" + auth.Pass))
		return "Authorization", "Basic " + encoded, nil
	case AuthAPIKey:
		return auth.Header, auth.Token, nil
	case AuthJWT:
		token, err := mintJWT(auth.JWTSecret)
		if err != nil {
			return "", "", err
		}
		return "Authorization", "Bearer " + token, nil
	default:
		return "", "", fmt.Errorf("unknown authentication type %q", auth.Type)
	}
}

// mintJWT issues a fresh HS256 token with a fixed 10-minute expiry, per
// SPEC_FULL.md §4's binding Open-Question decision: no alternate expiry
// code path exists.
func mintJWT(secret string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iat":    now.Unix(),
		"exp":    now.Add(jwtExpiry).Unix(),
		"app":    "instance-gateway",
		"action": "webhook-delivery",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// signPayload computes the HMAC of body under secret, using the
// configured algorithm, returning the value in "<algo>=<hex>" form.
func signPayload(cfg SecurityConfig, body []byte) (string, error) {
	algo := cfg.Algorithm
	if algo == "" {
		algo = "sha256"
	}

	var hasher func() hash.Hash
	switch algo {
	case "sha256":
		hasher = sha256.New
	case "sha1":
		hasher = sha1.New
	case "md5":
		hasher = md5.New
	default:
		return "", fmt.Errorf("unsupported signature algorithm %q", algo)
	}

	mac := hmac.New(hasher, []byte(cfg.Secret))
	mac.Write(body)
	return fmt.Sprintf("%s=%s", algo, hex.EncodeToString(mac.Sum(nil))), nil
}
