// Package auth verifies bearer tokens and extracts the calling principal.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"vspcbal/internal/config"
)

// Roles understood by the API.
const (
	RoleViewer  = "viewer"
	RolePlanner = "planner"
	RoleAdmin   = "admin"
)

// Verifier validates tokens and extracts tenant/role claims.
// Supports modes: dev (tenant:role, no verification) and hmac (HS256 JWT).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
	now         func() time.Time
}

type Principal struct {
	Tenant string
	Role   string
}

// CanPlan reports whether the principal may start rebalancing runs.
func (p Principal) CanPlan() bool { return p.Role == RolePlanner || p.Role == RoleAdmin }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:        mode,
		HMACSecret:  []byte(cfg.HMACSecret),
		TenantClaim: orDefault(cfg.TenantClaim, "tenant"),
		RoleClaim:   orDefault(cfg.RoleClaim, "role"),
		now:         time.Now,
	}
}

func orDefault(v, d string) string {
	if v != "" {
		return v
	}
	return d
}

var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
)

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		// token format: tenant:role
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: normalizeRole(role)}, nil
	case "hmac":
		return v.verifyHS256(token)
	default:
		return Principal{}, errors.New("unsupported auth mode")
	}
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrMalformed
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, ErrMalformed
	}
	if hdr.Alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, ErrBadSignature
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, ErrMalformed
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	return Principal{Tenant: tenant, Role: normalizeRole(role)}, nil
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return RoleViewer
	}
	return role
}

// SignHS256 builds an HS256 token for claims. Used by tests and tooling.
func SignHS256(secret []byte, claims map[string]any) (string, error) {
	hdr := b64urlEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := hdr + "." + b64urlEncode(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return input + "." + b64urlEncode(mac.Sum(nil)), nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func b64urlEncode(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
