package api

import (
	"errors"
	"net/http"
	"strings"

	"vspcbal/internal/auth"
)

const defaultTenant = "default"

var errUnauthenticated = errors.New("missing bearer token")

// getPrincipal extracts tenant and role from the bearer token. In dev mode a
// request without a token falls back to the X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return s.Auth.Verify(strings.TrimSpace(authz[7:]))
	}
	if s.Auth.Mode != "dev" {
		return auth.Principal{}, errUnauthenticated
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, nil
}

// principal writes a 401 and returns false when the caller is not
// authenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return p, false
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
