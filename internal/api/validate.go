package api

import (
	"errors"
	"fmt"

	"vspcbal/internal/auth"
	"vspcbal/internal/model"
)

const (
	maxRequestBytes = 32 << 20
	maxUnits        = 200_000
	maxCenters      = 5_000
	maxLabelLen     = 200
)

var errTenantMismatch = errors.New("tenantId does not match the caller")

// validateRebalanceRequest checks request limits and resolves the tenant.
// Record-level checks happen in the engine.
func validateRebalanceRequest(req *model.RebalanceRequest, p auth.Principal) (string, error) {
	tenant := p.Tenant
	if req.TenantID != "" && req.TenantID != p.Tenant {
		if !p.IsAdmin() {
			return "", errTenantMismatch
		}
		tenant = req.TenantID
	}
	if len(req.Units) > maxUnits {
		return "", fmt.Errorf("too many units: %d (max %d)", len(req.Units), maxUnits)
	}
	if len(req.Centers) > maxCenters {
		return "", fmt.Errorf("too many centers: %d (max %d)", len(req.Centers), maxCenters)
	}
	if len(req.Label) > maxLabelLen {
		return "", fmt.Errorf("label longer than %d characters", maxLabelLen)
	}
	return tenant, nil
}
