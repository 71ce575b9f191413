package httpx

import (
	"net/http"
	"regexp"
	"strings"
)

// TenantHeader is set by the gateway after it has authenticated the caller.
const TenantHeader = "X-Tenant-Id"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// TenantID resolves the tenant for a request from the gateway header, falling
// back to the tenant_id query parameter. The second result is false when the
// value is missing or malformed.
func TenantID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(TenantHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	}
	if id == "" || !tenantIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}
