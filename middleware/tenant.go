package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tariffdesk/jobengine/common"
)

// TenantHeader carries the workspace scoping every request must declare.
const TenantHeader = "X-Tenant-ID"

const tenantContextKey = "tenant_id"

// TenantRequired rejects requests without a tenant header. Authentication of
// the tenant claim happens upstream; the engine only enforces that every
// read and write is scoped to one.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if tenant == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "missing " + TenantHeader + " header",
				"code":  common.CodeValidation,
			})
			c.Abort()
			return
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// TenantID returns the tenant set by TenantRequired, or "" when the
// middleware did not run.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantContextKey)
}
