package job

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes mounts the job endpoints on the given router group.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.Create)
	rg.GET("/jobs", h.List)
	rg.GET("/jobs/:id", h.Get)
	rg.POST("/jobs/:id/control", h.Control)
	rg.DELETE("/jobs/:id", h.Delete)
}

// Create handles HTTP requests for enqueueing a new job.
// Returns HTTP 201 with the persisted job on success.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.CreateJob(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	resp, err := h.service.GetJob(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles HTTP requests to list the tenant's jobs with an optional
// status/type/priority filter, plus a queue summary for polling clients.
func (h *JobHandler) List(c *gin.Context) {
	filter := ListFilter{
		Status:   config.JobStatus(c.Query("status")),
		Type:     c.Query("type"),
		Priority: config.JobPriority(c.Query("priority")),
	}

	resp, err := h.service.ListJobs(c.Request.Context(), middleware.TenantID(c), filter)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Control handles pause/resume/cancel/retry requests for a job.
func (h *JobHandler) Control(c *gin.Context) {
	var body dto.JobControlDTO
	if !middleware.Bind(c, &body) {
		c.Abort()
		return
	}

	resp, err := h.service.ControlJob(c.Request.Context(), middleware.TenantID(c), c.Param("id"), body.Action)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Delete handles HTTP requests to remove a job record.
func (h *JobHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteJob(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.Status(http.StatusNoContent)
}
