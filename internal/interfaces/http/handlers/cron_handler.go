package handlers

import (
	"context"
	"net/http"

	"checkout.backend/internal/interfaces/http/response"
	"checkout.backend/internal/usecases"
	"checkout.backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SweepService interface {
	Sweep(ctx context.Context) (*usecases.SweepReport, error)
	Drain(ctx context.Context) (*usecases.DrainSummary, error)
}

// CronHandler exposes the scheduled jobs to an external scheduler
type CronHandler struct {
	sweeps SweepService
}

func NewCronHandler(sweeps SweepService) *CronHandler {
	return &CronHandler{sweeps: sweeps}
}

// Reconcile runs one reconciliation sweep
// GET|POST /api/v1/cron/reconcile
func (h *CronHandler) Reconcile(c *gin.Context) {
	report, err := h.sweeps.Sweep(c.Request.Context())
	if err != nil {
		logger.Error(c.Request.Context(), "Cron reconcile failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// DrainProvisioning only drains the provisioning queue
// POST /api/v1/cron/provisioning/drain
func (h *CronHandler) DrainProvisioning(c *gin.Context) {
	summary, err := h.sweeps.Drain(c.Request.Context())
	if err != nil {
		logger.Error(c.Request.Context(), "Cron drain failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}
