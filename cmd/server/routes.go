package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkout.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	healthHandler  *handlers.HealthHandler
	webhookHandler *handlers.WebhookHandler
	cronHandler    *handlers.CronHandler
	cronAuth       gin.HandlerFunc
	metrics        gin.HandlerFunc
}

func metricsHandler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", d.healthHandler.Health)
	if d.metrics != nil {
		r.GET("/metrics", d.metrics)
	}

	v1 := r.Group("/api/v1")
	{
		// Gateway notifications (public, optionally signed)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/payments", d.webhookHandler.HandlePaymentNotification)
		}

		// Scheduler triggers (shared secret)
		cron := v1.Group("/cron")
		cron.Use(d.cronAuth)
		{
			cron.GET("/reconcile", d.cronHandler.Reconcile)
			cron.POST("/reconcile", d.cronHandler.Reconcile)
			cron.POST("/provisioning/drain", d.cronHandler.DrainProvisioning)
		}
	}
}
