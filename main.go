package main

import (
	"log"
	"os"

	tracer "github.com/dhawal-pandya/aeonis/packages/tracer-sdk/go"
	"github.com/gin-gonic/gin"

	"factura/config"
	"factura/database"
	"factura/handlers"
	"factura/mail"
	"factura/scheduler"
)

func main() {
	cfg := config.Load()

	apiKey := os.Getenv("AEONIS_API_KEY")
	if apiKey == "" {
		log.Fatal("AEONIS_API_KEY environment variable not set")
	}

	aeonisTracer := tracer.NewTracer(
		"factura",
		"http://localhost:8000/v1/traces",
		apiKey,
		tracer.NewPIISanitizer(),
	)
	defer aeonisTracer.Shutdown()

	handlers.SetTracer(aeonisTracer)

	database.ConnectDatabase()
	handlers.Configure(cfg, mail.LogMailer{}, nil)

	sched := scheduler.New(handlers.Billing, handlers.Lifecycle, handlers.Reminders)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	r := gin.Default()

	// Root span per request.
	r.Use(func(c *gin.Context) {
		ctx, span := aeonisTracer.StartSpan(c.Request.Context(), c.Request.URL.Path)
		defer span.End()

		span.SetAttributes(map[string]interface{}{
			"http.method":     c.Request.Method,
			"http.url":        c.Request.URL.String(),
			"http.client_ip":  c.ClientIP(),
			"http.user_agent": c.Request.UserAgent(),
		})

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(map[string]interface{}{
			"http.status_code": c.Writer.Status(),
		})
	})

	// Gateway callbacks authenticate themselves via signature, not actor.
	r.POST("/webhooks/bold", handlers.HandleBoldWebhook)

	scoped := r.Group("/")
	scoped.Use(handlers.ActorMiddleware())
	{
		scoped.POST("/billing/generate-invoices", handlers.GenerateInvoices)
		scoped.POST("/billing/suspend-overdue", handlers.SuspendOverdue)
		scoped.POST("/billing/suspend-expired-trials", handlers.SuspendExpiredTrials)
		scoped.POST("/billing/send-reminders", handlers.SendReminders)
		scoped.POST("/billing/cleanup-reminders", handlers.CleanupReminders)
		scoped.GET("/billing/dashboard", handlers.Dashboard)
		scoped.GET("/billing/history", handlers.GetBillingHistory)
		scoped.GET("/billing/reminders", handlers.GetPendingReminders)

		scoped.POST("/invoices", handlers.CreateInvoice)
		scoped.GET("/invoices", handlers.ListInvoices)
		scoped.GET("/invoices/:id", handlers.GetInvoice)
		scoped.POST("/invoices/:id/pay", handlers.MarkInvoicePaid)
		scoped.POST("/invoices/:id/cancel", handlers.CancelInvoice)
		scoped.POST("/invoices/:id/payment-link", handlers.CreateInvoicePaymentLink)

		scoped.GET("/tax-configs", handlers.ListTaxConfigs)
		scoped.POST("/tax-configs", handlers.CreateTaxConfig)
		scoped.PUT("/tax-configs/:id", handlers.UpdateTaxConfig)
		scoped.DELETE("/tax-configs/:id", handlers.DeleteTaxConfig)
		scoped.POST("/tax-configs/:id/set-default", handlers.SetDefaultTaxConfig)

		scoped.POST("/payments", handlers.CreatePayment)
		scoped.GET("/payments", handlers.ListPayments)
		scoped.GET("/payments/:id", handlers.GetPayment)

		scoped.GET("/tenants/:id", handlers.GetTenant)
	}

	r.POST("/tenants", handlers.CreateTenant)
	r.POST("/admin/clear_db", handlers.ClearDatabase)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	log.Fatal(r.Run(":8081"))
}
