// Package scheduler wires the periodic billing sweeps onto cron triggers.
// Every sweep is idempotent, so an interrupted run simply resumes on the next
// trigger.
package scheduler

import (
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"factura/billing"
)

type Scheduler struct {
	cron      *cron.Cron
	billing   *billing.BillingService
	lifecycle *billing.LifecycleService
	reminders *billing.ReminderService
}

func New(b *billing.BillingService, l *billing.LifecycleService, r *billing.ReminderService) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		billing:   b,
		lifecycle: l,
		reminders: r,
	}
}

// Start registers the sweeps and launches the cron loop. Invoice generation
// runs daily; the per-tenant billing-day window makes it effectively monthly.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{"0 6 * * *", "generate-invoices", func() { s.logResult("generate-invoices", s.billing.GenerateMonthlyInvoices()) }},
		{"0 7 * * *", "suspend-overdue", func() { s.logResult("suspend-overdue", s.lifecycle.SuspendOverdueTenants()) }},
		{"30 7 * * *", "suspend-expired-trials", func() { s.logResult("suspend-expired-trials", s.lifecycle.SuspendExpiredFreeTrials()) }},
		{"0 8 * * *", "send-reminders", func() { s.logResult("send-reminders", s.reminders.SendScheduled()) }},
		{"0 3 * * 0", "cleanup-reminders", func() {
			deleted, err := s.reminders.CleanupOld()
			if err != nil {
				log.WithError(err).Error("scheduled job failed: cleanup-reminders")
				return
			}
			log.WithField("deleted", deleted).Info("scheduled job done: cleanup-reminders")
		}},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Info("billing scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) logResult(name string, result billing.SweepResult) {
	entry := log.WithFields(log.Fields{
		"job":    name,
		"count":  result.Count,
		"errors": len(result.Errors),
	})
	if len(result.Errors) > 0 {
		entry.Warn("scheduled job done with errors")
		return
	}
	entry.Info("scheduled job done")
}
