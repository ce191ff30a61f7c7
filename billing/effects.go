package billing

import (
	log "github.com/sirupsen/logrus"

	"factura/mail"
)

// Effect is an outbound side effect (an email send) produced by a core
// operation. Effects are collected while the transaction is open and executed
// only after it commits, so a rollback never leaves a stray notification and a
// send failure never rolls back a financial state change.
type Effect struct {
	Name string
	Run  func(m mail.Mailer) error
}

// Dispatcher executes effects best-effort. Failures are logged, never
// propagated.
type Dispatcher struct {
	Mailer mail.Mailer
}

func NewDispatcher(m mail.Mailer) *Dispatcher {
	return &Dispatcher{Mailer: m}
}

func (d *Dispatcher) Dispatch(effects []Effect) {
	for _, e := range effects {
		if err := e.Run(d.Mailer); err != nil {
			log.WithError(err).WithField("effect", e.Name).Error("effect dispatch failed")
		}
	}
}
