package handlers

import (
	tracer "github.com/dhawal-pandya/aeonis/packages/tracer-sdk/go"
)

var Tracer *tracer.Tracer

func SetTracer(t *tracer.Tracer) {
	Tracer = t
}

// InitTracerForTests wires a tracer pointed at a local collector that is not
// expected to exist; spans are created but exports are best-effort.
func InitTracerForTests() {
	Tracer = tracer.NewTracer(
		"factura-test",
		"http://localhost:8000/v1/traces",
		"test-key",
		tracer.NewPIISanitizer(),
	)
}
