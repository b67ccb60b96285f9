package library

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/beatmapar/loader/internal/library"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	scanned  metric.Int64Counter
	failed   metric.Int64Counter
	cached   metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments() (instruments, error) {
	m := meter()

	var (
		inst instruments
		err  error
	)
	inst.scanned, err = m.Int64Counter(
		"library.archives.scanned",
		metric.WithDescription("Total archives read by library scans"),
	)
	if err != nil {
		return inst, fmt.Errorf("creating scanned counter: %w", err)
	}

	inst.failed, err = m.Int64Counter(
		"library.archives.failed",
		metric.WithDescription("Total archives that could not be loaded"),
	)
	if err != nil {
		return inst, fmt.Errorf("creating failed counter: %w", err)
	}

	inst.cached, err = m.Int64Counter(
		"library.archives.cached",
		metric.WithDescription("Total archives served from the catalog without reading"),
	)
	if err != nil {
		return inst, fmt.Errorf("creating cached counter: %w", err)
	}

	inst.duration, err = m.Float64Histogram(
		"library.scan.duration",
		metric.WithDescription("Duration of a full library scan"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return inst, fmt.Errorf("creating scan duration histogram: %w", err)
	}
	return inst, nil
}
