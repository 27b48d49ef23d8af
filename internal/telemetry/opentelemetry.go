// Package telemetry bridges OpenTelemetry metrics, such as the ones emitted by
// the instrumented Redis client, into the Prometheus registry of tokend.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the global OpenTelemetry meter provider with
// a Prometheus exporter registered on reg.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Info().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")
	return mp, nil
}

// Shutdown flushes and stops mp. A nil mp is ignored.
func Shutdown(ctx context.Context, mp *metric.MeterProvider) {
	if mp == nil {
		return
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
		return
	}
	log.Info().Msg("OpenTelemetry MeterProvider shut down successfully")
}
