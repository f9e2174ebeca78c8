package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/api"
	"github.com/jrsteele09/go-token-broker/broker/apiclient"
	"github.com/jrsteele09/go-token-broker/broker/heartbeat"
	"github.com/jrsteele09/go-token-broker/broker/issuerclient"
	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/broker/tools"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/internal/process"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const discoveryTimeout = 5 * time.Second

func main() {
	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	process.DisplayAppName("Token Broker")

	if err := run(c); err != nil {
		log.Error().Err(err).Msg("broker stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("broker stopped")
}

func run(c config.Config) error {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)
	defer func() {
		logMetrics(ctx, reader)
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("meter provider shutdown failed")
		}
	}()

	store := sessions.NewStore()
	defer store.Close()

	issuer := issuerclient.New(c)
	discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	if err := issuer.Discover(discoverCtx); err != nil {
		// the issuer may start after the broker; the configured endpoints are used until then
		log.Warn().Err(err).Str("issuer", c.GetIssuerURL()).Msg("issuer discovery failed")
	}
	cancel()

	scheduler, err := heartbeat.New(c, store, issuer, heartbeat.WithMeterProvider(meterProvider))
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := scheduler.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("heartbeat did not stop cleanly")
		}
	}()

	gate := scopes.NewGate(scopes.CapitalPlanning)
	client := apiclient.New(c, store, gate)
	handler := api.New(c, store, tools.New(client, store, gate))

	log.Info().
		Str("issuer", c.GetIssuerURL()).
		Str("services", c.GetServicesURL()).
		Dur("heartbeat", c.GetHeartbeatInterval()).
		Msg("broker ready")
	return process.Run(&http.Server{Addr: c.GetBrokerPort(), Handler: handler})
}

// logMetrics writes the counters collected over the broker's lifetime
func logMetrics(ctx context.Context, reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		log.Warn().Err(err).Msg("failed to collect metrics")
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			log.Info().Str("metric", m.Name).Int64("total", total).Msg("heartbeat totals")
		}
	}
}
