package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"casino/config"
	"casino/domain/entities"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "casino-engine"

// MetricsProvider manages OpenTelemetry metrics for the casino engine
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	betsPlacedCounter          metric.Int64Counter
	betsRejectedCounter        metric.Int64Counter
	wageredCounter             metric.Float64Counter
	payoutCounter              metric.Float64Counter
	roundsActiveGauge          metric.Int64UpDownCounter
	roundsEndedCounter         metric.Int64Counter
	jackpotWinsCounter         metric.Int64Counter
	jackpotPaidCounter         metric.Float64Counter
	balanceTransactionsCounter metric.Int64Counter
	degradedReadsCounter       metric.Int64Counter
	natsPublishedCounter       metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
	)
	if err := mp.start(reader); err != nil {
		return err
	}
	otel.SetMeterProvider(mp.meterProvider)

	log.Info("Metrics provider initialized successfully")
	return nil
}

// start builds the meter provider around reader. Callers hold mp.mu.
func (mp *MetricsProvider) start(reader sdkmetric.Reader) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	mp.meter = mp.meterProvider.Meter(meterName)

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	int64Counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.betsPlacedCounter, BetsPlacedTotal, "Total number of accepted bets"},
		{&mp.betsRejectedCounter, BetsRejectedTotal, "Total number of rejected bets"},
		{&mp.roundsEndedCounter, RoundsEndedTotal, "Total number of ended rounds"},
		{&mp.jackpotWinsCounter, JackpotWinsTotal, "Total number of jackpot wins"},
		{&mp.balanceTransactionsCounter, BalanceTransactionsTotal, "Total number of balance transactions"},
		{&mp.degradedReadsCounter, DegradedReadsTotal, "Total number of reads answered without the store"},
		{&mp.natsPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published"},
	}
	for _, c := range int64Counters {
		*c.target, err = mp.meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	amountCounters := []struct {
		target      *metric.Float64Counter
		name        string
		description string
	}{
		{&mp.wageredCounter, BetsWageredAmount, "Total amount wagered"},
		{&mp.payoutCounter, PayoutsAmount, "Total amount paid out to winning bets"},
		{&mp.jackpotPaidCounter, JackpotPaidAmount, "Total amount paid out by jackpots"},
	}
	for _, c := range amountCounters {
		*c.target, err = mp.meter.Float64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit("{credit}"))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	// UpDownCounter for gauge-like behavior
	mp.roundsActiveGauge, err = mp.meter.Int64UpDownCounter(
		RoundsActive,
		metric.WithDescription("Current number of live rounds"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rounds active gauge: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordBetPlaced records an accepted bet
func (mp *MetricsProvider) RecordBetPlaced(gameID string, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelGame, gameID))
	mp.betsPlacedCounter.Add(context.Background(), 1, attrs)
	mp.wageredCounter.Add(context.Background(), amount.InexactFloat64(), attrs)
}

// RecordBetRejected records a rejected bet by reason
func (mp *MetricsProvider) RecordBetRejected(gameID string, code entities.RejectionCode) {
	if !mp.isEnabled() {
		return
	}

	mp.betsRejectedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelGame, gameID),
			attribute.String(LabelCode, string(code)),
		),
	)
}

// RecordPayout records a winning bet's payout
func (mp *MetricsProvider) RecordPayout(gameID string, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}

	mp.payoutCounter.Add(context.Background(), amount.InexactFloat64(),
		metric.WithAttributes(attribute.String(LabelGame, gameID)),
	)
}

// RecordRoundEnded records a round reaching ENDED
func (mp *MetricsProvider) RecordRoundEnded(gameID string, forced bool) {
	if !mp.isEnabled() {
		return
	}

	mp.roundsEndedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelGame, gameID),
			attribute.String(LabelForced, strconv.FormatBool(forced)),
		),
	)
}

// UpdateActiveRounds updates the count of live rounds (increment/decrement)
func (mp *MetricsProvider) UpdateActiveRounds(gameID string, delta int64) {
	if !mp.isEnabled() {
		return
	}

	mp.roundsActiveGauge.Add(context.Background(), delta,
		metric.WithAttributes(attribute.String(LabelGame, gameID)),
	)
}

// RecordJackpotWin records a jackpot payout
func (mp *MetricsProvider) RecordJackpotWin(gameID string, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelGame, gameID))
	mp.jackpotWinsCounter.Add(context.Background(), 1, attrs)
	mp.jackpotPaidCounter.Add(context.Background(), amount.InexactFloat64(), attrs)
}

// RecordBalanceTransaction records a balance transaction
func (mp *MetricsProvider) RecordBalanceTransaction(transactionType entities.TransactionType) {
	if !mp.isEnabled() {
		return
	}

	mp.balanceTransactionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelType, string(transactionType))),
	)
}

// RecordDegradedRead records a read that fell back because the store failed
func (mp *MetricsProvider) RecordDegradedRead(operation string) {
	if !mp.isEnabled() {
		return
	}

	mp.degradedReadsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOperation, operation)),
	)
}

// RecordEventPublished records an event forwarded to NATS
func (mp *MetricsProvider) RecordEventPublished(eventType string, ok bool) {
	if !mp.isEnabled() {
		return
	}

	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// isEnabled checks if metrics are enabled and initialized
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}
