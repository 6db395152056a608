package observability

// Metric name prefixes
const (
	MetricPrefix = "casino"
)

// Metric names
const (
	// Bet metrics
	BetsPlacedTotal   = MetricPrefix + ".bets.placed_total"
	BetsRejectedTotal = MetricPrefix + ".bets.rejected_total"
	BetsWageredAmount = MetricPrefix + ".bets.wagered_amount"
	PayoutsAmount     = MetricPrefix + ".payouts.amount"

	// Round metrics
	RoundsActive     = MetricPrefix + ".rounds.active"
	RoundsEndedTotal = MetricPrefix + ".rounds.ended_total"

	// Jackpot metrics
	JackpotWinsTotal  = MetricPrefix + ".jackpot.wins_total"
	JackpotPaidAmount = MetricPrefix + ".jackpot.paid_amount"

	// Balance metrics
	BalanceTransactionsTotal = MetricPrefix + ".balance.transactions_total"
	DegradedReadsTotal       = MetricPrefix + ".store.degraded_reads_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelType      = "type"
	LabelGame      = "game"
	LabelCode      = "code"
	LabelForced    = "forced"
	LabelOperation = "operation"
	LabelEventType = "event_type"
	LabelOutcome   = "outcome"
)

// Publish outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
