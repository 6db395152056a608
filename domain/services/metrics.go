package services

import (
	"casino/domain/entities"
	"casino/domain/interfaces"

	"github.com/shopspring/decimal"
)

type noopMetrics struct{}

func (noopMetrics) RecordBetPlaced(string, decimal.Decimal)           {}
func (noopMetrics) RecordBetRejected(string, entities.RejectionCode)  {}
func (noopMetrics) RecordPayout(string, decimal.Decimal)              {}
func (noopMetrics) RecordRoundEnded(string, bool)                     {}
func (noopMetrics) UpdateActiveRounds(string, int64)                  {}
func (noopMetrics) RecordJackpotWin(string, decimal.Decimal)          {}
func (noopMetrics) RecordBalanceTransaction(entities.TransactionType) {}
func (noopMetrics) RecordDegradedRead(string)                         {}

func metricsOrNoop(m interfaces.MetricsRecorder) interfaces.MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
