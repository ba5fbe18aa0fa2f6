package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flankk/node/pkg/channel"
)

// Metrics contains the Prometheus metrics of channel operations
type Metrics struct {
	BatchesApplied      *prometheus.CounterVec
	InstructionsApplied prometheus.Counter
	Rejections          *prometheus.CounterVec

	TransfersCrafted   prometheus.Counter
	ExpansionsCrafted  prometheus.Counter
	StatementsDisposed prometheus.Counter

	ChannelNonce *prometheus.GaugeVec
}

// NewMetrics initializes and registers Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		BatchesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flankk_instruction_batches_total",
			Help: "The total number of instruction batches processed",
		},
			[]string{"origin", "result"},
		),
		InstructionsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "flankk_instructions_applied_total",
			Help: "The total number of instructions applied to ledgers",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flankk_rejections_total",
			Help: "The total number of rejected operations by error",
		},
			[]string{"error"},
		),
		TransfersCrafted: factory.NewCounter(prometheus.CounterOpts{
			Name: "flankk_transfers_crafted_total",
			Help: "The total number of transfers crafted",
		}),
		ExpansionsCrafted: factory.NewCounter(prometheus.CounterOpts{
			Name: "flankk_volume_expansions_crafted_total",
			Help: "The total number of volume expansions crafted",
		}),
		StatementsDisposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "flankk_statements_disposed_total",
			Help: "The total number of statements disposed",
		}),
		ChannelNonce: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flankk_channel_nonce",
			Help: "The ledger nonce of a channel",
		},
			[]string{"channel"},
		),
	}
}

// RecordBatch counts a processed batch. origin is "local" or "peer".
func (m *Metrics) RecordBatch(origin string, instructions []channel.Instruction, err error) {
	if err != nil {
		m.BatchesApplied.WithLabelValues(origin, "rejected").Inc()
		m.Rejections.WithLabelValues(errorLabel(err)).Inc()
		return
	}

	m.BatchesApplied.WithLabelValues(origin, "applied").Inc()
	m.InstructionsApplied.Add(float64(len(instructions)))
	for _, in := range instructions {
		if in.Op == channel.OpDispose {
			m.StatementsDisposed.Inc()
		}
	}
}

var labeledErrors = []error{
	channel.ErrInvalidRecords,
	channel.ErrImbalancedRecords,
	channel.ErrInvalidSource,
	channel.ErrStatementCreation,
	channel.ErrInvalidConditionType,
	channel.ErrInvalidCoinbaseInstruction,
	channel.ErrNegativeValueTransfer,
	channel.ErrInconsistentTotalBalances,
	channel.ErrInconsistentTotalBalancesAfterExpansion,
	channel.ErrUnknownStatement,
	channel.ErrWrongOwner,
	channel.ErrWrongChain,
	channel.ErrInvalidSelfSignature,
	channel.ErrInvalidPeerSignature,
	channel.ErrBalanceNotEnough,
	channel.ErrStateUnattached,
	channel.ErrInvalidAmount,
	channel.ErrPermitUnsupported,
	errConditionTimeout,
}

// errorLabel keeps the label set bounded to the known error tags.
func errorLabel(err error) string {
	for _, known := range labeledErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}
