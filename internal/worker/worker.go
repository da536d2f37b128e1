// Package worker provides async transaction assessment off the event
// bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ruralpay/kite/internal/assess"
	"github.com/ruralpay/kite/internal/domain"
)

// Worker consumes ingested transactions from the EventBus and runs
// them through the assessor. Decision and alert publication happen
// inside the assessor, so the worker's job is decode, assess, log.
type Worker struct {
	bus      domain.EventBus
	assessor *assess.Assessor

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, assessor *assess.Assessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		assessor: assessor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the transaction-ingested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// handleMessage assesses a single ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.TransactionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tx := req.ToTransaction()

	decision, err := w.assessor.Assess(ctx, tx)
	if err != nil {
		slog.Error("assessment failed",
			"tx_id", tx.ID,
			"user_id", tx.UserID,
			"error", err,
		)
		return err
	}

	slog.Info("transaction assessed",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"risk_level", decision.RiskLevel.String(),
		"combined_score", decision.CombinedScore,
		"is_fraud", decision.IsFraud,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
