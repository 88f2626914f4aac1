package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/confidence"
	"edgeengine/src/connectors"
	"edgeengine/src/controller"
	"edgeengine/src/engine"
	"edgeengine/src/model"
	"edgeengine/src/repository"
	"edgeengine/src/risk"
	"edgeengine/src/settlement"
	"edgeengine/src/strategy"
	"edgeengine/src/tracker"
)

// loop bundles the long-lived components of the trading process. One loop
// serves all configured symbols.
type loop struct {
	config     Config
	riskConfig risk.Config

	client     *connectors.Client
	evaluator  *controller.WindowController
	manager    *engine.PositionManager
	riskCtl    *risk.Controller
	tracker    *tracker.OrderTracker
	settler    *settlement.Settler
	confidence *confidence.Engine
	signals    *strategy.Builder

	positions *repository.PositionRepository
	windows   *repository.WindowRepository
}

// StartLoop wires the engine together and runs the four periodic passes
// (evaluation, risk, reconciliation, settlement) plus the user-event stream
// until the context is cancelled.
func StartLoop(ctx context.Context) error {
	config := GetConfig()
	clobConfig := connectors.GetConfig()

	if clobConfig.APIKey == "" || clobConfig.APISecret == "" {
		return errors.New("no exchange API credentials set")
	}
	if len(config.Symbols) == 0 {
		return errors.New("no symbols configured")
	}

	client := connectors.NewClient(clobConfig)
	confidenceEngine := confidence.NewEngine(confidence.GetConfig())
	signals := strategy.NewBuilder(strategy.GetConfig())
	manager := engine.NewPositionManager(engine.GetConfig(), client)

	l := &loop{
		config:     config,
		riskConfig: risk.GetConfig(),
		client:     client,
		evaluator: controller.NewWindowController(
			controller.GetConfig(), client, confidenceEngine, signals, manager),
		manager:    manager,
		riskCtl:    risk.NewController(risk.GetConfig()),
		tracker:    tracker.NewOrderTracker(client),
		confidence: confidenceEngine,
		signals:    signals,
		positions:  repository.NewPositionRepository(),
		windows:    repository.NewWindowRepository(),
	}
	l.settler = settlement.NewSettler(manager, &marketResolution{client: client})

	stream := connectors.NewUserEventStream(clobConfig)
	go stream.Run(ctx)
	go l.consumeUserEvents(ctx, stream)

	logger.WithFields(map[string]interface{}{
		"symbols":     config.Symbols,
		"eval_period": config.EvalPeriod,
		"risk_period": config.RiskPeriod,
	}).Info("Trading loop starting")

	return l.run(ctx)
}

func (l *loop) run(ctx context.Context) error {
	evalTicker := time.NewTicker(l.config.EvalPeriod)
	defer evalTicker.Stop()
	riskTicker := time.NewTicker(l.config.RiskPeriod)
	defer riskTicker.Stop()
	reconcileTicker := time.NewTicker(l.config.ReconcilePeriod)
	defer reconcileTicker.Stop()
	settleTicker := time.NewTicker(l.config.SettlePeriod)
	defer settleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil

		case <-evalTicker.C:
			l.evalPass(ctx)

		case <-riskTicker.C:
			l.riskPass(ctx)

		case <-reconcileTicker.C:
			if err := l.tracker.Reconcile(ctx); err != nil {
				logger.WithError(err).Error("Reconciliation pass failed")
			}

		case <-settleTicker.C:
			if err := l.settler.Run(ctx, time.Now().UTC()); err != nil {
				logger.WithError(err).Error("Settlement pass failed")
			}
		}
	}
}

// evalPass runs one evaluation tick per symbol. A failing symbol never
// blocks the others.
func (l *loop) evalPass(ctx context.Context) {
	now := time.Now().UTC()

	for _, symbol := range l.config.Symbols {
		if err := l.evaluator.Evaluate(ctx, symbol, now); err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": symbol,
			}).WithError(err).Error("Window evaluation failed")
		}
	}
}

// consumeUserEvents forwards real-time exchange order updates into the
// order tracker. Ghost events are logged and dropped there.
func (l *loop) consumeUserEvents(ctx context.Context, stream *connectors.UserEventStream) {
	for event := range stream.Events {
		if err := l.tracker.ApplyEvent(ctx, event); err != nil {
			logger.WithFields(map[string]interface{}{
				"exchange_order_id": event.OrderID,
				"status":            event.Status,
			}).WithError(err).Error("Failed to apply user order event")
		}
	}
}

// marketResolution reads the final outcome of a window's market from the
// exchange. The winner token decides the direction.
type marketResolution struct {
	client *connectors.Client
}

func (r *marketResolution) WindowOutcome(ctx context.Context, window *model.Window) (string, bool, error) {
	market, err := r.client.GetMarket(ctx, window.Slug)
	if err != nil {
		return "", false, err
	}

	if !market.Closed || market.WinnerTokenID == "" {
		return "", false, nil
	}

	if market.WinnerTokenID == window.TokenID {
		return model.WindowOutcomeUp, true, nil
	}
	return model.WindowOutcomeDown, true, nil
}
