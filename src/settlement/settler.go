package settlement

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/model"
	"edgeengine/src/repository"
)

// ResolutionSource answers whether a window's market has resolved and in
// which direction.
type ResolutionSource interface {
	WindowOutcome(ctx context.Context, window *model.Window) (outcome string, resolved bool, err error)
}

// PositionSettler is the slice of the position manager the settler drives.
type PositionSettler interface {
	SettleOnResolution(ctx context.Context, positionID uint) error
	ExitEarly(ctx context.Context, positionID uint, exitPrice float64, outcomeTag string) error
}

// defaultExpireAfter is how long past a window's end the settler keeps
// waiting for a resolution before writing the position off as expired.
const defaultExpireAfter = time.Hour

// Settler finalizes windows: it records resolution outcomes and settles
// every remaining position against the binary payout. A pass is idempotent,
// so a crash between recording the outcome and settling positions is healed
// on the next pass.
type Settler struct {
	windows     *repository.WindowRepository
	positions   *repository.PositionRepository
	exceptions  *repository.ExceptionRepository
	manager     PositionSettler
	source      ResolutionSource
	expireAfter time.Duration
}

func NewSettler(manager PositionSettler, source ResolutionSource) *Settler {
	return &Settler{
		windows:     repository.NewWindowRepository(),
		positions:   repository.NewPositionRepository(),
		exceptions:  repository.NewExceptionRepository(),
		manager:     manager,
		source:      source,
		expireAfter: defaultExpireAfter,
	}
}

// NewSettlerWithRepos wires explicit repositories. Used by tests.
func NewSettlerWithRepos(
	windows *repository.WindowRepository,
	positions *repository.PositionRepository,
	exceptions *repository.ExceptionRepository,
	manager PositionSettler,
	source ResolutionSource,
) *Settler {
	return &Settler{
		windows:     windows,
		positions:   positions,
		exceptions:  exceptions,
		manager:     manager,
		source:      source,
		expireAfter: defaultExpireAfter,
	}
}

// Run executes one settlement pass: resolve ended windows, then settle any
// active position whose window already carries an outcome.
func (s *Settler) Run(ctx context.Context, now time.Time) error {
	if err := s.resolveEnded(ctx, now); err != nil {
		return err
	}
	return s.settleResolved(ctx, now)
}

func (s *Settler) resolveEnded(ctx context.Context, now time.Time) error {
	windows, err := s.windows.FindUnresolvedEnded(ctx, now)
	if err != nil {
		return err
	}

	for i := range windows {
		window := &windows[i]

		outcome, resolved, err := s.source.WindowOutcome(ctx, window)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"window_id": window.ID,
				"symbol":    window.Symbol,
			}).WithError(err).Warn("Resolution lookup failed, retrying next pass")
			s.exceptions.Capture(ctx, "Settler", "settlement", "source.WindowOutcome", "warning", err,
				map[string]interface{}{"window_id": window.ID, "symbol": window.Symbol})
			continue
		}
		if !resolved {
			continue
		}

		if err := s.windows.RecordOutcome(ctx, window.ID, outcome, now); err != nil {
			logger.WithFields(map[string]interface{}{
				"window_id": window.ID,
				"outcome":   outcome,
			}).WithError(err).Error("Failed to record window outcome")
			s.exceptions.Capture(ctx, "Settler", "settlement", "windows.RecordOutcome", "error", err,
				map[string]interface{}{"window_id": window.ID, "outcome": outcome})
			continue
		}

		logger.WithFields(map[string]interface{}{
			"window_id": window.ID,
			"symbol":    window.Symbol,
			"outcome":   outcome,
		}).Info("Window resolved")
	}

	return nil
}

// settleResolved walks active positions rather than resolved windows so a
// pass interrupted after RecordOutcome still finds its orphans.
func (s *Settler) settleResolved(ctx context.Context, now time.Time) error {
	positions, err := s.positions.FindActive(ctx)
	if err != nil {
		return err
	}

	for i := range positions {
		position := &positions[i]

		window, err := s.windows.FindByID(ctx, position.WindowID)
		if err != nil {
			return err
		}
		if window == nil {
			continue
		}
		if !window.Resolved() {
			// A window stuck without a resolution long past its end is
			// written off: the tokens cannot be valued anymore.
			if now.Sub(window.WindowEnd) > s.expireAfter {
				if err := s.manager.ExitEarly(ctx, position.ID, 0, model.OutcomeExpired); err != nil {
					logger.WithFields(map[string]interface{}{
						"position_id": position.ID,
						"window_id":   window.ID,
					}).WithError(err).Error("Failed to expire stale position")
					s.exceptions.Capture(ctx, "Settler", "settlement", "manager.ExitEarly", "error", err,
						map[string]interface{}{"position_id": position.ID, "window_id": window.ID})
					continue
				}
				logger.WithFields(map[string]interface{}{
					"position_id": position.ID,
					"window_id":   window.ID,
					"symbol":      window.Symbol,
				}).Warn("Position expired without window resolution")
			}
			continue
		}

		if err := s.manager.SettleOnResolution(ctx, position.ID); err != nil {
			logger.WithFields(map[string]interface{}{
				"position_id": position.ID,
				"window_id":   window.ID,
			}).WithError(err).Error("Failed to settle position on resolution")
			s.exceptions.Capture(ctx, "Settler", "settlement", "manager.SettleOnResolution", "error", err,
				map[string]interface{}{"position_id": position.ID, "window_id": window.ID})
		}
	}

	return nil
}
