package controller

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/repository"
)

// PercentOfFloatSafe returns the percentage of a float64 value using a safe clamped percent (1–100).
// If percent is out of range, it is automatically adjusted and logged.
func PercentOfFloatSafe(value float64, percent int) float64 {
	originalPercent := percent

	if percent < 1 {
		percent = 1
		logger.WithFields(map[string]interface{}{
			"value":        value,
			"original_pct": originalPercent,
			"adjusted_pct": percent,
		}).Warn("Percent below minimum, clamped to 1")
	}

	if percent > 100 {
		percent = 100
		logger.WithFields(map[string]interface{}{
			"value":        value,
			"original_pct": originalPercent,
			"adjusted_pct": percent,
		}).Warn("Percent above maximum, clamped to 100")
	}

	result := value * float64(percent) / 100.0

	logger.WithFields(map[string]interface{}{
		"value":   value,
		"percent": percent,
		"result":  result,
	}).Debug("Computed percentage of float value")

	return result
}

// Capture records a system exception through the repository's durable
// audit trail. Kept as a package-level helper so controller call sites
// stay terse.
func Capture(
	ctx context.Context,
	repo *repository.ExceptionRepository,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {
	repo.Capture(ctx, service, module, method, level, err, contextData)
}
