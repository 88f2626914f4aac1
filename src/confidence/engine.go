package confidence

import (
	"math"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/model"
)

// Boost multipliers applied per signal in the additive method.
const (
	trendAgreementBoost = 1.1
	leadLagConsistent   = 1.2
	leadLagInconsistent = 0.8
	minQuality          = 0.7
	maxQuality          = 1.5
	priorFloor          = 0.01
	priorCeil           = 0.99
)

// Well-known signal names. The engine treats the set as open: any named
// score can participate.
const (
	SignalMomentum   = "momentum_score"
	SignalFlow       = "flow_score"
	SignalDivergence = "divergence_score"
	SignalFunding    = "funding_score"
	SignalImbalance  = "imbalance_score"
	SignalLeadLag    = "lead_lag_score"
)

// Signal is one named directional score feeding both scoring methods.
// Score is in [-1, 1]; positive favors UP.
type Signal struct {
	Name   string
	Score  float64
	Weight float64

	// Quality scales the signal's log-likelihood-ratio update in the
	// Bayesian method. Clamped to [0.7, 1.5].
	Quality float64

	// TrendAgreement is set when two independent data sources agree on the
	// signal's direction.
	TrendAgreement bool

	// LeadLag reflects whether the cross-exchange lead/lag reading is
	// consistent with this signal. Nil when no reading is available.
	LeadLag *bool
}

// Inputs bundles everything one scoring pass consumes.
type Inputs struct {
	// MarketProb is the market-quoted probability of the UP outcome. The
	// Bayesian method anchors its prior here.
	MarketProb float64
	Signals    []Signal
}

// Result carries both confidence estimates. Both are always persisted and
// never gated on each other, which enables blind A/B comparison.
type Result struct {
	AdditiveConfidence float64 `json:"additive_confidence"`
	AdditiveBias       string  `json:"additive_bias"`
	BayesianConfidence float64 `json:"bayesian_confidence"`
	BayesianBias       string  `json:"bayesian_bias"`
	MarketPrior        float64 `json:"market_prior"`
}

// Engine fuses raw per-signal scores and the market-quoted probability into
// two independent confidence estimates plus a directional bias.
type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Score runs both methods on the same inputs.
func (e *Engine) Score(in Inputs) (*Result, error) {
	if in.MarketProb < 0 || in.MarketProb > 1 {
		return nil, model.NewValidationError("market_prob", "must be in [0, 1]")
	}

	addConf, addBias, err := e.additive(in)
	if err != nil {
		return nil, err
	}

	bayConf, bayBias, err := e.bayesian(in)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AdditiveConfidence: addConf,
		AdditiveBias:       addBias,
		BayesianConfidence: bayConf,
		BayesianBias:       bayBias,
		MarketPrior:        in.MarketProb,
	}

	logger.WithFields(map[string]interface{}{
		"additive_confidence": addConf,
		"additive_bias":       addBias,
		"bayesian_confidence": bayConf,
		"bayesian_bias":       bayBias,
		"market_prior":        in.MarketProb,
	}).Debug("Confidence scored")

	return result, nil
}

// additive computes a weighted sum of signal scores. Each signal is
// optionally boosted by the trend-agreement and lead/lag multipliers.
func (e *Engine) additive(in Inputs) (float64, string, error) {
	var sum float64
	for _, s := range in.Signals {
		boost := 1.0
		if s.TrendAgreement {
			boost *= trendAgreementBoost
		}
		if s.LeadLag != nil {
			if *s.LeadLag {
				boost *= leadLagConsistent
			} else {
				boost *= leadLagInconsistent
			}
		}
		sum += s.Weight * s.Score * boost
	}

	raw := 0.5 + math.Abs(sum)
	if raw >= 1.0 {
		// A full-certainty output means the weights are mis-configured,
		// not that the market is certain.
		return 0, "", model.NewValidationError("additive_confidence", "weighted sum reached full certainty")
	}

	return e.clamp(raw), e.biasFromScore(sum, in.MarketProb), nil
}

// bayesian starts from a prior equal to the market-quoted probability and
// accumulates each signal as a log-likelihood-ratio update scaled by its
// quality factor. Conflicting signals cancel algebraically instead of
// averaging away.
func (e *Engine) bayesian(in Inputs) (float64, string, error) {
	prior := in.MarketProb
	if prior < priorFloor {
		prior = priorFloor
	}
	if prior > priorCeil {
		prior = priorCeil
	}

	logOdds := math.Log(prior / (1 - prior))

	for _, s := range in.Signals {
		quality := s.Quality
		if quality < minQuality {
			quality = minQuality
		}
		if quality > maxQuality {
			quality = maxQuality
		}
		logOdds += s.Score * quality * e.config.LLRScale
	}

	pUp := 1.0 / (1.0 + math.Exp(-logOdds))
	if pUp >= 1.0 || pUp <= 0.0 {
		return 0, "", model.NewValidationError("bayesian_confidence", "log-odds collapsed to certainty")
	}

	if pUp >= 0.5 {
		return e.clamp(pUp), model.SideUp, nil
	}
	return e.clamp(1 - pUp), model.SideDown, nil
}

// Driving returns the confidence and bias of the method configured to drive
// real trading decisions.
func (e *Engine) Driving(res *Result) (float64, string) {
	if e.config.DrivingMethod == "bayesian" {
		return res.BayesianConfidence, res.BayesianBias
	}
	return res.AdditiveConfidence, res.AdditiveBias
}

// EntryAllowed applies the entry gates to the driving method: the minimum
// edge threshold, plus the stricter underdog gate when the chosen side
// trades below the market's own 50% line.
func (e *Engine) EntryAllowed(res *Result, sidePrice float64) bool {
	conf, _ := e.Driving(res)

	if conf < e.config.MinEdge {
		return false
	}

	if sidePrice < 0.5 && conf < e.config.UnderdogMinConfidence {
		logger.WithFields(map[string]interface{}{
			"confidence": conf,
			"side_price": sidePrice,
		}).Debug("Underdog gate rejected entry")

		return false
	}

	return true
}

func (e *Engine) clamp(v float64) float64 {
	if v > e.config.MaxConfidence {
		return e.config.MaxConfidence
	}
	if v < 0 {
		return 0
	}
	return v
}

func (e *Engine) biasFromScore(score, marketProb float64) string {
	switch {
	case score > 0:
		return model.SideUp
	case score < 0:
		return model.SideDown
	case marketProb >= 0.5:
		return model.SideUp
	default:
		return model.SideDown
	}
}
