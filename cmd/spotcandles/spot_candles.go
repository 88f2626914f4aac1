package spotcandles

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"edgeengine/src/model"
	"edgeengine/src/repository"
)

// SpotCandles backfills one-minute spot candles from the reference exchange
// into the table the signal builder reads.
type SpotCandles struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (s *SpotCandles) Start() error {
	s.Config = GetConfig()

	s.exchange = s.newBinanceInstance()

	if s.Config.AutoMode {
		if err := s.determineStartPoint(); err != nil {
			return err
		}
	}

	return s.backfill(context.Background())
}

func (*SpotCandles) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// spotSymbol is the stored symbol, e.g. BTCUSDT. It must match what the
// signal builder queries for.
func (s *SpotCandles) spotSymbol() string {
	return s.Config.Symbol + s.Config.Quote
}

func (s *SpotCandles) backfill(ctx context.Context) error {
	series, err := s.fetchKlines()
	if err != nil {
		return err
	}

	repo := repository.NewSpotCandleRepository().WithDB(s.DB)

	for i := range series {
		result := series[i]

		base := &model.OHLCVBase{
			Datetime: time.Unix(result.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(result.Open),
			High:     decimal.NewFromFloat(result.High),
			Low:      decimal.NewFromFloat(result.Low),
			Close:    decimal.NewFromFloat(result.Close),
			Volume:   decimal.NewFromFloat(result.Vol),
			Symbol:   s.spotSymbol(),
		}

		if err := repo.Upsert(ctx, base.ConvertToOHLCVSpot1m()); err != nil {
			s.Log.WithError(err).Error("backfill, Upsert, ")
			return err
		}
	}

	s.Log.WithFields(logger.Fields{
		"Symbol":  s.spotSymbol(),
		"Candles": len(series),
	}).Info("Spot candles inserted or updated in database")

	return nil
}

func (s *SpotCandles) determineStartPoint() error {
	s.Config.StartDt = s.Config.StartDt.Add(-time.Minute)
	s.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := s.DB.Model(&model.OHLCVSpot1m{}).
		Select("MAX(datetime)").
		Where("symbol = ?", s.spotSymbol()).
		Take(&latestTime)

	s.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			s.Log.
				WithError(result.Error).
				WithField("StartDt", s.Config.StartDt.String()).
				WithField("EndDt", s.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			s.Log.
				WithError(result.Error).
				Error("Failed to query latest datetime")
			return result.Error
		}
	}

	if latestTime.Valid {
		// Resume one interval before the last recorded candle so a partial
		// final candle is overwritten by the upsert.
		s.Config.StartDt = latestTime.Time.Add(-time.Minute)
		s.Log.
			WithField("StartDt", s.Config.StartDt.String()).
			WithField("EndDt", s.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		err := errors.New("no existing MAX(datetime) found")
		s.Log.
			WithError(err).
			WithField("StartDt", s.Config.StartDt.String()).
			WithField("EndDt", s.Config.EndDt.String()).
			Error("determineStartPoint invalid date found")
	}

	return nil
}

func (s *SpotCandles) fetchKlines() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(
		goex.Currency{Symbol: s.Config.Symbol},
		goex.Currency{Symbol: s.Config.Quote},
	)

	const millis = 1000
	klines, err := s.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1MIN,
		s.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", s.Config.StartDt.Unix()*millis).
			Optional("endTime", s.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}
