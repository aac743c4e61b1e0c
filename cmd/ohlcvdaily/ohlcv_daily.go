package ohlcvdaily

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

	"allocengine/src/model"
	"allocengine/src/repository"
	"allocengine/src/utils"
)

// OHLCVDaily backfills the daily candle cache that feeds the liquidity
// guardrail's average-daily-value fallback.
type OHLCVDaily struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (o *OHLCVDaily) Start() error {
	o.Config = GetConfig()
	o.exchange = o.newBinanceInstance()

	ctx := context.Background()
	repo := repository.NewOHLCVRepositoryWithDB(o.DB)

	for _, symbol := range o.Config.Symbols {
		pair := symbol + "_" + o.Config.Quote

		if o.Config.AutoMode {
			if err := o.determineStartPoint(pair); err != nil {
				return err
			}
		}

		series, err := o.fetchOHLCVSeries(symbol)
		if err != nil {
			return err
		}

		candles := o.toCandles(series)
		if err := repo.Upsert(ctx, candles); err != nil {
			o.Log.WithError(err).WithField("symbol", pair).Error("daily candle upsert failed")
			return err
		}

		o.Log.WithFields(logger.Fields{
			"symbol":  pair,
			"candles": len(candles),
		}).Info("daily candles stored")
	}

	return nil
}

func (*OHLCVDaily) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// toCandles normalizes exchange klines to midnight-UTC daily rows.
func (o *OHLCVDaily) toCandles(series []goex.Kline) []model.OHLCVDaily {
	candles := make([]model.OHLCVDaily, 0, len(series))
	for i := range series {
		k := series[i]
		candles = append(candles, model.OHLCVDaily{
			Symbol:   k.Pair.String(),
			Datetime: utils.ResetTime(time.Unix(k.Timestamp, 0), "day"),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}
	return candles
}

func (o *OHLCVDaily) determineStartPoint(pair string) error {
	o.Config.StartDt = o.Config.StartDt.Add(-24 * time.Hour)
	o.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := o.DB.Model(&model.OHLCVDaily{}).
		Select("MAX(datetime)").
		Where("symbol = ?", pair).
		Take(&latestTime)

	o.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			o.Log.
				WithError(result.Error).
				WithField("StartDt", o.Config.StartDt.String()).
				WithField("EndDt", o.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			o.Log.
				WithError(result.Error).
				Error("Failed to query latest datetime")
			return result.Error
		}
	}

	if latestTime.Valid {
		// Re-fetch the last stored day so a partial candle gets overwritten.
		o.Config.StartDt = latestTime.Time.Add(-24 * time.Hour)
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		err := errors.New("no existing MAX(datetime) found")
		o.Log.
			WithError(err).
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Error("determineStartPoint invalid date found")
	}

	return nil
}

func (o *OHLCVDaily) fetchOHLCVSeries(symbol string) ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: o.Config.Quote})

	const millis = 1000
	klines, err := o.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1DAY,
		o.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", o.Config.StartDt.Unix()*millis).
			Optional("endTime", o.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}
