package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"allocengine/cmd/engine"
	"allocengine/cmd/ohlcvdaily"
	"allocengine/src/database"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "AllocEngine CMD"
	app.Usage = "The allocation engine command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		ohlcvDailyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the allocation engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the allocation loop, kill-switch monitor and HTTP server`,
	}
	ohlcvDailyCMD = cli.Command{
		Name:        "ohlcv_daily",
		Usage:       "backfill daily candles",
		Action:      ohlcvDailyAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill the daily candle cache used by the liquidity guardrail`,
	}
)

func engineAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")
	logrus.WithField("cmd", "engine")

	eng := &engine.Engine{}
	err := eng.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// ohlcvDailyAction backfills daily OHLCV candles for the configured symbols.
func ohlcvDailyAction(_ *cli.Context) error {

	logrus.Info("Starting OHLCV daily CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	_ohlcv := &ohlcvdaily.OHLCVDaily{
		Log: logrus.WithField("cmd", "ohlcv_daily"),
		DB:  database.MainDB,
	}

	err := _ohlcv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}
