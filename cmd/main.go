package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"edgeengine/cmd/spotcandles"
	"edgeengine/cmd/trader"
	"edgeengine/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "EdgeEngine CMD"
	app.Usage = "The EdgeEngine command line interface"

	app.Commands = []cli.Command{
		traderCMD,
		spotCandlesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	traderCMD = cli.Command{
		Name:        "trader",
		Usage:       "run Trader",
		Action:      traderAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the window trading loop`,
	}
	spotCandlesCMD = cli.Command{
		Name:        "spot_candles",
		Usage:       "run spot candle backfill",
		Action:      spotCandlesAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill one-minute spot candles`,
	}
)

func traderAction(_ *cli.Context) error {

	logrus.Info("Starting trader CMD")
	logrus.WithField("cmd", "trader")

	t := &trader.Trader{}
	err := t.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// spotCandlesAction backfills 1m candles for the configured symbol.
func spotCandlesAction(_ *cli.Context) error {

	logrus.Info("Starting spot candle CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	candles := &spotcandles.SpotCandles{
		Log: logrus.WithField("cmd", "spot_candles"),
		DB:  database.MainDB,
	}

	err := candles.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting spot candle cmd")
		return err
	}

	return nil
}
