package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/realdoomsboygaming/Kode-Runner/runner"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "kode-runner",
		Usage: "run code sent over WebSocket connections and stream the terminal output back",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
				Value: "0.0.0.0:8080",
			},
			&cli.StringFlag{
				Name:  "interpreter",
				Usage: "The interpreter binary invoked on each code payload.",
				Value: "node",
			},
			&cli.StringFlag{
				Name:  "unit-suffix",
				Usage: "File suffix for materialized code payloads.",
				Value: ".js",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Directory where code payloads are written before execution. Created if missing.",
			},
			&cli.StringFlag{
				Name:  "quiet-interval",
				Usage: "Duration with no interpreter output after which a run's relay ends.",
				Value: "1s",
			},
			&cli.StringFlag{
				Name:  "checker",
				Usage: "The static-analysis binary behind the diagnostics route.",
				Value: "pyright",
			},
			&cli.StringFlag{
				Name:  "checker-suffix",
				Usage: "File suffix for code payloads given to the checker.",
				Value: ".py",
			},
			&cli.StringSliceFlag{
				Name:  "checker-arg",
				Usage: "Argument passed to the checker before the payload path. Repeatable.",
				Value: cli.NewStringSlice("--outputjson"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging.",
			},
		},
		Action: func(ctx *cli.Context) error {
			listenAddr := ctx.String("listen-addr")
			interpreter := ctx.String("interpreter")
			unitSuffix := ctx.String("unit-suffix")
			workDir := ctx.String("work-dir")
			quietIntervalStr := ctx.String("quiet-interval")

			quietInterval, err := time.ParseDuration(quietIntervalStr)
			if err != nil {
				return fmt.Errorf("parsing quiet interval: %w", err)
			}

			opts := []runner.Option{
				runner.WithListenAddr(listenAddr),
				runner.WithInterpreter(interpreter, unitSuffix),
				runner.WithQuietInterval(quietInterval),
				runner.WithChecker(ctx.String("checker"), ctx.String("checker-suffix"), ctx.StringSlice("checker-arg")...),
			}
			if workDir != "" {
				opts = append(opts, runner.WithWorkDir(workDir))
			}
			if !ctx.Bool("debug") {
				opts = append(opts, runner.WithLogLevel(zapcore.InfoLevel))
			}

			r, err := runner.New(opts...)
			if err != nil {
				return fmt.Errorf("building runner: %w", err)
			}

			err = r.Run()
			if err != nil {
				if err != http.ErrServerClosed {
					return err
				}
			}

			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
