package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/notargets/kerneltuner/device"
	"github.com/notargets/kerneltuner/logger"
	"github.com/notargets/kerneltuner/tuner"
)

func tuneCmd() *cli.Command {
	return &cli.Command{
		Name:  "tune",
		Usage: "Run a tuning session from a YAML session file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "session",
				Aliases:  []string{"f"},
				Usage:    "path to the session file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "include per-candidate diagnostics",
			},
		},
		Action: runTune,
	}
}

func runTune(ctx context.Context, cmd *cli.Command) error {
	opts, err := tuner.LoadOptions(cmd.String("session"))
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	log := logger.Pretty(os.Stdout, level)

	dev, err := device.NewOCCA(deviceProps(opts))
	if err != nil {
		return err
	}
	defer dev.Free()

	t := tuner.New(dev, log)
	defer t.Free()

	if _, err := opts.Apply(t); err != nil {
		return err
	}

	var searchLog *os.File
	if opts.Reports.SearchLog != "" {
		searchLog, err = os.Create(opts.Reports.SearchLog)
		if err != nil {
			return fmt.Errorf("could not create search log: %w", err)
		}
		defer searchLog.Close()
		t.OutputSearchLog(searchLog)
	}

	if err := t.Tune(); err != nil {
		return err
	}

	if opts.Surrogate != nil {
		if err := t.ModelPrediction(tuner.ModelLinearRegression,
			opts.Surrogate.ValidationFraction, opts.Surrogate.TopK); err != nil {
			return err
		}
	}

	t.PrintToScreen()

	if opts.Reports.CSV != "" {
		if err := writeReport(opts.Reports.CSV, t.WriteCSV); err != nil {
			return err
		}
	}
	if opts.Reports.JSON != "" {
		err := writeReport(opts.Reports.JSON, func(w io.Writer) error {
			return t.WriteJSON(w, map[string]string{"session": cmd.String("session")})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// deviceProps assembles the OCCA property string for the requested
// platform and device.
func deviceProps(opts *tuner.Options) string {
	mode := opts.Mode
	if mode == "" {
		mode = "Serial"
	}
	switch mode {
	case "OpenCL":
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": %d, "device_id": %d}`,
			opts.PlatformID, opts.DeviceID)
	case "CUDA", "HIP":
		return fmt.Sprintf(`{"mode": %q, "device_id": %d}`, mode, opts.DeviceID)
	default:
		return fmt.Sprintf(`{"mode": %q}`, mode)
	}
}

func writeReport(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create report %s: %w", path, err)
	}
	defer file.Close()
	return write(file)
}
