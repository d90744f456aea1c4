// Command odyssey runs the print orchestrator as a standalone process: it
// loads a configuration file, opens the serial and framebuffer devices it
// names, wires broker -> gcode -> display -> printer in dependency order,
// and drives the orchestrator until the process is asked to stop.
//
// Grounded on main.rs (original_source) for the overall wiring shape
// (parse flags, load config, open devices, build and run the state
// machine) and on cobra's own cmd/cobra for command and flag layout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/contrapposto/odyssey/broker"
	"github.com/contrapposto/odyssey/config"
	"github.com/contrapposto/odyssey/display"
	"github.com/contrapposto/odyssey/display/framebuffer"
	"github.com/contrapposto/odyssey/gcode"
	"github.com/contrapposto/odyssey/printer"
	_ "github.com/contrapposto/odyssey/printfile/goo"
	"github.com/contrapposto/odyssey/printfile/sl1"
)

func main() {
	var configPath string
	var logLevel string

	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Control firmware for a bottom-up MSLA resin 3D printer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./odyssey.toml", "path to the configuration file")
	root.Flags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (trace, debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("odyssey: parsing log level: %w", err)
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	entry.Info("starting odyssey")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("odyssey: loading configuration: %w", err)
	}

	port, err := openSerialPort(cfg.Printer.SerialDevice, cfg.Printer.Baud)
	if err != nil {
		return err
	}
	defer port.Close()

	brk := broker.New(cfg.Printer.SerialDevice, port, entry)

	client := gcode.NewClient(gcode.Config{
		Boot:          cfg.Gcode.Boot,
		Shutdown:      cfg.Gcode.Shutdown,
		Home:          cfg.Gcode.Home,
		Move:          cfg.Gcode.Move,
		PrintStart:    cfg.Gcode.PrintStart,
		PrintEnd:      cfg.Gcode.PrintEnd,
		StartLayer:    cfg.Gcode.StartLayer,
		CureStart:     cfg.Gcode.CureStart,
		CureEnd:       cfg.Gcode.CureEnd,
		MoveSync:      cfg.Gcode.MoveSync,
		MoveTimeout:   cfg.Gcode.MoveTimeout,
		StatusCheck:   cfg.Gcode.StatusCheck,
		StatusDesired: cfg.Gcode.StatusDesired,
		StatusTimeout: cfg.Gcode.StatusTimeout,
	}, brk, entry)
	defer client.Close()

	fb := framebuffer.New(cfg.Display.FramebufferDevice, cfg.Display.ScreenWidth, cfg.Display.ScreenHeight, entry)
	sink := display.NewSink(fb, cfg.Display.BitDepth, entry)

	printerCfg := printer.Config{
		MaxZMicrons:               cfg.Printer.MaxZMicrons,
		DefaultLiftMicrons:        cfg.Printer.DefaultLiftMicrons,
		DefaultUpSpeedMMPerSec:    cfg.Printer.DefaultUpSpeedMMPerSec,
		DefaultDownSpeedMMPerSec:  cfg.Printer.DefaultDownSpeedMMPerSec,
		DefaultWaitBeforeExposure: cfg.Printer.DefaultWaitBeforeExpose,
		DefaultWaitAfterExposure:  cfg.Printer.DefaultWaitAfterExpose,
		PauseLiftMicrons:          cfg.Printer.PauseLiftMicrons,
	}

	operations := make(chan printer.Operation, 100)
	p := printer.New(printerCfg, client, sink, sl1.DecodeBitmap, operations, entry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	brokerDone := make(chan error, 1)
	go func() { brokerDone <- brk.Run(ctx) }()

	err = p.Run(ctx)
	hostRequestedStop := ctx.Err() != nil
	cancel()

	if brkErr := <-brokerDone; brkErr != nil && !hostRequestedStop && err == nil {
		// The broker's reader or writer task failed on its own, independent
		// of host cancellation and of any fault the orchestrator already
		// reported (spec.md §6, exit code 1 "either serial task").
		err = brkErr
	}

	if err != nil {
		entry.WithError(err).Error("odyssey exiting with a fatal error")
		return err
	}
	entry.Info("odyssey shut down cleanly")
	return nil
}
