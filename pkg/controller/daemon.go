package controller

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/config"
	"github.com/charlie0129/vstab/pkg/events"
	"github.com/charlie0129/vstab/pkg/hal"
	"github.com/charlie0129/vstab/pkg/settings"
	"github.com/charlie0129/vstab/pkg/tap"
	"github.com/charlie0129/vstab/pkg/tick"
)

const (
	simReference = 488
	simMains     = 230
)

// openBoard connects to the board selected by the config.
func openBoard(conf config.Config) (*hal.Board, error) {
	var board *hal.Board
	switch conf.Backend() {
	case config.BackendSerial:
		board = hal.New(conf.SerialPort(), conf.SerialBaud())
	default:
		var sim *hal.Sim
		board, sim = hal.NewMock()
		sim.SetPlant(NewPlant(tap.DefaultTable, simReference, conf.CalibrationVoltage(), simMains).ADC)
		logrus.Warn("using the simulated board, no relays will be switched")
	}

	if err := board.Open(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s board", conf.Backend())
	}
	return board, nil
}

// Run starts the regulator daemon and blocks until SIGINT or SIGTERM.
func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrap(err, "invalid config")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config. Running state machines keep the
	// values they were built with until restart.
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded, restart the daemon to apply")
		}
	}()

	board, err := openBoard(conf)
	if err != nil {
		return err
	}
	defer func() {
		logrus.Info("closing board connection")
		if err := board.Close(); err != nil {
			logrus.Errorf("failed to close board connection: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := tick.NewSource()
	go clock.Run(ctx)

	hub := events.NewHub()
	ctrl, err := New(Options{
		IO:                 board,
		Clock:              clock,
		Store:              settings.NewStore(settings.NewFilePage(conf.SettingsPath())),
		Hub:                hub,
		Debounce:           conf.DebounceMs(),
		Thresholds:         conf.Thresholds(),
		CalibrationVoltage: conf.CalibrationVoltage(),
		LoopInterval:       time.Duration(conf.LoopIntervalMs()) * time.Millisecond,
		BootButtonHoldMs:   conf.BootButtonHoldMs(),
	})
	if err != nil {
		return err
	}

	if err := ctrl.Boot(); err != nil {
		return pkgerrors.Wrap(err, "failed to boot regulator")
	}

	srv := &http.Server{
		Handler: setupRoutes(ctrl, hub),
		// Event streams end with the daemon context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// A stale socket from an unclean exit would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server failed: %v", err)
			cancel()
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("control loop exited unexpectedly: %v", err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case <-ctx.Done():
		logrus.Info("shutting down after a fatal error")
	}

	cancel()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	<-loopDone

	logrus.Info("opening protection relay")
	if err := ctrl.Shutdown(); err != nil {
		logrus.Errorf("failed to leave the board in a safe state: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
