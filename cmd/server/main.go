package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thereceipt/receipt-emulator/internal/api"
	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/command"
	"github.com/thereceipt/receipt-emulator/internal/config"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"github.com/thereceipt/receipt-emulator/internal/logging"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
	"github.com/thereceipt/receipt-emulator/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./emulator.yaml)")
	port := flag.String("port", "", "API server port (overrides config)")
	listen := flag.String("listen", "", "Raw TCP listener address (overrides config)")
	serialDevice := flag.String("serial", "", "Serial device to read from (enables the serial source)")
	headless := flag.Bool("headless", false, "Run without the terminal viewer")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *port, *listen, *serialDevice)

	// The viewer owns the terminal, so stream logging goes to a file.
	if !*headless && (cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr") {
		cfg.Logging.Output = logging.DefaultFile
	}

	baseLogger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	panel := &panelWriter{}
	logger := baseLogger
	if !*headless {
		level, _ := logging.ParseLevel(cfg.Logging.Level)
		logger = logging.Tee(baseLogger, logging.WriterCore(panel, level))
	}
	defer logger.Sync()

	if err := run(cfg, logger, panel, *headless); err != nil {
		logger.Error("Emulator stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, port, listen, serialDevice string) {
	if port != "" {
		cfg.Server.Port = port
	}
	if listen != "" {
		cfg.Listener.Address = listen
	}
	if serialDevice != "" {
		cfg.Serial.Enabled = true
		cfg.Serial.Device = serialDevice
	}
}

func run(cfg *config.Config, logger *zap.Logger, panel *panelWriter, headless bool) error {
	profile := cfg.Profile()
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid paper profile: %w", err)
	}

	p := emulator.NewPrinter(profile, emulator.WithLogger(logging.Component(logger, "printer")))

	decoderOpts := []escpos.Option{
		escpos.WithEncoding(cfg.TextEncoding()),
		escpos.WithLogger(logging.Component(logger, "decoder")),
	}
	if cfg.Decoder.CarryOver {
		decoderOpts = append(decoderOpts, escpos.WithCarryOver())
	}
	decoder := escpos.NewDecoder(p, decoderOpts...)

	// Observers must be registered before the worker starts feeding.
	activity := make(chan struct{}, 1)
	decoder.OnActivity(func() {
		select {
		case activity <- struct{}{}:
		default:
		}
	})

	queue := printer.NewFeedQueue(p, decoder, logger, cfg.Queue.MaxJobs)
	defer queue.Stop()

	var captures *capture.Store
	if cfg.Capture.Enabled {
		store, err := capture.New(cfg.Capture.Dir, cfg.Capture.MaxEntries, logger)
		if err != nil {
			return fmt.Errorf("failed to open capture store: %w", err)
		}
		captures = store
		queue.OnFeed(func(job printer.FeedJob, data []byte) {
			if strings.HasPrefix(job.Source, "replay:") {
				return
			}
			if _, err := captures.Save(job.Source, data); err != nil {
				logger.Warn("Failed to capture input", zap.String("job_id", job.ID), zap.Error(err))
			}
		})
	}

	render := renderer.New(cfg.Paper.FontDirs...)
	pool := printer.NewClientPool()

	server := api.NewServer(queue, pool, captures, render, logger)
	queue.OnFeed(func(job printer.FeedJob, _ []byte) {
		server.BroadcastJob(job)
	})

	info := tui.Info{
		API:     "disabled",
		Version: Version,
		Columns: renderer.Columns(profile),
	}

	// Byte sources
	listener := printer.NewListener(cfg.Listener.Address, cfg.Listener.IdleTimeout, queue, pool, logger)
	if cfg.Listener.Enabled {
		if err := listener.Start(); err != nil {
			return fmt.Errorf("failed to start listener: %w", err)
		}
		defer listener.Close()
		info.Listener = listener.Addr().String()
	}

	if cfg.Serial.Enabled {
		stopSerial := startSerial(cfg.Serial, queue, pool, logger)
		defer stopSerial()
		info.Serial = cfg.Serial.Device
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		addr := cfg.GetServerAddr()
		info.API = addr
		go func() {
			logger.Info("Starting API server", zap.String("addr", addr))
			if err := server.Run(addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
				serverErr <- err
			}
		}()
	}

	var viewer *tui.TViewApp
	viewerDone := make(chan struct{})
	if headless {
		logger.Info("Running headless",
			zap.String("api", info.API),
			zap.String("listener", info.Listener),
			zap.String("serial", info.Serial),
		)
	} else {
		executor := command.NewExecutor(queue, pool, captures, render, logger)
		viewer = tui.NewTViewApp(queue, pool, executor, info)
		panel.Set(viewer.LogWriter())
		queue.OnReset(viewer.RequestRefresh)
		go func() {
			defer close(viewerDone)
			if err := viewer.Run(); err != nil {
				logger.Error("TUI error", zap.Error(err))
			}
		}()
	}

	// Fan activity out to the websocket hub and the viewer
	go func() {
		for range activity {
			server.BroadcastActivity()
			if viewer != nil {
				viewer.RequestRefresh()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case <-viewerDone:
		logger.Info("Viewer closed, shutting down")
	}

	if viewer != nil {
		panel.Set(nil)
		viewer.Stop()
		<-viewerDone
	}

	pool.DisconnectAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}

	return runErr
}

// startSerial opens the configured serial device and watches the port list
// so the device is reopened when it comes back. The returned func stops both.
func startSerial(cfg config.SerialConfig, queue *printer.FeedQueue, pool *printer.ClientPool, logger *zap.Logger) func() {
	var mu sync.Mutex
	var current *printer.SerialListener

	open := func() {
		mu.Lock()
		defer mu.Unlock()

		if current != nil {
			return
		}
		sl := printer.NewSerialListener(cfg.Device, cfg.Baud, queue, pool, logger)
		if err := sl.Start(); err != nil {
			logger.Warn("Serial device not available", zap.String("device", cfg.Device), zap.Error(err))
			return
		}
		current = sl
	}

	closeCurrent := func() {
		mu.Lock()
		defer mu.Unlock()

		if current != nil {
			current.Close()
			current = nil
		}
	}

	monitor := printer.NewPortMonitor(printer.ScanSerialPorts, cfg.ScanInterval, logger)
	monitor.OnPortAdded(func(port string) {
		logger.Info("Serial port appeared", zap.String("port", port))
		if port == cfg.Device {
			open()
		}
	})
	monitor.OnPortRemoved(func(port string) {
		logger.Info("Serial port removed", zap.String("port", port))
		if port == cfg.Device {
			closeCurrent()
		}
	})

	open()
	monitor.Start()

	return func() {
		monitor.Stop()
		closeCurrent()
	}
}

// panelWriter forwards log lines to the viewer's log panel once it exists
type panelWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (p *panelWriter) Set(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.w = w
}

func (p *panelWriter) Write(b []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.w == nil {
		return len(b), nil
	}
	return p.w.Write(b)
}
