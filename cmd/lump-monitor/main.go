// Command lump-monitor attaches to one LUMP UART device, keeps it
// synced, and republishes its descriptor and sample stream to Redis
// in an open-device/init/subscribe/signal-wait shape.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/lego-riskieren/lump-driver/internal/config"
	"github.com/lego-riskieren/lump-driver/internal/lump"
	"github.com/lego-riskieren/lump-driver/internal/telemetry"
	"github.com/lego-riskieren/lump-driver/internal/uart"
)

// pollInterval is how often the monitor loop checks the port for a
// state/sample change to publish. It is intentionally shorter than
// the default keep-alive period so a mode change is visible to Redis
// within one keep-alive cycle.
const pollInterval = 50 * time.Millisecond

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(*configPath, pflag.CommandLine)
	if err != nil {
		charmlog.Fatal("load config", "err", err)
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           parseLevel(cfg.Log.Level),
	})
	logger.Info("starting lump-monitor", "device", cfg.Port.Device, "redis", cfg.Redis.Addr)

	transport, err := uart.Open(cfg.Port.Device, cfg.Timing.ToTiming().HighBaud)
	if err != nil {
		logger.Fatal("open device", "device", cfg.Port.Device, "err", err)
	}

	sink, err := telemetry.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Port.Device)
	if err != nil {
		logger.Fatal("connect redis", "err", err)
	}
	defer sink.Close()

	port := lump.NewPort(transport, cfg.Timing.ToTiming(), logger)
	defer port.Close()

	stopCh := make(chan struct{})
	go monitorLoop(port, sink, logger, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	close(stopCh)
}

// monitorLoop republishes the port's current info/sample/status to
// Redis whenever they change, driven by a single device attachment
// rather than a fixed set of Redis fields.
func monitorLoop(port *lump.Port, sink *telemetry.RedisSink, logger *charmlog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastStatus lump.Status = -1
	var lastSampleMode int = -1
	var lastSampleTime time.Time
	var haveInfo bool

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		info, err := port.Info()
		status := lump.StatusOf(err)
		if status != lastStatus {
			if err := sink.PublishStatus(status); err != nil {
				logger.Error("publish status", "err", err)
			}
			lastStatus = status
		}
		if err == nil && !haveInfo {
			if err := sink.PublishInfo(info); err != nil {
				logger.Error("publish info", "err", err)
			}
			haveInfo = true
		}
		if err != nil {
			haveInfo = false
			lastSampleMode = -1
			lastSampleTime = time.Time{}
			continue
		}

		sample, err := port.Sample(-1)
		if err != nil {
			if !errors.Is(err, lump.ErrNoDevice) && !errors.Is(err, lump.ErrPending) {
				logger.Warn("sample", "err", err)
			}
			continue
		}
		if sample.Timestamp.Equal(lastSampleTime) {
			continue
		}
		lastSampleTime = sample.Timestamp
		if int(sample.Mode) != lastSampleMode {
			lastSampleMode = int(sample.Mode)
		}
		if err := sink.PublishSample(sample); err != nil {
			logger.Error("publish sample", "err", err)
		}
	}
}

func parseLevel(level string) charmlog.Level {
	switch level {
	case "debug":
		return charmlog.DebugLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}
