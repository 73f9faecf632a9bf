package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"velocity-control-core/longitudinal"
	"velocity-control-core/utils"
)

func main() {
	var (
		iface     = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath   = flag.String("map", "config/can_map.csv", "Path to the CAN frame catalog")
		cfgPath   = flag.String("config", "", "Controller config JSON (defaults used when empty)")
		trajPath  = flag.String("trajectory", "", "Initial trajectory JSON file (optional)")
		trajAddr  = flag.String("traj-udp", ":6789", "UDP listen address for trajectory updates (empty to disable)")
		telemetry = flag.String("telemetry", "", "Telemetry CSV output path (empty to disable)")
		logLevel  = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("velocity_control.log", utils.ParseLogLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open velocity_control.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctrlCfg := longitudinal.DefaultConfig()
	if *cfgPath != "" {
		ctrlCfg, err = longitudinal.LoadConfig(*cfgPath)
		if err != nil {
			log.Critical("Config load failed: %v", err)
			os.Exit(1)
		}
	}

	cfg := RunnerConfig{
		Interface:      *iface,
		MapPath:        *mapPath,
		TrajectoryPath: *trajPath,
		TrajectoryAddr: *trajAddr,
		TelemetryPath:  *telemetry,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, ctrlCfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
