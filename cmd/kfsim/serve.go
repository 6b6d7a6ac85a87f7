package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kfsim-go/config"
	"kfsim-go/logging"
	"kfsim-go/noise"
	"kfsim-go/server"
	"kfsim-go/sim"
	"kfsim-go/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation with the websocket and UDP front ends",
		RunE:  serve,
	}
	cmd.Flags().Int("http", 0, "HTTP/WebSocket port (overrides config)")
	cmd.Flags().Int("udp", 0, "UDP cursor port, -1 to disable (overrides config)")
	cmd.Flags().String("static", "", "Directory served at / (overrides config)")
	cmd.Flags().Float64("update-hz", 0, "Filter update rate (overrides config)")
	cmd.Flags().Uint64("seed", 0, "Noise seed, 0 for time based (overrides config)")
	cmd.Flags().Bool("run", false, "Start with the simulation running")
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetInt("http"); v > 0 {
		cfg.Server.HTTPPort = v
	}
	if v, _ := cmd.Flags().GetInt("udp"); v != 0 {
		cfg.Server.UDPPort = v
	}
	if v, _ := cmd.Flags().GetString("static"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v, _ := cmd.Flags().GetFloat64("update-hz"); v > 0 {
		cfg.Loop.UpdateHz = v
	}
	if v, _ := cmd.Flags().GetUint64("seed"); v != 0 {
		cfg.Seed = v
	}
	if v, _ := cmd.Flags().GetBool("run"); v {
		cfg.Controls.IsRunning = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg)
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	lg := logging.GetLog("serve")

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	engine := sim.NewEngine(noise.NewSeeded(seed), cfg.Loop.UpdateHz)
	m := server.NewMetrics()
	runner := server.NewRunner(engine, cfg.Controls, cfg.Loop, m)

	webSvr := web.NewServer(runner, web.NewHub(m.Clients), m)
	runner.Subscribe(webSvr.Publish)

	errc := make(chan error, 2)
	go func() { errc <- webSvr.Start(ctx, cfg.Server.HTTPPort, cfg.Server.StaticDir) }()

	if cfg.Server.UDPPort > 0 {
		udpSvr, err := server.NewUdpServer(cfg.Server.UDPPort, runner, m)
		if err != nil {
			return err
		}
		go udpSvr.Start()
		defer udpSvr.Stop()
	}

	go func() { errc <- runner.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	lg.Info("Shutting down...")
	return nil
}
