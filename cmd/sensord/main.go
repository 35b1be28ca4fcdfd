package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/api"
	"github.com/Atharv714/Safe-Passage/internal/config"
	"github.com/Atharv714/Safe-Passage/internal/export"
	"github.com/Atharv714/Safe-Passage/internal/logging"
	"github.com/Atharv714/Safe-Passage/internal/metrics"
	"github.com/Atharv714/Safe-Passage/internal/server"
	"github.com/Atharv714/Safe-Passage/internal/store"
	"github.com/Atharv714/Safe-Passage/internal/stunutil"
	"github.com/Atharv714/Safe-Passage/internal/value"
)

const usage = `sensord - phone sensor and pothole telemetry ingest

Usage:
  sensord init --config <path> [--listen :5000] [--max-events N] [--static-dir <dir>] [--stun <servers>]
  sensord serve [--config <path>] [--env-file .env] [--listen :5000] [--max-events N] [--static-dir <dir>] [--stun <servers>]
  sensord probe [--config <path>] [--stun <servers>] [--timeout 3s]
  sensord status [--addr <host:port>]
  sensord last [--addr <host:port>]
  sensord send sensor|pothole [--addr <host:port>] [--data <json>]
  sensord events [--addr <host:port>] [--limit N]
  sensord export csv --out <file> [--addr <host:port>] [--limit N]
`

const defaultAddr = "127.0.0.1:5000"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "serve":
		handleServe(os.Args[2:])
	case "probe":
		handleProbe(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "last":
		handleLast(os.Args[2:])
	case "send":
		handleSend(os.Args[2:])
	case "events":
		handleEvents(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config to write")
	listen := fs.String("listen", "", "listen address")
	maxEvents := fs.Int("max-events", 0, "pothole events kept in memory")
	staticDir := fs.String("static-dir", "", "directory served at /")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}

	var cfg config.Config
	overrides(*listen, *maxEvents, *staticDir, *stunList).Apply(&cfg)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s (listen=%s max_events=%d)\n", *configPath, cfg.Server.Listen, cfg.Server.MaxEvents)
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	envFile := fs.String("env-file", ".env", "dotenv file with SENSORD_* overrides")
	listen := fs.String("listen", "", "listen address")
	maxEvents := fs.Int("max-events", 0, "pothole events kept in memory")
	staticDir := fs.String("static-dir", "", "directory served at /")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	fileEnv, err := config.ReadEnvFile(*envFile)
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Resolve(*configPath, config.Lookup(fileEnv), overrides(*listen, *maxEvents, *staticDir, *stunList))
	if err != nil {
		fatal(err)
	}

	closer := logging.Setup(cfg.Log, os.Stderr)

	events, err := store.NewEventLog(cfg.Server.MaxEvents)
	if err != nil {
		fatal(err)
	}
	srv := server.NewServer(cfg.Server, store.NewSampleRegister(), events, metrics.NewRecorder())

	ctx, cancel := signalContext()
	defer cancel()

	if len(cfg.Server.STUNServers) > 0 {
		res, err := stunutil.Discover(ctx, cfg.Server.STUNServers, cfg.Server.STUNTimeout)
		if err != nil {
			log.Printf("stun discovery failed: %v", err)
		} else {
			endpoint := stunutil.Endpoint(res.Host(), cfg.Server.Listen)
			log.Printf("public endpoint %s via %s mapped=%s rtt=%s", endpoint, res.Server, res.Mapped, res.RTT.Round(time.Millisecond))
			srv.SetPublicAddr(endpoint)
		}
	}

	err = srv.ListenAndServe(ctx)
	_ = closer.Close()
	fatal(err)
}

func handleProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	timeout := fs.Duration("timeout", 0, "per-server timeout")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	overrides("", 0, "", *stunList).Apply(&cfg)
	if *timeout > 0 {
		cfg.Server.STUNTimeout = *timeout
	}
	config.ApplyDefaults(&cfg)
	if len(cfg.Server.STUNServers) == 0 {
		fatal(errors.New("--stun or server.stun_servers is required"))
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := stunutil.Discover(ctx, cfg.Server.STUNServers, cfg.Server.STUNTimeout)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "%-24s  %-22s  %-8s  %s\n", "SERVER", "MAPPED", "RTT", "ENDPOINT")
	fmt.Fprintf(os.Stdout, "%-24s  %-22s  %-8s  %s\n",
		strings.TrimPrefix(res.Server, "stun:"), res.Mapped, res.RTT.Round(time.Millisecond),
		stunutil.Endpoint(res.Host(), cfg.Server.Listen))
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*addr))
	resp, err := client.Health(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "status=%s events=%d/%d public_addr=%s time=%s\n",
		resp.Status, resp.Events, resp.Capacity, orDash(resp.PublicAddr), resp.Timestamp)
}

func handleLast(args []string) {
	fs := flag.NewFlagSet("last", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*addr))
	sample, err := client.LatestSample(context.Background())
	if errors.Is(err, api.ErrNoSample) {
		fmt.Fprintln(os.Stdout, "no sample")
		return
	}
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, sample.String())
}

func handleSend(args []string) {
	if len(args) == 0 || (args[0] != "sensor" && args[0] != "pothole") {
		fmt.Fprint(os.Stderr, "send requires sensor or pothole\n")
		os.Exit(2)
	}
	kind := args[0]

	fs := flag.NewFlagSet("send "+kind, flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	data := fs.String("data", "", "JSON payload (default: current ts, plus a zero gyro for sensor)")
	_ = fs.Parse(args[1:])

	payload, err := sendPayload(kind, *data)
	if err != nil {
		fatal(err)
	}

	client := api.NewClient(normalizeBaseURL(*addr))
	ctx := context.Background()
	switch kind {
	case "sensor":
		resp, err := client.SubmitSample(ctx, payload)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "status=%s time=%s data=%s\n", resp.Status, resp.Timestamp, resp.Data)
	case "pothole":
		resp, err := client.SubmitPothole(ctx, payload)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "status=%s stored=%v seq=%d count=%d\n", resp.Status, resp.Stored, resp.Seq, resp.Count)
	}
}

// sendPayload parses data, or builds a minimal valid payload for kind when
// data is empty.
func sendPayload(kind, data string) (value.Value, error) {
	if strings.TrimSpace(data) != "" {
		v, err := value.Parse([]byte(data))
		if err != nil {
			return value.Value{}, fmt.Errorf("--data: %w", err)
		}
		return v, nil
	}
	ts := value.FromNumber(float64(time.Now().UnixMilli()))
	if kind == "sensor" {
		zero := value.FromNumber(0)
		return value.FromFields(
			value.Field{Key: "ts", Value: ts},
			value.Field{Key: "gyro", Value: value.FromFields(
				value.Field{Key: "x", Value: zero},
				value.Field{Key: "y", Value: zero},
				value.Field{Key: "z", Value: zero},
			)},
		), nil
	}
	return value.FromFields(value.Field{Key: "ts", Value: ts}), nil
}

func handleEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	limit := fs.Int("limit", 0, "max events (server default when 0)")
	_ = fs.Parse(args)

	client := api.NewClient(normalizeBaseURL(*addr))
	resp, err := client.Potholes(context.Background(), *limit)
	if err != nil {
		fatal(err)
	}
	if len(resp.Items) == 0 {
		fmt.Fprintln(os.Stdout, "no events")
		return
	}

	fmt.Fprintf(os.Stdout, "%-6s  %-24s  %-15s  %-15s  %s\n", "SEQ", "RECEIVED", "IP", "CLIENT_TS", "LOCATION")
	for _, ev := range resp.Items {
		received := ""
		if !ev.ReceivedAt.IsZero() {
			received = ev.ReceivedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(os.Stdout, "%-6d  %-24s  %-15s  %-15s  %s\n", ev.Seq, received, ev.SourceAddr, ev.ClientTS, ev.Location)
	}
	fmt.Fprintf(os.Stdout, "%d shown, %d retained\n", len(resp.Items), resp.Count)
}

func handleExport(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "export subcommand required\n")
		os.Exit(2)
	}
	if args[0] != "csv" {
		fmt.Fprintf(os.Stderr, "unknown export format %q\n", args[0])
		os.Exit(2)
	}

	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	out := fs.String("out", "", "output file")
	limit := fs.Int("limit", 0, "max events (server default when 0)")
	_ = fs.Parse(args[1:])

	if *out == "" {
		fatal(errors.New("--out is required"))
	}

	client := api.NewClient(normalizeBaseURL(*addr))
	resp, err := client.Potholes(context.Background(), *limit)
	if err != nil {
		fatal(err)
	}

	f, err := os.Create(*out)
	if err != nil {
		fatal(err)
	}
	if err := export.WriteEventsCSV(f, resp.Items); err != nil {
		_ = f.Close()
		fatal(err)
	}
	if err := f.Close(); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "exported %d events to %s\n", len(resp.Items), *out)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrides(listen string, maxEvents int, staticDir, stunList string) config.Overrides {
	o := config.Overrides{
		Listen:    listen,
		MaxEvents: maxEvents,
		StaticDir: staticDir,
	}
	if stunList != "" {
		o.STUNServers = config.SplitList(stunList)
	}
	return o
}

func normalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
