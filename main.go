// Command webpad turns browsers into virtual gamepads.
//
// Without a subcommand it runs the HTTP server exposing the controller
// WebSocket, the admin REST API, an /mcp HTTP endpoint and the browser client.
// Subcommands:
//   - mcp: runs an MCP stdio server against a running webpad server
//   - init-config: writes the default settings file
//   - validate-config: checks settings files
//
// Settings come from an optional JSON file, overridden by WEBPAD_* environment
// variables and then by flags. A .env file in the working directory is loaded
// first.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/webpad/api"
	"github.com/wricardo/webpad/pad/config"
	"github.com/wricardo/webpad/pad/device"
	"github.com/wricardo/webpad/pad/session"
	"github.com/wricardo/webpad/transport/mcp"
	"github.com/wricardo/webpad/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "webpad"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Error loading .env file")
		}
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Fatal("webpad failed")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "Serve browser gamepads as virtual controllers",
		Version: Version,
		Flags:   serverFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server against a running webpad server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server-url",
						Value:   "http://localhost:8080",
						Usage:   "base URL of the webpad server",
						Sources: cli.EnvVars("WEBPAD_SERVER_URL"),
					},
				},
				Action: runStdioMCP,
			},
			{
				Name:  "init-config",
				Usage: "Write the default settings file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "webpad.json", Usage: "file to write"},
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: runInitConfig,
			},
			{
				Name:      "validate-config",
				Usage:     "Check settings files",
				ArgsUsage: "FILE...",
				Action:    runValidateConfig,
			},
		},
	}
}

// serverFlags are defined on the root command and visible to subcommands.
func serverFlags() []cli.Flag {
	d := config.Default()
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "settings file (JSON)", Sources: cli.EnvVars("WEBPAD_CONFIG")},
		&cli.StringFlag{Name: "host", Value: d.Host, Usage: "HTTP server host", Sources: cli.EnvVars("WEBPAD_HOST")},
		&cli.IntFlag{Name: "port", Value: d.Port, Usage: "HTTP server port", Sources: cli.EnvVars("WEBPAD_PORT", "PORT")},
		&cli.StringFlag{Name: "public-dir", Value: d.PublicDir, Usage: "directory served at /", Sources: cli.EnvVars("WEBPAD_PUBLIC_DIR")},
		&cli.StringFlag{Name: "driver", Value: d.Driver, Usage: "device driver (memory, uinput)", Sources: cli.EnvVars("WEBPAD_DRIVER")},
		&cli.StringFlag{Name: "device-name", Value: d.DeviceName, Usage: "product name of created controllers", Sources: cli.EnvVars("WEBPAD_DEVICE_NAME")},
		&cli.StringFlag{Name: "device-path", Value: d.DevicePath, Usage: "uinput device node", Sources: cli.EnvVars("WEBPAD_DEVICE_PATH")},
		&cli.Int64Flag{Name: "max-message-size", Value: d.MaxMessageSize, Usage: "largest accepted frame in bytes", Sources: cli.EnvVars("WEBPAD_MAX_MESSAGE_SIZE")},
		&cli.DurationFlag{Name: "pong-wait", Value: d.PongWait.Duration, Usage: "idle time before a silent client is dropped", Sources: cli.EnvVars("WEBPAD_PONG_WAIT")},
		&cli.DurationFlag{Name: "write-wait", Value: d.WriteWait.Duration, Usage: "deadline for control writes", Sources: cli.EnvVars("WEBPAD_WRITE_WAIT")},
		&cli.StringSliceFlag{Name: "allowed-origin", Usage: "origin allowed to connect (repeatable, default any)", Sources: cli.EnvVars("WEBPAD_ALLOWED_ORIGINS")},
		&cli.Float64Flag{Name: "connect-rate", Value: d.ConnectRate, Usage: "new connections per second, 0 for unlimited", Sources: cli.EnvVars("WEBPAD_CONNECT_RATE")},
		&cli.IntFlag{Name: "connect-burst", Value: d.ConnectBurst, Usage: "connections allowed in a burst", Sources: cli.EnvVars("WEBPAD_CONNECT_BURST")},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: d.ShutdownTimeout.Duration, Usage: "time allowed for sessions to close on exit", Sources: cli.EnvVars("WEBPAD_SHUTDOWN_TIMEOUT")},
		&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: cli.EnvVars("WEBPAD_DEBUG")},
	}
}

// loadSettings reads the settings file and applies every flag or environment
// variable that was explicitly set on top of it.
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	s, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		s.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Port = cmd.Int("port")
	}
	if cmd.IsSet("public-dir") {
		s.PublicDir = cmd.String("public-dir")
	}
	if cmd.IsSet("driver") {
		s.Driver = cmd.String("driver")
	}
	if cmd.IsSet("device-name") {
		s.DeviceName = cmd.String("device-name")
	}
	if cmd.IsSet("device-path") {
		s.DevicePath = cmd.String("device-path")
	}
	if cmd.IsSet("max-message-size") {
		s.MaxMessageSize = cmd.Int64("max-message-size")
	}
	if cmd.IsSet("pong-wait") {
		s.PongWait = config.Duration{Duration: cmd.Duration("pong-wait")}
	}
	if cmd.IsSet("write-wait") {
		s.WriteWait = config.Duration{Duration: cmd.Duration("write-wait")}
	}
	if cmd.IsSet("allowed-origin") {
		s.AllowedOrigins = cmd.StringSlice("allowed-origin")
	}
	if cmd.IsSet("connect-rate") {
		s.ConnectRate = cmd.Float64("connect-rate")
	}
	if cmd.IsSet("connect-burst") {
		s.ConnectBurst = cmd.Int("connect-burst")
	}
	if cmd.IsSet("shutdown-timeout") {
		s.ShutdownTimeout = config.Duration{Duration: cmd.Duration("shutdown-timeout")}
	}
	if cmd.IsSet("ngrok") {
		s.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		s.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		s.Ngrok.Domain = cmd.String("ngrok-domain")
	}
	if cmd.IsSet("debug") {
		s.Debug = cmd.Bool("debug")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func newLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// localURL is the address the in-process MCP client uses to reach the API.
func localURL(s *config.Settings) string {
	host := s.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// newHandler wires the device binding, registry, WebSocket listener, REST API
// and /mcp endpoint.
func newHandler(s *config.Settings, logger logrus.FieldLogger) (http.Handler, *session.Registry, error) {
	binding, err := device.Open(s.Driver, device.Options{Name: s.DeviceName, Path: s.DevicePath})
	if err != nil {
		return nil, nil, err
	}

	registry := session.NewRegistry(binding, logger)
	ws := websocket.NewHandler(registry, websocket.Options{
		MaxMessageSize: s.MaxMessageSize,
		PongWait:       s.PongWait.Duration,
		WriteWait:      s.WriteWait.Duration,
		AllowedOrigins: s.AllowedOrigins,
	}, logger)

	apiServer := api.NewServer(registry, ws, api.Options{
		PublicDir:    s.PublicDir,
		Driver:       binding.Name(),
		ConnectRate:  s.ConnectRate,
		ConnectBurst: s.ConnectBurst,
	}, logger)

	mcpClient := mcp.NewClient(localURL(s))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter, registry, nil
}

// runServe starts the HTTP server and, if enabled, an ngrok tunnel. It tears
// down every session before returning.
func runServe(ctx context.Context, cmd *cli.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(settings.Debug)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"driver":  settings.Driver,
	}).Infof("Starting %s", AppName)

	handler, registry, err := newHandler(settings, logger)
	if err != nil {
		return err
	}

	addr := settings.Addr()
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Infof("HTTP server listening on %s", addr)
		logger.Infof("Controller: ws://%s/ws", addr)
		logger.Infof("REST API: http://%s/api", addr)
		logger.Infof("MCP endpoint: http://%s/mcp", addr)
		logger.WithField("ping_period", settings.PingPeriod()).Debug("Keepalive configured")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if settings.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, settings.Ngrok, handler, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err = <-serveErr:
		logger.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout.Duration)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown error")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Sessions did not close in time")
	}

	wg.Wait()
	logger.Info("Server stopped")
	return err
}

// serveNgrok exposes handler through an ngrok tunnel until ctx ends.
func serveNgrok(ctx context.Context, opts config.NgrokSettings, handler http.Handler, logger logrus.FieldLogger) {
	if opts.AuthToken == "" {
		logger.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.Domain))
		logger.Infof("Using custom ngrok domain: %s", opts.Domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.AuthToken))
	if err != nil {
		logger.WithError(err).Error("Failed to start ngrok tunnel")
		return
	}

	ngrokServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		ngrokServer.Close()
	}()

	ngrokURL := tun.URL()
	logger.Infof("Ngrok tunnel established: %s", ngrokURL)
	logger.Infof("  Controller (ngrok): %s/", ngrokURL)
	logger.Infof("  REST API (ngrok): %s/api", ngrokURL)
	logger.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := ngrokServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Ngrok server error")
	}
	logger.Info("Ngrok tunnel closed")
}

// runStdioMCP serves the admin tools over stdio, proxying to --server-url.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))
	baseURL := cmd.String("server-url")

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		logger.WithError(err).Warnf("webpad server at %s is not reachable yet", baseURL)
	} else {
		resp.Body.Close()
		logger.Infof("Using webpad server at %s", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("MCP stdio server ready")
	return server.ServeStdio(mcpClient.GetMCPServer())
}

// runInitConfig writes the default settings to --output.
func runInitConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if !cmd.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "Wrote %s\n", path)
	return nil
}

// runValidateConfig loads every file argument and reports which are valid.
func runValidateConfig(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("no settings files given")
	}

	out := cmd.Root().Writer
	invalid := 0
	for _, file := range files {
		fmt.Fprintf(out, "\n%s %s\n", strings.Repeat("=", 20), file)
		s, err := config.Load(file)
		if err != nil {
			invalid++
			fmt.Fprintf(out, "INVALID\n  %v\n", err)
			continue
		}
		fmt.Fprintf(out, "VALID\n  driver=%s addr=%s\n", s.Driver, s.Addr())
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if invalid > 0 {
		return fmt.Errorf("%d of %d settings files have errors", invalid, len(files))
	}
	fmt.Fprintln(out, "All settings files are valid")
	return nil
}
