package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/AaronLay10/decisiongraph/internal/api"
	"github.com/AaronLay10/decisiongraph/internal/config"
	"github.com/AaronLay10/decisiongraph/internal/demo"
	"github.com/AaronLay10/decisiongraph/internal/events"
	"github.com/AaronLay10/decisiongraph/internal/mqtt"
	"github.com/AaronLay10/decisiongraph/internal/runner"
	"github.com/AaronLay10/decisiongraph/internal/storage/postgres"
	"github.com/AaronLay10/decisiongraph/internal/storage/sqlite"
	"github.com/AaronLay10/decisiongraph/internal/version"
)

// stack is everything a run needs, wired from one RunConfig.
type stack struct {
	cfg    *config.RunConfig
	logger *slog.Logger
	bus    *events.Bus
	runner *runner.Runner
	sim    *demo.Sim
	bridge *mqtt.SignalBridge
	broker *mqtt.Client
	server *api.Server
	trace  *sqlite.DB

	closers []func() error
}

func loadConfig(path string) (*config.RunConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg *config.RunConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func demoOptions(cfg *config.RunConfig) demo.Options {
	return demo.Options{Seed: cfg.Sim.Seed, Agents: cfg.Sim.Agents}
}

// build wires the bus, sinks, broker and agents. Any partially opened
// resource is released when it fails.
func build(cfg *config.RunConfig, logger *slog.Logger) (_ *stack, err error) {
	s := &stack{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	s.bus = events.NewBus(events.DefaultBufferSize)
	s.bus.SetLogger(logger)
	s.runner = runner.New(s.bus)
	s.runner.SetLogger(logger)

	s.sim, err = demo.Build(demoOptions(cfg))
	if err != nil {
		return nil, err
	}
	if err := s.sim.Register(s.runner); err != nil {
		return nil, err
	}

	secrets, err := cfg.ResolveSecrets()
	if err != nil {
		return nil, err
	}
	if err := s.openStorage(secrets); err != nil {
		return nil, err
	}

	s.bridge = mqtt.NewSignalBridge(cfg.MQTT.SignalTopic, s.bus)
	for name, board := range s.sim.Boards() {
		s.bridge.Attach(name, board)
	}
	if cfg.MQTT.Enabled {
		s.openBroker(secrets)
	}

	if cfg.API.Enabled {
		s.server = api.NewServer(s.runner, s.bus)
		s.server.SetLogger(logger)
		if s.broker != nil {
			s.server.AddCheck("mqtt", s.broker.IsConnected)
		}
	}
	return s, nil
}

func (s *stack) openStorage(secrets config.Secrets) error {
	session := s.runner.Session().String()
	switch s.cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(s.cfg.Storage.SQLitePath, session)
		if err != nil {
			return err
		}
		s.trace = db
		s.bus.AddSink(db)
		s.closers = append(s.closers, db.Close)
		s.logger.Info("tracing to sqlite", "path", s.cfg.Storage.SQLitePath)
	case config.DriverPostgres:
		pg := s.cfg.Storage.Postgres
		client, err := postgres.New(postgres.Config{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: secrets.PostgresPassword,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		}, session)
		if err != nil {
			return err
		}
		s.bus.AddSink(client)
		s.closers = append(s.closers, client.Close)
		s.logger.Info("tracing to postgres", "host", pg.Host, "database", pg.Database)
	}
	return nil
}

// openBroker connects to MQTT. A broker that cannot be reached degrades the
// run instead of failing it; the client keeps retrying in the background.
func (s *stack) openBroker(secrets config.Secrets) {
	var client *mqtt.Client
	client = mqtt.NewClient(mqtt.Options{
		BrokerURL: s.cfg.MQTT.URL,
		ClientID:  s.cfg.MQTT.ClientID,
		Username:  s.cfg.MQTT.Username,
		Password:  secrets.MQTTPassword,
		OnConnect: func() {
			s.bridge.ClearSubscription()
			if err := s.bridge.Subscribe(client); err != nil {
				s.logger.Warn("signal subscription failed", "topic", s.bridge.Topic(), "error", err)
			}
		},
	})
	s.broker = client
	s.bus.AddSink(mqtt.NewTracePublisher(client, s.cfg.MQTT.TraceTopic))
	s.closers = append(s.closers, func() error { client.Disconnect(); return nil })

	if err := client.Connect(); err != nil {
		s.logger.Warn("mqtt unavailable, continuing without broker", "broker", client.BrokerURL(), "error", err)
		return
	}
	s.logger.Info("mqtt connected", "broker", client.BrokerURL(), "signals", s.bridge.Topic())
}

// serve starts the API server when enabled. The returned channel yields the
// server's exit error once ctx is done.
func (s *stack) serve(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if s.server == nil {
		close(done)
		return done
	}
	go func() {
		done <- s.server.ListenAndServe(ctx, s.cfg.APIAddr())
	}()
	return done
}

func (s *stack) emit(level, name, msg string, fields map[string]any) {
	if err := s.bus.Emit(level, name, msg, fields); err != nil {
		s.logger.Debug("emit failed", "event", name, "error", err)
	}
}

func (s *stack) startup(mode string) {
	hostname, _ := os.Hostname()
	s.emit("info", "system.startup", "agentsim starting", map[string]any{
		"service":  "agentsim",
		"version":  version.Version,
		"mode":     mode,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"session":  s.runner.Session().String(),
		"agents":   s.runner.Agents(),
	})
}

func (s *stack) shutdown(reason string) {
	s.emit("info", "system.shutdown", "agentsim stopping", map[string]any{
		"reason": reason,
		"ticks":  s.runner.TickCount(),
	})
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.logger != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}
