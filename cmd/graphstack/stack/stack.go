// Package stack wires a configured store, model, event publisher and
// coordinator together for CLI commands.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/papercomputeco/graphstack/pkg/config"
	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/dotdir"
	"github.com/papercomputeco/graphstack/pkg/eventstream"
	"github.com/papercomputeco/graphstack/pkg/eventstream/kafka"
	"github.com/papercomputeco/graphstack/pkg/eventstream/nop"
	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/store/inmemory"
	"github.com/papercomputeco/graphstack/pkg/store/postgres"
	"github.com/papercomputeco/graphstack/pkg/store/sqlite"
)

// Options selects what Open builds.
type Options struct {
	ConfigDir string
	Config    *config.Config
	Logger    *slog.Logger

	// Migrate loads the model file and upgrades the store to it. Without
	// it the store's persisted model is used.
	Migrate bool
}

// Stack is an open store with its coordinator.
type Stack struct {
	Store       store.Store
	Coordinator *coordinator.Coordinator
}

// NewLogger returns a pretty logger on a terminal and slog text otherwise.
func NewLogger(debug bool) *slog.Logger {
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(term.IsTerminal(int(os.Stderr.Fd()))),
		logger.WithPrefix("graphstack"),
		logger.WithWriter(os.Stderr),
	)
}

// Open builds the stack described by o.
func Open(ctx context.Context, o Options) (*Stack, error) {
	cfg := o.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}

	st, err := OpenStore(ctx, cfg, o.ConfigDir)
	if err != nil {
		return nil, err
	}

	pub, err := NewPublisher(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithPublisher(pub),
		coordinator.WithSaveQueueSize(cfg.Coordinator.SaveQueueSize),
		coordinator.WithAsyncQueueSize(cfg.Coordinator.AsyncQueueSize),
	}

	var co *coordinator.Coordinator
	if o.Migrate {
		var target *model.Model
		target, err = LoadModel(cfg, o.ConfigDir)
		if err == nil {
			co, err = coordinator.Open(ctx, st, target, opts...)
		}
	} else {
		co, err = coordinator.New(ctx, st, opts...)
		if errors.Is(err, store.ErrNoModel) {
			err = fmt.Errorf("%w: run graphstack init with a model first", err)
		}
	}
	if err != nil {
		pub.Close()
		st.Close()
		return nil, err
	}

	return &Stack{Store: st, Coordinator: co}, nil
}

// Close shuts the coordinator down, then the store.
func (s *Stack) Close() error {
	return errors.Join(s.Coordinator.Close(), s.Store.Close())
}

// OpenStore opens the store backend named by cfg.Storage.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, configDir string) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverInMemory:
		return inmemory.NewDriver(), nil

	case config.DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		return postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)

	case config.DriverSQLite, "":
		path, err := dotdir.NewManager().SQLitePath(configDir, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewDriver(ctx, path)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// LoadModel reads the model definition named by cfg.Model.Path, or the
// model.toml in the config directory.
func LoadModel(cfg *config.Config, configDir string) (*model.Model, error) {
	path, err := dotdir.NewManager().ModelPath(configDir, cfg.Model.Path)
	if err != nil {
		return nil, err
	}
	m, err := model.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return m, nil
}

// NewPublisher returns the save event publisher named by
// cfg.EventStream.Provider.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case config.EventStreamNone, "":
		return nop.NewPublisher(), nil
	case config.EventStreamKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.Brokers,
			Topic:   cfg.EventStream.Topic,
			Logger:  log,
		})
	default:
		return nil, fmt.Errorf("unknown eventstream provider %q", cfg.EventStream.Provider)
	}
}
