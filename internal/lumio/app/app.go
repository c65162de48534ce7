// Package app wires the configuration into a running Lumio process:
// storage, collaborators, the command router, transports, the reminder
// scheduler and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/calendar"
	"github.com/bdobrica/Lumio/internal/lumio/commands"
	"github.com/bdobrica/Lumio/internal/lumio/config"
	"github.com/bdobrica/Lumio/internal/lumio/ledger"
	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
	"github.com/bdobrica/Lumio/internal/lumio/services/chat"
	"github.com/bdobrica/Lumio/internal/lumio/services/search"
	"github.com/bdobrica/Lumio/internal/lumio/services/stock"
	"github.com/bdobrica/Lumio/internal/lumio/services/weather"
	"github.com/bdobrica/Lumio/internal/lumio/store"
	"github.com/bdobrica/Lumio/internal/lumio/transport/line"
	"github.com/bdobrica/Lumio/internal/lumio/transport/matrix"
	"github.com/bdobrica/Lumio/internal/lumio/transport/telegram"
)

// Options adjusts how New builds the process.
type Options struct {
	// DryRun replaces Google Calendar and Sheets with in-process fakes so
	// commands can be exercised without touching real data.
	DryRun bool
	// Provider overrides the OpenAI provider.
	Provider nlp.Provider
	// GoogleOptions are passed to both Google API clients.
	GoogleOptions []option.ClientOption
}

// App is a fully wired Lumio process.
type App struct {
	config    config.Config
	store     *store.Store
	reminders *reminders.Store
	router    *commands.Router
	scheduler *reminders.Scheduler
	telegram  *telegram.Bot
	line      *line.Bot
	matrix    *matrix.Client
	health    *HealthServer
}

// New builds every component. Nothing connects to a chat network until Run.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	loc := cfg.Location()

	slog.Info("opening database", "path", cfg.DatabasePath)
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{config: cfg, store: db, reminders: reminders.NewStore(db)}

	provider := opts.Provider
	if provider == nil {
		provider = nlp.New(nlp.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		})
	}

	cal, ldg, err := googleBackends(ctx, cfg, opts)
	if err != nil {
		db.Close()
		return nil, err
	}

	forecast := weather.New(cfg.Services.WeatherBaseURL, cfg.Services.WeatherLocation)
	handlers := &commands.Handlers{
		Calendar:  cal,
		Ledger:    ldg,
		Extractor: nlp.NewExtractor(provider, nil, loc),
		Reminders: a.reminders,
		Stocks:    stock.New(cfg.Services.StockBaseURL, provider),
		Forecast:  forecast,
		WebSearch: search.New(cfg.Services.SearchBaseURL, provider),
		Responder: chat.New(provider, forecast, loc),
		Location:  loc,
	}
	a.router = commands.NewRouter(
		nlp.NewClassifier(provider, nil),
		handlers,
		commands.WithRateLimiter(nlp.NewRateLimiter(cfg.NLPRateLimit)),
	)

	a.scheduler = reminders.NewScheduler(a.reminders, cfg.ReminderInterval)
	state := store.NewState(db)
	var transports []string

	if cfg.TelegramEnabled() {
		a.telegram = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			APIBase:     cfg.Telegram.APIBase,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, a.router, state)
		a.scheduler.Register(envelope.PlatformTelegram, a.telegram)
		transports = append(transports, string(envelope.PlatformTelegram))
	}
	if cfg.LINEEnabled() {
		a.line = line.New(line.Config{
			AccessToken: cfg.LINE.AccessToken,
			Secret:      cfg.LINE.Secret,
			APIBase:     cfg.LINE.APIBase,
		}, a.router)
		a.scheduler.Register(envelope.PlatformLINE, a.line)
		transports = append(transports, string(envelope.PlatformLINE))
	}
	if cfg.MatrixEnabled() {
		m, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
		}, a.router, state)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
		}
		a.matrix = m
		a.scheduler.Register(envelope.PlatformMatrix, m)
		transports = append(transports, string(envelope.PlatformMatrix))
	}

	if cfg.HTTPAddr != "" {
		a.health = NewHealthServer(cfg.HTTPAddr, a.reminders, transports)
		if a.line != nil {
			a.health.Handle(cfg.LINE.WebhookPath, a.line)
		}
	}
	return a, nil
}

// googleBackends builds the calendar and ledger. Missing credentials
// disable both features instead of failing startup.
func googleBackends(ctx context.Context, cfg config.Config, opts Options) (calendar.Service, ledger.Ledger, error) {
	if opts.DryRun {
		slog.Info("dry run: using in-memory calendar and ledger")
		return calendar.NewMemory(cfg.Location()), ledger.NewMemory(), nil
	}

	clientOpts := opts.GoogleOptions
	if len(clientOpts) == 0 {
		creds, err := cfg.Google.Credentials(ctx)
		if errors.Is(err, config.ErrNoGoogleCredentials) {
			slog.Warn("Google credentials not found; calendar and ledger disabled")
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		clientOpts = []option.ClientOption{option.WithCredentials(creds)}
	}

	cal, err := calendar.NewGoogle(ctx, cfg.Google.CalendarID, cfg.Location(), clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize calendar: %w", err)
	}

	var ldg ledger.Ledger
	if cfg.Google.SpreadsheetID != "" {
		sheets, err := ledger.NewSheets(ctx, cfg.Google.SpreadsheetID, cfg.Google.Worksheet, clientOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
		ldg = sheets
	} else {
		slog.Warn("GOOGLE_SPREADSHEET_ID not set; ledger disabled")
	}
	return cal, ldg, nil
}

// Router returns the command router.
func (a *App) Router() *commands.Router { return a.router }

// Scheduler returns the reminder scheduler.
func (a *App) Scheduler() *reminders.Scheduler { return a.scheduler }

// Run starts the transports, the reminder scheduler and the HTTP server
// and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.scheduler.Run(ctx) })
	if a.health != nil {
		g.Go(func() error { return a.health.Run(ctx) })
	}
	if a.telegram != nil {
		g.Go(func() error { return a.telegram.Run(ctx) })
	}
	if a.matrix != nil {
		g.Go(func() error { return a.matrix.Run(ctx) })
	}
	if a.line != nil {
		g.Go(func() error {
			<-ctx.Done()
			a.line.Wait()
			return nil
		})
	}

	slog.Info("Lumio is running", "config", a.config)
	err := g.Wait()
	slog.Info("shutting down")
	return err
}

// Close releases the database.
func (a *App) Close() error {
	return a.store.Close()
}
