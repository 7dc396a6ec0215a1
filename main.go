// Tutor Bridge - desktop front end for a dataflow tutoring pipeline
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	"github.com/normanking/tutorbridge/internal/audio"
	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/bus"
	"github.com/normanking/tutorbridge/internal/config"
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/logging"
	"github.com/normanking/tutorbridge/internal/ui"
)

//go:embed all:frontend/dist
var assets embed.FS

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "config file (default ~/.tutorbridge/config.yaml)")
	flag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	syslog, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()
	logger := syslog.Component("main")

	if cfgErr != nil {
		logger.Warn().Err(cfgErr).Msg("Failed to load config, using defaults")
	}
	logger.Info().
		Str("source", cfg.Source()).
		Str("transport", cfg.Dataflow.Transport).
		Str("pipeline", cfg.Dataflow.URL).
		Msg("Tutor Bridge starting")

	app := newApp(cfg, syslog)

	assetFS, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get assets")
		os.Exit(1)
	}

	err = wails.Run(&options.App{
		Title:       cfg.Window.Title,
		Width:       cfg.Window.Width,
		Height:      cfg.Window.Height,
		MinWidth:    480,
		MinHeight:   400,
		AlwaysOnTop: cfg.Window.AlwaysOnTop,
		AssetServer: &assetserver.Options{
			Assets: assetFS,
		},
		BackgroundColour: &options.RGBA{R: 26, G: 26, B: 46, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			app.binder,
			app.settings,
		},
		Mac: &mac.Options{
			TitleBar: mac.TitleBarDefault(),
			About: &mac.AboutInfo{
				Title:   "Tutor Bridge",
				Message: "Dataflow tutoring client\nVersion " + version,
			},
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("Wails.Run failed")
		os.Exit(1)
	}
	logger.Info().Msg("Application exited normally")
}

// App holds the main application state
type App struct {
	cfg      *config.Config
	syslog   *logging.Logger
	logger   zerolog.Logger
	eventBus *bus.EventBus
	relay    *ui.Relay
	binder   *ui.Binder
	settings *ui.Settings
	watcher  *config.Watcher
}

func newApp(cfg *config.Config, syslog *logging.Logger) *App {
	logger := syslog.Component("app")
	eventBus := bus.NewEventBus()

	var dialer dataflow.Dialer
	if cfg.Dataflow.Transport == "memory" {
		dialer = dataflow.NewHub(cfg.Dataflow.Buffer)
	} else {
		d := dataflow.NewWSDialer(cfg.Dataflow.URL, syslog.Component("dataflow"))
		d.HandshakeTimeout = cfg.Dataflow.DialTimeout
		d.Buffer = cfg.Dataflow.Buffer
		dialer = d
	}
	opts := func(kind bridge.Kind) bridge.Options {
		return cfg.BridgeOptions(kind, dialer, syslog.Component("bridge"))
	}
	bridges := ui.Bridges{
		Mic:    bridge.NewMicInput(opts(bridge.KindMicInput)),
		Text:   bridge.NewTextInput(opts(bridge.KindTextInput)),
		Log:    bridge.NewSystemLog(opts(bridge.KindSystemLog)),
		Player: bridge.NewAudioPlayer(opts(bridge.KindAudioPlayer)),
		Prompt: bridge.NewPromptInput(opts(bridge.KindPromptInput)),
	}

	relay := ui.NewRelay(eventBus, logger)
	for _, b := range bridges.All() {
		relay.Attach(b)
	}
	relay.Chat(bridges.Text.NodeID(), bridges.Text.Messages())
	relay.Logs(bridges.Log.NodeID(), bridges.Log.Entries())
	relay.Playback(bridges.Player.NodeID(), bridges.Player.Playback())

	capture := audio.NewCapture(cfg.Audio, audio.NewFFmpegSource(syslog.Component("audio")), eventBus, logger)

	return &App{
		cfg:      cfg,
		syslog:   syslog,
		logger:   logger,
		eventBus: eventBus,
		relay:    relay,
		binder:   ui.NewBinder(eventBus, bridges, capture, syslog, logger),
		settings: ui.NewSettings(cfg, syslog, logger),
	}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.binder.Bind(ctx)
	a.settings.Bind(ctx)

	if src := a.cfg.Source(); src != "" {
		w, err := config.Watch(src, a.settings.Reload, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Config hot reload disabled")
		} else {
			a.watcher = w
		}
	}

	go func() {
		if err := a.binder.ConnectAll(); err != nil {
			a.logger.Error().Err(err).Msg("Some bridges failed to connect")
			return
		}
		a.logger.Info().Msg("Bridges connected")
	}()
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.binder.Shutdown()
	a.relay.Close()
	a.eventBus.Clear()
	a.logger.Info().Msg("Tutor Bridge shutdown complete")
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return version
}
