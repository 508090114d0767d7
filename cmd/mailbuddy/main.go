package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/horken7/your-mail-buddy/internal/app"
	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/runner"
	"github.com/horken7/your-mail-buddy/internal/session"
	"github.com/horken7/your-mail-buddy/internal/store"
	"github.com/horken7/your-mail-buddy/internal/theme"
)

func main() {
	var (
		configPath string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:           "mailbuddy",
		Short:         "Triage unread email by importance and reply from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the YAML config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log.level)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, logFile, err := logging.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logFile.Close()

	theme.Apply(cfg.Display.Theme)

	st, err := store.NewSQLiteStore()
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	r := runner.New(logger)
	sess := session.New(session.Config{
		MaxMessagesPerFetch: cfg.Session.MaxMessagesPerFetch,
		MaxFetchesPerWindow: cfg.Session.MaxFetchesPerWindow,
		Window:              cfg.Session.Window(),
	}, session.Deps{
		Store:  st,
		Notify: r.Notify,
		Logger: logger,
	})
	defer sess.Close()

	logger.Info("starting mailbuddy", "session", sess.ID, "config", configPath)

	m := app.New(app.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Session:    sess,
		Runner:     r,
		Logger:     logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}

	r.Stop()
	logger.Info("session ended", "session", sess.ID)
	return nil
}
