package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bharatemr/practice/internal/config"
	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/logging"
	"github.com/bharatemr/practice/internal/platform/notify"
	"github.com/bharatemr/practice/internal/platform/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "practice",
		Short:         "Patient management client and sandbox backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sandboxCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(visitsCmd())
	rootCmd.AddCommand(consultCmd())
	rootCmd.AddCommand(followUpsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", datasource.UserMessage(err))
		os.Exit(1)
	}
}

// env is what every client command needs: configuration, a logger, the
// signed-in session and a data-source client authenticated with it.
type env struct {
	cfg      *config.Config
	logger   zerolog.Logger
	identity *session.Token
	client   *datasource.Client
	sink     notify.Sink
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func newEnv() (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	identity, err := session.FromToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("API_TOKEN: %w (mint one with `practice sandbox token`)", err)
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return &env{
		cfg:      cfg,
		logger:   logger,
		identity: identity,
		client:   datasource.New(datasource.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.RequestTimeout}, identity, logger),
		sink: notify.Multi{
			notify.LogSink{Logger: logger},
			&notify.ConsoleSink{Out: os.Stdout},
		},
	}, nil
}

func (e *env) downloads() (*blobstore.DirStore, error) {
	return blobstore.NewDirStore(e.cfg.DownloadDir)
}
