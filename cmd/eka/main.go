// Command eka is a terminal client for the EKA Brain document assistant.
//
// Usage:
//
//	eka [chat]                      interactive chat (default)
//	eka ask QUESTION...             stream one answer to stdout
//	eka conversations               list stored conversations
//	eka documents list|show|delete  manage ingested documents
//	eka ingest FILE_OR_GLOB...      upload files for ingestion
//	eka health                      check backend readiness
//
// Settings come from ~/.eka/config.toml, then EKA_* environment variables
// (a .env file in the working directory is loaded first), then flags.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fwojciec/eka/backend"
	"github.com/fwojciec/eka/chat"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	env := &environment{
		home:   home,
		getenv: os.Getenv,
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
	}
	if err := newRootCmd(env).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "eka: %v\n", err)
		os.Exit(1)
	}
}

// environment is the process state commands depend on.
type environment struct {
	home   string
	getenv func(string) string
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	cfg    Config
	log    zerolog.Logger
	client *backend.Client
}

type rootFlags struct {
	configPath string
	backendURL string
	store      string
	dataDir    string
	logLevel   string
	mode       string
}

func newRootCmd(env *environment) *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "eka",
		Short:         "Chat with your documents through EKA Brain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setup(cmd, flags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), env)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.eka/config.toml)")
	pf.StringVar(&flags.backendURL, "backend-url", "", "backend base URL")
	pf.StringVar(&flags.store, "store", "", "conversation store: json, bolt or sqlite")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory for conversations and logs")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	pf.StringVar(&flags.mode, "mode", "", "retrieval mode sent with questions")

	root.AddCommand(
		newChatCmd(env),
		newAskCmd(env),
		newConversationsCmd(env),
		newDocumentsCmd(env),
		newIngestCmd(env),
		newHealthCmd(env),
	)
	return root
}

// setup resolves configuration and builds the shared logger and client.
func (env *environment) setup(cmd *cobra.Command, flags rootFlags) error {
	path, explicit := flags.configPath, true
	if path == "" {
		path, explicit = defaultConfigPath(env.home), false
	}
	cfg, err := loadConfig(path, explicit, env.home, env.getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("backend-url") {
		cfg.BackendURL = flags.backendURL
	}
	if cmd.Flags().Changed("store") {
		cfg.Store = flags.store
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = expandHome(flags.dataDir, env.home)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = flags.mode
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	env.cfg = cfg

	env.log, err = newLogger(env.stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	env.client = backend.New(backend.WithBaseURL(cfg.BackendURL))
	return nil
}

// openController opens the configured store and loads a controller over
// it. The returned function closes both.
func (env *environment) openController(log zerolog.Logger) (*chat.Controller, func(), error) {
	store, closeStore, err := openStore(env.cfg.Store, env.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	ctrl := chat.New(env.client, store,
		chat.WithLogger(log),
		chat.WithSaveInterval(env.cfg.SaveInterval),
		chat.WithMode(env.cfg.Mode),
		chat.WithClock(env.now),
	)
	if err := ctrl.Open(); err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	cleanup := func() {
		_ = ctrl.Close()
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}
	return ctrl, cleanup, nil
}

// logFile opens the chat log in the data directory. The TUI owns the
// terminal, so chat sessions log there instead of stderr.
func (env *environment) logFile() (*os.File, error) {
	if err := os.MkdirAll(env.cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(env.cfg.DataDir, "eka.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
