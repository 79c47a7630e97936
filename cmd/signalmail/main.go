package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"signalmail/internal/config"
	"signalmail/internal/contacts"
	"signalmail/internal/dispatch"
	"signalmail/internal/mailer"
	"signalmail/internal/metrics"
	"signalmail/internal/signalbus"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "signalmail",
		Short:   "Forward Signal messages to email",
		Long:    "signalmail listens to a signal-cli daemon over D-Bus and forwards every incoming message as an email, with optional auto-reply and attachment cleanup.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.config/signalmail/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data_dir", cfg.General.DataDir)
			logger.Info("edit the config and fill in signal.account, mail.*, and smtp.* before running")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		sendMail       boolOverride
		debug          boolOverride
		deleteAttached boolOverride
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the daemon and forward messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			sendMail.apply(&cfg.General.SendMail)
			debug.apply(&cfg.General.Debug)
			deleteAttached.apply(&cfg.General.DeleteAttachments)

			if cfg.General.Debug {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}

			return run(cfg)
		},
	}

	sendMail.register(cmd, "sendmail", "no-sendmail", "send mails (overrides config)")
	debug.register(cmd, "debug", "no-debug", "debug logging (overrides config)")
	deleteAttached.register(cmd, "delete-attachments", "no-delete-attachments", "delete attachment files after processing (overrides config)")

	return cmd
}

func run(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := signalbus.Negotiate(ctx, cfg.Signal.Account, cfg.Signal.UseSessionBus, logger)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer sess.Conn.Close()
	logger.Info("connected to signal daemon", "via", sess.Via)

	store, err := contacts.NewStore(filepath.Join(cfg.General.DataDir, "contacts.db"), cfg.Signal.Contacts, logger)
	if err != nil {
		return fmt.Errorf("contacts store: %w", err)
	}
	defer store.Close()

	client := signalbus.NewClient(sess, logger)
	resolver := contacts.NewResolver(store, client)
	sender := mailer.New(cfg.SMTP, cfg.Mail.MaxAttachmentMB, logger)
	dispatcher := dispatch.New(cfg, client, resolver, sender, logger)

	sub := signalbus.NewSubscriber(sess, cfg.Signal.AttachmentDir, dispatcher, logger)

	if cfg.General.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		srv := &http.Server{Addr: cfg.General.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "addr", cfg.General.MetricsAddr, "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("metrics exposed", "addr", cfg.General.MetricsAddr)
	}

	logger.Info("signalmail started. Press Ctrl+C to stop.",
		"account", cfg.Signal.Account,
		"send_mail", cfg.General.SendMail,
		"delete_attachments", cfg.General.DeleteAttachments)

	if err := sub.Run(ctx); err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check config and daemon reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := signalbus.Negotiate(ctx, cfg.Signal.Account, cfg.Signal.UseSessionBus, logger)
			if err != nil {
				logger.Info("daemon", "reachable", false, "err", err)
				return err
			}
			defer sess.Conn.Close()
			logger.Info("daemon", "reachable", true, "via", sess.Via)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. smtp.host)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := yaml.Marshal(val)
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.send_mail false)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// boolOverride is a pair of on/off flags that only touch the config value
// when one of them was given on the command line.
type boolOverride struct {
	on  bool
	off bool
}

func (b *boolOverride) register(cmd *cobra.Command, onName, offName, usage string) {
	cmd.Flags().BoolVar(&b.on, onName, false, usage)
	cmd.Flags().BoolVar(&b.off, offName, false, "do not "+usage)
	cmd.MarkFlagsMutuallyExclusive(onName, offName)
}

func (b *boolOverride) apply(target *bool) {
	switch {
	case b.on:
		*target = true
	case b.off:
		*target = false
	}
}
