package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/audit"
	"github.com/iambrandonn/vtask/internal/config"
	"github.com/iambrandonn/vtask/internal/executor"
	"github.com/iambrandonn/vtask/internal/extract"
	"github.com/iambrandonn/vtask/internal/model"
	"github.com/iambrandonn/vtask/internal/store"
	"github.com/iambrandonn/vtask/internal/supervisor"
)

func parseLogLevel(input string) (slog.Level, string, error) {
	level := strings.ToLower(strings.TrimSpace(input))
	switch level {
	case "", "info":
		return slog.LevelInfo, "info", nil
	case "debug":
		return slog.LevelDebug, "debug", nil
	case "warn", "warning":
		return slog.LevelWarn, "warn", nil
	case "error", "err":
		return slog.LevelError, "error", nil
	default:
		return slog.LevelInfo, "", fmt.Errorf("unsupported log level %q", input)
	}
}

// newLogger builds the stderr logger. The --log-level flag wins over the config.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	input := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		input = flag
	}
	level, _, err := parseLogLevel(input)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}

// loadConfig finds and validates the configuration. Without a config file
// the defaults apply, relative to the current directory.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}

	if configPath == "" {
		configPath, err = findConfigInTree()
		if err != nil {
			return nil, "", err
		}
	}

	var cfg *config.Config
	baseDir := ""
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		baseDir = filepath.Dir(configPath)
	} else {
		cfg = config.GenerateDefault()
		if baseDir, err = os.Getwd(); err != nil {
			return nil, "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	cfg.ResolvePaths(baseDir)
	return cfg, configPath, nil
}

// findConfigInTree searches up the directory tree for vtask.yaml
func findConfigInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, config.FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// app is the wired stack shared by the commands
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	exec   *executor.Executor
	trail  *audit.Trail
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		logger.Debug("loaded configuration", "path", cfgPath)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		exec: executor.New(st, executor.Options{
			Location:       loc,
			ConflictWindow: cfg.ConflictWindow(),
			ListLimit:      cfg.Supervisor.ListLimit,
			Logger:         logger,
		}),
	}, nil
}

// openTrail opens the audit trail. Commands that only read tasks skip it.
func (a *app) openTrail() error {
	trail, err := audit.NewTrail(a.cfg.Audit.Path, a.logger)
	if err != nil {
		return err
	}
	a.trail = trail
	return nil
}

// deps wires the supervisor collaborators around client
func (a *app) deps(client model.Client) supervisor.Deps {
	d := supervisor.Deps{
		Extractor: extract.New(client, extract.Config{
			Model:           a.cfg.Model.Name,
			Temperature:     a.cfg.Model.Temperature,
			MaxOutputTokens: a.cfg.Model.MaxOutputTokens,
			Timeout:         a.cfg.ModelTimeout(),
		}, a.logger),
		Executor:       a.exec,
		Logger:         a.logger,
		Location:       a.exec.Location(),
		MaxRecentTurns: a.cfg.Supervisor.MaxRecentTurns,
	}
	if a.trail != nil {
		d.Auditor = a.trail
	}
	return d
}

// modelClient returns a scripted client when repliesPath is set, the
// configured provider otherwise
func (a *app) modelClient(ctx context.Context, repliesPath string) (model.Client, error) {
	if repliesPath == "" {
		return model.New(ctx, model.Options{
			Provider: a.cfg.Model.Provider,
			APIKey:   a.cfg.Model.APIKey,
			BaseURL:  a.cfg.Model.BaseURL,
		})
	}

	data, err := os.ReadFile(repliesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read replies file: %w", err)
	}
	mock := model.NewMock(`{"intent":"none","tasks":[],"confirmed":false}`)
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			mock.Reply(line)
		}
	}
	return mock, nil
}

func (a *app) Close() error {
	var errs []error
	if a.trail != nil {
		errs = append(errs, a.trail.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

func callerFlags(cmd *cobra.Command) {
	cmd.Flags().String("phone", "", "Caller phone number")
	cmd.Flags().String("name", "", "Caller contact name")
	cmd.Flags().String("tenant", "", "Tenant id (default: from config)")
}

func callerParams(cmd *cobra.Command, cfg *config.Config) supervisor.Params {
	phone, _ := cmd.Flags().GetString("phone")
	name, _ := cmd.Flags().GetString("name")
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.TenantID
	}
	return supervisor.Params{TenantID: tenant, Phone: phone, ContactName: name}
}

func printResult(w io.Writer, label string, res supervisor.Result) {
	fmt.Fprintf(w, "%s: %s\n", label, res.Action)
	if res.NotifyMessage != "" {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(res.NotifyMessage, "\n", "\n  "))
	}
	if res.ConflictWarning != "" {
		fmt.Fprintf(w, "  warning: %s\n", res.ConflictWarning)
	}
}
