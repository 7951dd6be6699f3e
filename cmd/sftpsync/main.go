package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/sftpsync/internal/config"
	"github.com/openmined/sftpsync/internal/sync"
	"github.com/openmined/sftpsync/internal/utils"
	"github.com/openmined/sftpsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

// flags whose viper key is not the flag name with dashes replaced
var flagKeys = map[string]string{
	"local":    "local_dir",
	"identity": "identity_file",
}

// shared by the terminal and file handlers, set once config is loaded
var logLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:     version.AppName,
	Short:   "Two-way directory synchronization over SFTP",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "sftpsync config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("history-db", config.DefaultHistoryPath, "transfer history database")
}

func main() {
	closeLog, err := setupLogging(config.DefaultLogFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(exitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	closeLog()

	os.Exit(exitCode(err))
}

// setupLogging sends records to stderr and to a log file truncated per run.
func setupLogging(logFile string) (func(), error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	handler := utils.NewMultiLogHandler(
		newTerminalHandler(os.Stderr),
		slog.NewTextHandler(interceptor, &slog.HandlerOptions{
			Level: logLevel,
			// the interceptor stamps each line
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}),
	)
	slog.SetDefault(slog.New(handler))

	return func() {
		interceptor.Close()
		file.Close()
	}, nil
}

func newTerminalHandler(w *os.File) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	})
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, sync.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

// loadConfig merges the config file, SFTPSYNC_* variables and the flags of
// cmd into the global viper instance.
func loadConfig(cmd *cobra.Command) error {
	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		viper.SetConfigFile(flag.Value.String())
	} else {
		viper.AddConfigPath(config.DefaultConfigDir)
		viper.AddConfigPath(filepath.Join(home(), ".config", version.AppName))
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "help", "version", "yes", "no", "limit":
			return
		}
		bindErr = errors.Join(bindErr, viper.BindPFlag(flagKey(f.Name), f))
	})
	if bindErr != nil {
		return bindErr
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		viper.Set("assume", config.AssumeYes)
	}
	if no, _ := cmd.Flags().GetBool("no"); no {
		viper.Set("assume", config.AssumeNo)
	}

	level, err := config.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return err
	}
	logLevel.Set(level)
	return nil
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

func home() string {
	dir, _ := os.UserHomeDir()
	return dir
}
