package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

var (
	envFile  string
	logLevel string
	logFmt   string
	logFile  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "pdftrans",
	Short: "Translate PDF documents",
	Long: `pdftrans translates a PDF into a translation-only (mono) PDF and a
bilingual (dual) PDF, side by side or with alternating pages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时忽略
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return err
			}
		}

		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		if verbose {
			level = logger.LevelDebug
		}
		format, err := logger.ParseFormat(logFmt)
		if err != nil {
			return err
		}
		return logger.Init(&logger.Config{
			LogFilePath:   logFile,
			MaxFileSize:   logger.DefaultConfig().MaxFileSize,
			MaxBackups:    logger.DefaultConfig().MaxBackups,
			Level:         level,
			Format:        format,
			EnableConsole: true,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with OPENAI_* settings")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFmt, "log-format", "text", "log line format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitCode maps error kinds to process exit codes.
func exitCode(err error) int {
	switch types.CodeOf(err) {
	case types.ErrInvalidConfiguration:
		return 2
	case types.ErrParseFailure:
		return 3
	case types.ErrTranslationFailure:
		return 4
	case types.ErrCompositionFailure:
		return 5
	case types.ErrPersistenceFailure:
		return 6
	case types.ErrTimeoutExceeded:
		return 7
	default:
		return 1
	}
}
