// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/version"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var cfgFile string
var rootRedisURL string
var rootNamespace string
var verboseMode bool
var debugMode bool

var (
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
	debugColor = color.New(color.FgCyan)
)

// logLine prints a leveled, timestamped line. Components receive it as their
// LogFn callback so they stay free of any printing concerns.
func logLine(level, msg string) {
	switch level {
	case "debug":
		if !debugMode {
			return
		}
	case "info":
		if !verboseMode && !debugMode {
			return
		}
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	switch level {
	case "debug":
		debugColor.Fprintf(os.Stderr, "[%s] DEBUG %s\n", timestamp, msg)
	case "warning":
		warnColor.Fprintf(os.Stderr, "[%s] WARN  %s\n", timestamp, msg)
	case "error":
		errColor.Fprintf(os.Stderr, "[%s] ERROR %s\n", timestamp, msg)
	default:
		infoColor.Fprintf(os.Stderr, "[%s] INFO  %s\n", timestamp, msg)
	}
}

// Debug prints a message if debug mode is enabled
func Debug(format string, args ...interface{}) {
	if debugMode {
		logLine("debug", fmt.Sprintf(format, args...))
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resq",
	Short: "resq runs and inspects Redis-backed background job workers",
	Long: `A supervisor and CLI for Redis-backed background job processing.
Workers pull jobs from prioritized queues, run them in child processes,
and record successes and failures back into Redis.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rootRedisURL, "redis-url", "", "Redis connection URL (or set REDIS_URL env)")
	rootCmd.PersistentFlags().StringVar(&rootNamespace, "namespace", "", "Redis key namespace (or set REDIS_NAMESPACE env)")
	rootCmd.PersistentFlags().BoolVar(&verboseMode, "verbose", false, "Enable info output")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
}
