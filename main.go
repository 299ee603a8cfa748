package main

import (
	"os"

	"github.com/containerd/log"
	"github.com/ping-42/device-scheduler/config"
	"github.com/ping-42/device-scheduler/logger"
	"github.com/spf13/cobra"
)

// Release versioning magic
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var schedulerLogger = logger.Base("device-scheduler")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "device-scheduler",
	Short:         "Executes scheduled device actions on a fixed cadence",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "path to the YAML config file (env vars override it)")
	rootCmd.AddCommand(serveCmd, onceCmd, migrateCmd, versionCmd)
}

func main() {
	schedulerLogger.WithFields(log.Fields{
		"version":   version,
		"commit":    commit,
		"buildDate": date,
	}).Debug("device-scheduler build")

	if err := rootCmd.Execute(); err != nil {
		schedulerLogger.WithError(err).Error("device-scheduler exited with error")
		os.Exit(1)
	}
}
