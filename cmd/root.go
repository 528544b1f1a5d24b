package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"micromachine.dev/dojo-externals/lib/utils"
)

var (
	// Version is set with -ldflags at release time.
	Version = "dev"

	rootDir    string
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "dojo-externals",
	Short:   "Bundles applications that load Dojo 1 modules at run time",
	Version: Version,
	Long: `dojo-externals bundles a browser application with esbuild while leaving legacy
AMD / Dojo 1 modules external. The bundle is wrapped in a UMD wrapper that loads
custom externals through a loader coordinator before the application runs.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(utils.NewColorHandler(slog.LevelDebug)))
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the externals configuration or exits.
func loadConfig() *utils.Config {
	config, err := utils.DetectConfigFile(&rootDir, configFile)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	slog.Debug("using configuration", "path", config.Path)
	return config
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootDir, "rootdir", "r", ".", "--rootdir ./apps/hello-world")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "--config externals.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}
