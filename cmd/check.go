package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"micromachine.dev/dojo-externals/lib/bundler"
	"micromachine.dev/dojo-externals/lib/externals"
	"micromachine.dev/dojo-externals/lib/loader"
	"micromachine.dev/dojo-externals/lib/utils"
)

var checkURL string
var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verifies that the custom externals of a build can be loaded",
	Long: `The check command loads every module listed in loaderMap through the loader
coordinator, from the output directory or from a deployed site given with --url.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()

		var injector loader.ScriptInjector
		if checkURL != "" {
			base, err := url.JoinPath(checkURL, externals.Dir)
			if err != nil {
				utils.LogWithColor(utils.Fail, fmt.Sprintf("✗ %v", err))
				os.Exit(1)
			}
			injector = loader.HTTPInjector{BaseURL: base}
		} else {
			outDir := config.OutDir
			if !filepath.IsAbs(outDir) {
				outDir = filepath.Join(rootDir, outDir)
			}
			injector = loader.FileInjector{Root: filepath.Join(outDir, externals.Dir)}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		start := time.Now()
		modules, err := bundler.Verify(ctx, config, injector)
		if err != nil {
			utils.LogWithColor(utils.Fail, fmt.Sprintf("✗ %v", err))
			os.Exit(1)
		}

		for _, m := range modules {
			utils.LogWithColor(utils.Muted, fmt.Sprintf("  %s → %s", m.ID, m.Path))
		}
		utils.LogCompleted(fmt.Sprintf("Loaded %d custom external(s)", len(modules)), start)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkURL, "url", "u", "", "--url https://example.com/app")
	checkCmd.Flags().DurationVarP(&checkTimeout, "timeout", "t", 30*time.Second, "--timeout 30s")
}
