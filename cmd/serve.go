package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"micromachine.dev/dojo-externals/lib/bundler"
	"micromachine.dev/dojo-externals/lib/utils"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the build output directory",
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()

		outDir := config.OutDir
		if !filepath.IsAbs(outDir) {
			outDir = filepath.Join(rootDir, outDir)
		}

		if _, err := os.Stat(outDir); err != nil {
			utils.LogWithColor(utils.Fail, fmt.Sprintf("✗ %v, run `dojo-externals build` first", err))
			os.Exit(1)
		}

		app := bundler.NewServer(outDir)
		utils.LogWithColor(utils.Info, fmt.Sprintf("Serving %s on http://%s", outDir, serveAddr))

		if err := app.Listen(serveAddr); err != nil {
			slog.Error(fmt.Sprintf("✗ %v", err))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "localhost:8080", "--addr localhost:8080")
}
