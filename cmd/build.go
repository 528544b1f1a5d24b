package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"micromachine.dev/dojo-externals/lib/bundler"
	"micromachine.dev/dojo-externals/lib/utils"
)

var buildScript string
var buildEnv string
var minify bool

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundles the application and copies its externals",
	Long: `The build command prepares the application for deployment.
It performs the following steps:
1. Locates and parses the externals configuration file (toml, json, jsonc or yaml).
2. Runs the build script with the project's package manager, when one is given.
3. Bundles the entry point, wrapping it in the externals UMD wrapper.
4. Copies the external dependencies and writes externals/requireExternals.js.
5. Injects the loader and bootstrap scripts into the HTML page.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()

		b := bundler.Bundle{
			RootDir:     rootDir,
			Config:      config,
			Environment: buildEnv,
			BuildScript: buildScript,
			Minify:      minify,
		}

		if buildScript != "" {
			packageManager, err := utils.DetectPackageManager(&rootDir)
			if err != nil {
				utils.LogWithColor(utils.Fail, fmt.Sprintf("✗ %v", err))
				os.Exit(1)
			}
			b.PackageManager = *packageManager
		}

		start := time.Now()
		utils.LogWithColor(utils.Cyan, "Running `dojo-externals build`...")

		if err := b.RunBuildCommand(); err != nil {
			os.Exit(1)
		}

		result, err := b.Pack()
		if err != nil {
			os.Exit(1)
		}

		for _, path := range bundler.ManifestPaths(result.Manifest) {
			utils.LogWithColor(utils.Muted, fmt.Sprintf("  %s %s", path, result.Manifest[path]))
		}

		utils.LogCompleted("Completed `dojo-externals build`", start)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildScript, "build-script", "b", "", "--build-script prebuild")
	buildCmd.Flags().StringVarP(&buildEnv, "env", "e", "production", "--env production")
	buildCmd.Flags().BoolVarP(&minify, "minify", "m", false, "minify the bundle")
}
