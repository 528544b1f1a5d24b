/*
Copyright © 2026 Micromachine
*/
package main

import (
	"log/slog"

	"micromachine.dev/dojo-externals/cmd"
	"micromachine.dev/dojo-externals/lib/utils"
)

func main() {
	slog.SetDefault(slog.New(utils.NewColorHandler(slog.LevelInfo)))
	cmd.Execute()
}
