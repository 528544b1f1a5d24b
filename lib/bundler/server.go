package bundler

import (
	"github.com/gofiber/fiber/v2"
)

// NewServer serves a build output directory. Pages load the externals and the
// bundle with relative paths, so the directory is served as is.
func NewServer(outDir string) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Static("/", outDir, fiber.Static{
		Index: "index.html",
	})

	return app
}
