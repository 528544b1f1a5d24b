package plugins

import (
	_ "embed"

	"github.com/evanw/esbuild/pkg/api"
)

const (
	RegisterLoaderModule = "dojo-externals/registerLoader"
	runtimeNamespace     = "dojo-externals-runtime"
)

//go:embed runtime/registerLoader.js
var registerLoaderSource string

// RegisterLoaderPlugin serves the browser side of the load coordinator as a
// virtual module, so the application can register its loaders.
type RegisterLoaderPlugin struct{}

func (p *RegisterLoaderPlugin) New() api.Plugin {
	return api.Plugin{
		Name: "register-loader-runtime",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^dojo-externals/registerLoader$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{
					Path:      RegisterLoaderModule,
					Namespace: runtimeNamespace,
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: runtimeNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := registerLoaderSource
				return api.OnLoadResult{
					Contents: &contents,
					Loader:   api.LoaderJS,
				}, nil
			})
		},
	}
}
