package plugins

import (
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"micromachine.dev/dojo-externals/lib/umd"
)

type ExternalsWrapperPlugin struct {
	Generator *umd.Generator
	Externals *ExternalSet
}

func (p *ExternalsWrapperPlugin) New() api.Plugin {
	return api.Plugin{
		Name: "externals-wrapper",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: ExternalNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				m, ok := p.Externals.Get(args.Path)
				if !ok {
					return api.OnLoadResult{}, fmt.Errorf("external %q was not resolved", args.Path)
				}

				contents := fmt.Sprintf("module.exports = %s;", m.Param())
				return api.OnLoadResult{
					Contents: &contents,
					Loader:   api.LoaderJS,
				}, nil
			})

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				modules := p.Externals.Modules()
				var errors []api.Message

				for i, file := range result.OutputFiles {
					if filepath.Ext(file.Path) != ".js" {
						continue
					}

					wrapped, err := p.Generator.Render(modules, string(file.Contents))
					if err != nil {
						errors = append(errors, api.Message{
							Text:       err.Error(),
							PluginName: "externals-wrapper",
						})
						continue
					}

					result.OutputFiles[i].Contents = []byte(wrapped)
					result.OutputFiles[i].Hash = umd.ArtifactHash(result.OutputFiles[i].Contents, p.Generator)
				}

				return api.OnEndResult{Errors: errors}, nil
			})
		},
	}
}
