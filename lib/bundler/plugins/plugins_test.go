package plugins

import (
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"micromachine.dev/dojo-externals/lib/umd"
)

func TestExternalPackagesMatches(t *testing.T) {
	p := ExternalPackagesPlugin{
		Packages: []string{"dojo", "dijit"},
		Requests: map[string]umd.Request{"jquery": umd.StringRequest("jQuery")},
	}

	tests := []struct {
		path     string
		expected bool
	}{
		{"dojo", true},
		{"dojo/dom", true},
		{"dijit/form/Button", true},
		{"jquery", true},
		{"jquery/ui", false},
		{"dojox/gfx", false},
		{"dojo-externals/registerLoader", false},
		{"./dojo", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.Matches(tt.path))
		})
	}
}

func TestIsNodeBuiltin(t *testing.T) {
	assert.True(t, IsNodeBuiltin("fs"))
	assert.True(t, IsNodeBuiltin("node:fs"))
	assert.True(t, IsNodeBuiltin("fs/promises"))
	assert.False(t, IsNodeBuiltin("fsevents"))
	assert.False(t, IsNodeBuiltin("dojo/dom"))
}

func build(t *testing.T, source string, plugins ...api.Plugin) api.BuildResult {
	t.Helper()
	return api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			ResolveDir: t.TempDir(),
			Sourcefile: "main.js",
		},
		Bundle:   true,
		Write:    false,
		Outfile:  "out.js",
		Format:   api.FormatCommonJS,
		Platform: api.PlatformBrowser,
		LogLevel: api.LogLevelSilent,
		Plugins:  plugins,
	})
}

func TestExternalsWrapperPlugin(t *testing.T) {
	set := NewExternalSet()
	packages := ExternalPackagesPlugin{
		Packages:  []string{"dojo"},
		Optional:  []string{"dojo/has"},
		Externals: set,
	}
	wrapper := ExternalsWrapperPlugin{Generator: umd.New(umd.Options{}), Externals: set}

	result := build(t, `var has = require("dojo/has"); var dom = require("dojo/dom"); exports.x = [dom, has];`,
		packages.New(), wrapper.New())
	require.Empty(t, result.Errors)
	require.Len(t, result.OutputFiles, 1)

	out := string(result.OutputFiles[0].Contents)
	assert.True(t, strings.HasPrefix(out, "(function umdWrapper(root, factory) {\n"))
	assert.Contains(t, out, "__UMD_EXTERNAL_MODULE_dojo_2fdom__")
	assert.Contains(t, out, "umdLoadOptionalExternalModuleAmd")
	assert.NotEmpty(t, result.OutputFiles[0].Hash)

	modules := set.Modules()
	require.Len(t, modules, 2)
	assert.Equal(t, "dojo_2fdom", modules[0].ID)
	assert.True(t, modules[1].Optional)
}

func TestExternalsWrapperPluginReportsRenderErrors(t *testing.T) {
	set := NewExternalSet()
	packages := ExternalPackagesPlugin{
		Requests:  map[string]umd.Request{"jquery": {ByTarget: map[umd.Target]umd.Accessor{umd.TargetRoot: {"jQuery"}}}},
		Externals: set,
	}
	wrapper := ExternalsWrapperPlugin{Generator: umd.New(umd.Options{}), Externals: set}

	result := build(t, `require("jquery");`, packages.New(), wrapper.New())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, "missing external configuration")
}

func TestNodeBuiltinsPlugin(t *testing.T) {
	p := NodeBuiltinsPlugin{}
	result := build(t, `var fs = require("node:fs"); exports.fs = fs;`, p.New())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Text, "node:fs")
}

func TestRegisterLoaderPlugin(t *testing.T) {
	p := RegisterLoaderPlugin{}
	result := build(t, `import registerLoader from "dojo-externals/registerLoader"; registerLoader("dojo", function () {});`, p.New())
	require.Empty(t, result.Errors)
	assert.Contains(t, string(result.OutputFiles[0].Contents), "waitForActiveLoads")
}
