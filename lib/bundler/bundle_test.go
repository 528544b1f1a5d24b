package bundler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"micromachine.dev/dojo-externals/lib/umd"
	"micromachine.dev/dojo-externals/lib/utils"
)

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
}

func project(t *testing.T, config string) (string, *utils.Config) {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "src/main.js", `var dom = require("dojo/dom");
var Button = require("dijit/form/Button");
exports.byId = dom.byId;
exports.Button = Button;
`)
	writeFile(t, dir, "index.html", `<html><body><script src="vendor.js"></script></body></html>`)
	writeFile(t, dir, "node_modules/dojo/dojo.js", "// dojo loader")
	writeFile(t, dir, "node_modules/dojo/dom.js", "// dojo/dom")
	writeFile(t, dir, "node_modules/dojo/node_modules/ignored/index.js", "// ignored")
	writeFile(t, dir, "node_modules/dijit/form/Button.js", "// dijit/form/Button")

	cfg, err := utils.ParseConfig(".json", []byte(config))
	require.NoError(t, err)
	cfg.Entry = "src/main.js"
	return dir, cfg
}

func TestPack(t *testing.T) {
	dir, cfg := project(t, `{
		"html": "index.html",
		"externalConfig": {"async": true},
		"externals": {
			"dojo": {"hasLoader": true, "main": "dojo", "packages": ["dojo"]},
			"dijit": {"packages": ["dijit"]}
		}
	}`)

	b := Bundle{RootDir: dir, Config: cfg, Environment: "production"}
	result, err := b.Pack()
	require.NoError(t, err)

	assert.Equal(t, "dojo", result.LoaderModule)
	require.Len(t, result.Externals, 2)
	assert.Equal(t, umd.StringRequest("dijit/form/Button"), result.Externals[0].Request)
	assert.Equal(t, umd.StringRequest("dojo/dom"), result.Externals[1].Request)

	out := filepath.Join(dir, "dist")
	for _, rel := range []string{
		"src/main.js",
		"manifest.json",
		"externals/dojo/dojo.js",
		"externals/dojo/dom.js",
		"externals/dijit/form/Button.js",
		"externals/requireExternals.js",
		"index.html",
	} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	assert.NoFileExists(t, filepath.Join(out, "externals/dojo/node_modules/ignored/index.js"))

	bootstrap, err := os.ReadFile(filepath.Join(out, "externals/requireExternals.js"))
	require.NoError(t, err)
	assert.Equal(t, `require({"async":true}, [ '../src/main.js' ]);`, string(bootstrap))

	page, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page),
		`<script src="externals/dojo/dojo.js"></script><script src="externals/requireExternals.js"></script><script src="vendor.js"></script>`)

	manifest, err := ReadManifest(out)
	require.NoError(t, err)
	assert.Equal(t, result.Manifest, manifest)
	assert.Equal(t, []string{"src/main.js"}, ManifestPaths(manifest))
	assert.NotEmpty(t, manifest["src/main.js"])

	bundle, err := os.ReadFile(filepath.Join(out, "src/main.js"))
	require.NoError(t, err)

	vm := goja.New()
	_, err = vm.RunString(`var result;
		var define = function () {}; define.amd = true;
		var require = function (deps, factory) {
		  result = factory.apply(null, deps.map(function (d) { return { byId: "amd:" + d }; }));
		};`)
	require.NoError(t, err)
	_, err = vm.RunString(string(bundle))
	require.NoError(t, err)

	v, err := vm.RunString(`result.byId + "|" + result.Button.byId`)
	require.NoError(t, err)
	assert.Equal(t, "amd:dojo/dom|amd:dijit/form/Button", v.Export())
}

func TestPackCustomLoader(t *testing.T) {
	dir, cfg := project(t, `{
		"name": "app",
		"loaderMap": {"dijit/form/Button": "dojo"},
		"externals": {"dojo": {"packages": ["dojo"]}}
	}`)

	b := Bundle{RootDir: dir, Config: cfg}
	result, err := b.Pack()
	require.NoError(t, err)
	assert.Equal(t, "", result.LoaderModule)

	out := filepath.Join(dir, "dist")
	assert.FileExists(t, filepath.Join(out, "externals/dojo/dojo.js"))
	assert.NoFileExists(t, filepath.Join(out, "index.html"))

	bundle, err := os.ReadFile(filepath.Join(out, "src/main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(bundle), "loads.push(dojoExternalModulesLoader.load('dojo', [ 'dijit/form/Button' ]));")

	vm := goja.New()
	_, err = vm.RunString(`this["dojo/dom"] = { byId: "global:dojo/dom" };
		var dojoExternalModulesLoader = {
		  load: function () {},
		  waitForActiveLoads: function () { return Promise.resolve([{ byId: "loaded:button" }]); }
		};`)
	require.NoError(t, err)
	_, err = vm.RunString(string(bundle))
	require.NoError(t, err)

	v, err := vm.RunString(`app.Button.byId + "|" + app.byId`)
	require.NoError(t, err)
	assert.Equal(t, "loaded:button|global:dojo/dom", v.Export())
}

func TestPackFailsOnNodeBuiltins(t *testing.T) {
	dir, cfg := project(t, `{}`)
	writeFile(t, dir, "src/main.js", `var fs = require("fs"); exports.read = fs.readFileSync;`)

	b := Bundle{RootDir: dir, Config: cfg}
	_, err := b.Pack()
	assert.Error(t, err)
}

func TestRequests(t *testing.T) {
	cfg := &utils.Config{
		Requests:  map[string]any{"jquery": map[string]any{"root": "jQuery", "amd": "jquery"}},
		LoaderMap: map[string]string{"dijit/form/Button": "dojo"},
	}

	requests, err := (&Bundle{Config: cfg}).Requests()
	require.NoError(t, err)
	assert.Equal(t, umd.StringRequest("dijit/form/Button"), requests["dijit/form/Button"])
	_, ok := requests["jquery"].Key()
	assert.False(t, ok)

	cfg.Requests["bad"] = 42
	_, err = (&Bundle{Config: cfg}).Requests()
	assert.Error(t, err)
}
