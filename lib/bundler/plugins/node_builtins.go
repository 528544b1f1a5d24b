package plugins

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

var nodeBuiltinModules = []string{
	"assert", "async_hooks", "buffer", "child_process", "cluster", "console", "constants",
	"crypto", "dgram", "diagnostics_channel", "dns", "domain", "events", "fs", "http", "http2",
	"https", "inspector", "module", "net", "os", "path", "perf_hooks", "process", "punycode",
	"querystring", "readline", "repl", "stream", "string_decoder", "sys", "timers", "tls",
	"trace_events", "tty", "url", "util", "v8", "vm", "wasi", "worker_threads", "zlib",
}

var nodeModulesReStr = fmt.Sprintf(`^(node:)?(%s)(/.*)?$`, strings.Join(nodeBuiltinModules, "|"))
var nodeModulesRe = regexp.MustCompile(nodeModulesReStr)

// NodeBuiltinsPlugin fails a browser build that imports Node.js built-in
// modules. The UMD wrapper has nowhere to load them from.
type NodeBuiltinsPlugin struct{}

func IsNodeBuiltin(path string) bool {
	return nodeModulesRe.MatchString(path)
}

func (p *NodeBuiltinsPlugin) New() api.Plugin {
	return api.Plugin{
		Name: "node-builtins",
		Setup: func(build api.PluginBuild) {
			var mu sync.Mutex
			paths := make(map[string]string)

			build.OnStart(func() (api.OnStartResult, error) {
				mu.Lock()
				paths = make(map[string]string)
				mu.Unlock()
				return api.OnStartResult{}, nil
			})

			build.OnResolve(api.OnResolveOptions{Filter: nodeModulesReStr}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				mu.Lock()
				paths[args.Path] = args.Importer
				mu.Unlock()
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				mu.Lock()
				defer mu.Unlock()

				if len(paths) == 0 {
					return api.OnEndResult{}, nil
				}

				pathList := make([]string, 0, len(paths))
				for path, importer := range paths {
					pathList = append(pathList, fmt.Sprintf("%s (from %s)", path, importer))
				}
				sort.Strings(pathList)

				return api.OnEndResult{
					Errors: []api.Message{
						{
							Text:       fmt.Sprintf("Unexpected import of Node.js built-in module(s): %s. Browser bundles cannot load them.", strings.Join(pathList, ", ")),
							PluginName: "node-builtins",
						},
					},
				}, nil
			})
		},
	}
}
