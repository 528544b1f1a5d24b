package plugins

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"micromachine.dev/dojo-externals/lib/umd"
)

const ExternalNamespace = "umd-external"

// ExternalSet collects the externals a build references. esbuild resolves
// imports concurrently, so access is guarded.
type ExternalSet struct {
	mu      sync.Mutex
	modules map[string]umd.ExternalModule
}

func NewExternalSet() *ExternalSet {
	return &ExternalSet{modules: map[string]umd.ExternalModule{}}
}

func (s *ExternalSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = map[string]umd.ExternalModule{}
}

func (s *ExternalSet) add(path string, m umd.ExternalModule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[path] = m
}

func (s *ExternalSet) Get(path string) (umd.ExternalModule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[path]
	return m, ok
}

// Modules returns the recorded externals sorted by import path.
func (s *ExternalSet) Modules() []umd.ExternalModule {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.modules))
	for p := range s.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	modules := make([]umd.ExternalModule, 0, len(paths))
	for _, p := range paths {
		modules = append(modules, s.modules[p])
	}
	return modules
}

type ExternalPackagesPlugin struct {
	// Packages are bare import prefixes, e.g. "dojo" covers "dojo/dom".
	Packages []string
	// Requests maps an exact import path to how it is reached at run time.
	Requests  map[string]umd.Request
	Optional  []string
	Externals *ExternalSet
}

func (p *ExternalPackagesPlugin) Matches(path string) bool {
	if _, ok := p.Requests[path]; ok {
		return true
	}
	for _, pkg := range p.Packages {
		if path == pkg || strings.HasPrefix(path, pkg+"/") {
			return true
		}
	}
	return false
}

func (p *ExternalPackagesPlugin) module(path string) umd.ExternalModule {
	request, ok := p.Requests[path]
	if !ok {
		request = umd.StringRequest(path)
	}
	return umd.ExternalModule{
		ID:       umd.ModuleID(path),
		Request:  request,
		Optional: slices.Contains(p.Optional, path),
	}
}

func (p *ExternalPackagesPlugin) New() api.Plugin {
	return api.Plugin{
		Name: "external-packages",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				p.Externals.Reset()
				return api.OnStartResult{}, nil
			})

			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Namespace == ExternalNamespace || !p.Matches(args.Path) {
					return api.OnResolveResult{}, nil
				}

				p.Externals.add(args.Path, p.module(args.Path))

				return api.OnResolveResult{
					Path:      args.Path,
					Namespace: ExternalNamespace,
				}, nil
			})
		},
	}
}
