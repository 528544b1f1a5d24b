// Package umd renders the Universal Module Definition wrapper placed around a
// bundle. Besides the usual CommonJS, AMD and global registration, the wrapper
// can defer to a run-time loader coordinator for externals that are loaded by a
// custom loader, binding their values as the leading factory arguments.
package umd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// GlobalLoaderName is the global the generated code looks up to find the
// loader coordinator.
const GlobalLoaderName = "dojoExternalModulesLoader"

// Names is the library name exposed per environment.
type Names struct {
	Root     Accessor
	AMD      Accessor
	CommonJS Accessor
}

// ParseNames reads names from a decoded configuration value. A string applies
// to every environment, with the root name split on dots into a property path.
func ParseNames(v any) (Names, error) {
	switch raw := v.(type) {
	case nil:
		return Names{}, nil
	case string:
		if raw == "" {
			return Names{}, nil
		}
		return Names{
			Root:     strings.Split(raw, "."),
			AMD:      Accessor{raw},
			CommonJS: Accessor{raw},
		}, nil
	case []string, []any:
		a, err := parseAccessor(raw)
		if err != nil {
			return Names{}, fmt.Errorf("name: %w", err)
		}
		return Names{Root: a, AMD: a, CommonJS: a}, nil
	case map[string]any:
		var names Names
		for k, value := range raw {
			var a Accessor
			if s, ok := value.(string); ok && Target(k) == TargetRoot {
				a = strings.Split(s, ".")
			} else {
				var err error
				if a, err = parseAccessor(value); err != nil {
					return Names{}, fmt.Errorf("name %q: %w", k, err)
				}
			}
			switch Target(k) {
			case TargetRoot:
				names.Root = a
			case TargetAMD:
				names.AMD = a
			case TargetCommonJS:
				names.CommonJS = a
			default:
				return Names{}, fmt.Errorf("unknown name target %q", k)
			}
		}
		return names, nil
	}

	return Names{}, fmt.Errorf("unsupported name %T", v)
}

type Options struct {
	Names       Names
	NamedDefine bool
	// LoaderMap maps a plain request to the loader type that loads it.
	LoaderMap map[string]string
	// ReplaceKeys substitutes template keys such as `[name]` in rendered requests
	// and names.
	ReplaceKeys func(string) string
}

type Generator struct {
	names       Names
	namedDefine bool
	loaderMap   map[string]string
	replaceKeys func(string) string
}

func New(opts Options) *Generator {
	replaceKeys := opts.ReplaceKeys
	if replaceKeys == nil {
		replaceKeys = func(s string) string { return s }
	}
	return &Generator{
		names:       opts.Names,
		namedDefine: opts.NamedDefine,
		loaderMap:   opts.LoaderMap,
		replaceKeys: replaceKeys,
	}
}

func (g *Generator) Names() Names {
	return g.names
}

// LoaderType returns the loader type m is loaded with, if it is a custom
// external.
func (g *Generator) LoaderType(m ExternalModule) (string, bool) {
	key, ok := m.Request.Key()
	if !ok {
		return "", false
	}
	typ, ok := g.loaderMap[key]
	return typ, ok
}

type loaderGroup struct {
	typ     string
	modules []ExternalModule
}

// Render wraps source, the body of a CommonJS module, in the UMD wrapper for
// modules. The factory receives the custom externals first, grouped by loader
// type in the order the types are first seen, then the default externals with
// required ones ahead of optional ones.
func (g *Generator) Render(modules []ExternalModule, source string) (string, error) {
	var defaults []ExternalModule
	var groups []*loaderGroup
	byType := make(map[string]*loaderGroup)

	for _, m := range modules {
		typ, custom := g.LoaderType(m)
		if !custom {
			defaults = append(defaults, m)
			continue
		}
		group, ok := byType[typ]
		if !ok {
			group = &loaderGroup{typ: typ}
			byType[typ] = group
			groups = append(groups, group)
		}
		group.modules = append(group.modules, m)
	}

	var required, optional []ExternalModule
	for _, m := range defaults {
		if m.Optional {
			optional = append(optional, m)
		} else {
			required = append(required, m)
		}
	}
	if len(optional) > 0 {
		defaults = append(append([]ExternalModule(nil), required...), optional...)
	}

	body, err := g.renderUMD(defaults, required, optional)
	if err != nil {
		return "", err
	}

	var ordered []ExternalModule
	for _, group := range groups {
		ordered = append(ordered, group.modules...)
	}
	params := params(append(ordered, defaults...))

	var b strings.Builder
	b.WriteString("(function umdWrapper(root, factory) {\n")
	if len(groups) > 0 {
		b.WriteString(g.wrapInCustomLoad(groups, len(ordered), body))
	} else {
		b.WriteString(body)
	}
	b.WriteString("})(this, function(" + params + ") {\n")
	b.WriteString("var module = { exports: {} }, exports = module.exports;\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("return module.exports;\n")
	b.WriteString("});\n")

	return b.String(), nil
}

func (g *Generator) renderUMD(defaults, required, optional []ExternalModule) (string, error) {
	commonJS2, err := g.requireArray(defaults, TargetCommonJS2)
	if err != nil {
		return "", err
	}

	amdFactory := "factory"
	if len(optional) > 0 {
		optionalArgs, err := g.rootArray(optional, true)
		if err != nil {
			return "", err
		}
		args := optionalArgs
		if len(required) > 0 {
			args = params(required) + ", " + optionalArgs
		}
		amdFactory = "function umdLoadOptionalExternalModuleAmd(" + params(required) + ") {\n" +
			"\t\t\treturn factory(" + args + ");\n" +
			"\t\t}"
	}

	deps, err := g.depsArray(required)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("\tif(typeof exports === \"object\" && typeof module === \"object\")\n")
	b.WriteString("\t\tmodule.exports = factory(" + commonJS2 + ");\n")
	b.WriteString("\telse if(typeof define === \"function\" && define.amd)\n")
	if len(g.names.AMD) > 0 && g.namedDefine {
		b.WriteString("\t\tdefine(" + g.libraryName(g.names.AMD) + ", " + deps + ", " + amdFactory + ");\n")
	} else {
		b.WriteString("\t\trequire(" + deps + ", " + amdFactory + ");\n")
	}

	if len(g.names.Root) > 0 || len(g.names.CommonJS) > 0 {
		commonJS, err := g.requireArray(defaults, TargetCommonJS)
		if err != nil {
			return "", err
		}
		rootArgs, err := g.rootArray(defaults, false)
		if err != nil {
			return "", err
		}

		exportName := g.names.CommonJS
		if len(exportName) == 0 {
			exportName = g.names.Root
		}
		rootName := g.names.Root
		if len(rootName) == 0 {
			rootName = g.names.CommonJS
		}

		b.WriteString("\telse if(typeof exports === \"object\")\n")
		b.WriteString("\t\texports[" + g.libraryName(exportName) + "] = factory(" + commonJS + ");\n")
		b.WriteString("\telse\n")
		b.WriteString("\t\t" + g.replaceKeys(accessorAccess("root", rootName)) + " = factory(" + rootArgs + ");\n")
		return b.String(), nil
	}

	b.WriteString("\telse {\n")
	if len(defaults) > 0 {
		commonJS, err := g.requireArray(defaults, TargetCommonJS)
		if err != nil {
			return "", err
		}
		rootArgs, err := g.rootArray(defaults, false)
		if err != nil {
			return "", err
		}
		b.WriteString("\t\tvar a = typeof exports === \"object\" ? factory(" + commonJS + ") : factory(" + rootArgs + ");\n")
	} else {
		b.WriteString("\t\tvar a = factory();\n")
	}
	b.WriteString("\t\tfor(var i in a) (typeof exports === \"object\" ? exports : root)[i] = a[i];\n")
	b.WriteString("\t}\n")

	return b.String(), nil
}

// wrapInCustomLoad defers the UMD registration until the coordinator has loaded
// every custom external. Without a coordinator the custom parameters are bound
// to undefined so the default externals keep their positions.
func (g *Generator) wrapInCustomLoad(groups []*loaderGroup, customCount int, body string) string {
	var b strings.Builder
	b.WriteString("if (typeof " + GlobalLoaderName + " === \"undefined\") {\n")
	fmt.Fprintf(&b, "runUMD(root, factory.bind.apply(factory, [ null ].concat(new Array(%d))));\n", customCount)
	b.WriteString("}\n")
	b.WriteString("else {\n")
	b.WriteString("var loads = [];\n")
	for _, group := range groups {
		requests := make([]string, len(group.modules))
		for i, m := range group.modules {
			key, _ := m.Request.Key()
			requests[i] = quoteJS(g.replaceKeys(key))
		}
		b.WriteString("loads.push(" + GlobalLoaderName + ".load(" + quoteJS(group.typ) + ", [ " + strings.Join(requests, ", ") + " ]));\n")
	}
	// A rejected load, such as an unknown loader type, must keep the factory
	// from running with its parameters shifted.
	b.WriteString("Promise.all(loads).then(function () {\n")
	b.WriteString("return " + GlobalLoaderName + ".waitForActiveLoads();\n")
	b.WriteString("}).then(function (modules) {\n")
	b.WriteString("factory = factory.bind.apply(factory, [ null ].concat(modules));\n")
	b.WriteString("runUMD(root, factory);\n")
	b.WriteString("});\n")
	b.WriteString("}\n")
	b.WriteString("function runUMD(root, factory) {\n")
	b.WriteString(body)
	b.WriteString("}\n")
	return b.String()
}

func (g *Generator) depsArray(modules []ExternalModule) (string, error) {
	deps := make([]string, len(modules))
	for i, m := range modules {
		a, ok := m.Request.For(TargetAMD)
		if !ok {
			return "", &MissingExternalRequestError{Target: TargetAMD, Request: m.Request.String()}
		}
		deps[i] = jsString(a[0])
	}
	return "[" + g.replaceKeys(strings.Join(deps, ", ")) + "]", nil
}

func (g *Generator) rootArray(modules []ExternalModule, guarded bool) (string, error) {
	exprs := make([]string, len(modules))
	for i, m := range modules {
		a, ok := m.Request.For(TargetRoot)
		if !ok {
			return "", &MissingExternalRequestError{Target: TargetRoot, Request: m.Request.String()}
		}
		expr := "root" + objectAccess(a)
		if guarded {
			expr = optionalExpr(expr)
		}
		exprs[i] = expr
	}
	return g.replaceKeys(strings.Join(exprs, ", ")), nil
}

func (g *Generator) requireArray(modules []ExternalModule, t Target) (string, error) {
	exprs := make([]string, len(modules))
	for i, m := range modules {
		a, ok := m.Request.For(t)
		if !ok {
			return "", &MissingExternalRequestError{Target: t, Request: m.Request.String()}
		}
		expr := "require(" + jsString(a[0]) + ")" + objectAccess(a[1:])
		if m.Optional {
			expr = optionalExpr(expr)
		}
		exprs[i] = expr
	}
	return g.replaceKeys(strings.Join(exprs, ", ")), nil
}

func (g *Generator) libraryName(name Accessor) string {
	return jsString(g.replaceKeys(name[len(name)-1]))
}

func optionalExpr(expr string) string {
	return "(function umdLoadOptionalExternalModule() { try { return " + expr + "; } catch(e) {} }())"
}

func params(modules []ExternalModule) string {
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Param()
	}
	return strings.Join(names, ", ")
}

func objectAccess(a Accessor) string {
	var b strings.Builder
	for _, p := range a {
		b.WriteString("[" + jsString(p) + "]")
	}
	return b.String()
}

// accessorAccess assigns each intermediate level of a before the last so that
// `root["a"]["b"]["c"]` can be assigned when `a` or `b` do not exist yet.
func accessorAccess(base string, a Accessor) string {
	parts := make([]string, len(a))
	for i := range a {
		expr := base + objectAccess(a[:i+1])
		if i == len(a)-1 {
			parts[i] = expr
			continue
		}
		parts[i] = expr + " = " + expr + " || {}"
	}
	return strings.Join(parts, ", ")
}

func jsString(s string) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func quoteJS(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}
