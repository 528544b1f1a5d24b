package externals

import (
	"path"
	"strings"
)

const (
	// Dir is the folder, relative to the output directory, that externals are
	// copied into.
	Dir = "externals"

	// BootstrapScript is the bootstrap file written next to the externals.
	BootstrapScript = Dir + "/requireExternals.js"

	// EntryModuleID is the module id the bootstrap script requires last. It points
	// from the externals folder at the application bundle.
	EntryModuleID = "../src/main.js"

	// DefaultLoaderModule is the Dojo package copied in when no dependency carries
	// its own loader.
	DefaultLoaderModule = "dojo"
	defaultLoaderAsset  = DefaultLoaderModule + "/dojo.js"
)

// CopyRule is a single copy of a dependency into the output directory. The
// bootstrap rule carries no source; its contents are rendered from a template.
type CopyRule struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Bootstrap bool   `json:"bootstrap,omitempty"`
}

type HTMLAssetsConfig struct {
	Assets []string `json:"assets"`
	Append bool     `json:"append"`
}

// DetermineLoaderModule returns the first dependency, in declaration order, that
// supplies a loader.
func DetermineLoaderModule(set *DependencySet) (string, bool) {
	for _, d := range set.Dependencies() {
		if d.Descriptor.HasLoader {
			return d.Key, true
		}
	}
	return "", false
}

// LoaderModules returns every dependency that claims to supply a loader. Only the
// first one is used.
func LoaderModules(set *DependencySet) []string {
	var keys []string
	for _, d := range set.Dependencies() {
		if d.Descriptor.HasLoader {
			keys = append(keys, d.Key)
		}
	}
	return keys
}

func CopyDestination(set *DependencySet, key string) string {
	if d, ok := set.Get(key); ok && d.To != "" {
		return Dir + "/" + d.To
	}
	return Dir + "/" + key
}

// AssetPath is the path of a dependency's loadable file relative to the
// externals folder, with or without its `.js` extension.
func AssetPath(key string, d Descriptor, includeExtension bool) string {
	p := key
	if d.To != "" {
		p = d.To
	}
	if d.Main != "" {
		p = p + "/" + d.Main
	}

	hasExtension := strings.HasSuffix(p, ".js")
	if includeExtension {
		if hasExtension {
			return p
		}
		return p + ".js"
	}

	return strings.TrimSuffix(p, ".js")
}

// EagerModuleIDs lists the module ids the bootstrap script requires up front.
// The loader module is never included and the list always ends with the
// application entry module.
func EagerModuleIDs(set *DependencySet, loaderModule string) []string {
	var ids []string
	for _, d := range set.Dependencies() {
		if d.Key == loaderModule || !d.Descriptor.Eager() {
			continue
		}
		ids = append(ids, AssetPath(d.Key, d.Descriptor, false))
	}
	return append(ids, EntryModuleID)
}

// QuoteModuleIDs renders ids as a comma separated list of single quoted
// JavaScript strings.
func QuoteModuleIDs(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quoteJS(id)
	}
	return strings.Join(quoted, ", ")
}

func quoteJS(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}

func CopyRules(set *DependencySet, loaderModule string) []CopyRule {
	rules := make([]CopyRule, 0, set.Len()+2)
	for _, key := range set.Keys() {
		rules = append(rules, CopyRule{
			From: "node_modules/" + key,
			To:   CopyDestination(set, key),
		})
	}

	rules = append(rules, CopyRule{To: BootstrapScript, Bootstrap: true})

	if loaderModule == "" {
		rules = append(rules, CopyRule{
			From: path.Join("node_modules", DefaultLoaderModule),
			To:   path.Join(Dir, DefaultLoaderModule),
		})
	}

	return rules
}

// HTMLAssets lists the scripts a page needs before the bundle: the loader and the
// bootstrap script.
func HTMLAssets(set *DependencySet, loaderModule string) HTMLAssetsConfig {
	return HTMLAssetsConfig{
		Assets: []string{
			Dir + "/" + LoaderAsset(set, loaderModule),
			BootstrapScript,
		},
		Append: false,
	}
}

// LoaderAsset is the loader script relative to the externals folder.
func LoaderAsset(set *DependencySet, loaderModule string) string {
	if loaderModule == "" {
		return defaultLoaderAsset
	}
	d, _ := set.Get(loaderModule)
	return AssetPath(loaderModule, d, true)
}

// PackageLocation returns the folder, relative to the externals folder, that
// holds the AMD package pkg. A dependency named pkg is its own package; a
// package listed by a dependency lives in a sub folder of it.
func PackageLocation(set *DependencySet, pkg string) (string, bool) {
	if d, ok := set.Get(pkg); ok {
		if d.To != "" {
			return d.To, true
		}
		return pkg, true
	}

	for _, d := range set.Dependencies() {
		for _, p := range d.Descriptor.Packages {
			if p != pkg {
				continue
			}
			base := d.Key
			if d.Descriptor.To != "" {
				base = d.Descriptor.To
			}
			return base + "/" + pkg, true
		}
	}

	return "", false
}

// Packages is the ordered, de-duplicated union of every dependency's packages.
func Packages(set *DependencySet) []string {
	seen := make(map[string]struct{})
	var packages []string
	for _, d := range set.Dependencies() {
		for _, p := range d.Descriptor.Packages {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			packages = append(packages, p)
		}
	}
	return packages
}
