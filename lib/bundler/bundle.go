package bundler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"micromachine.dev/dojo-externals/lib/bundler/plugins"
	"micromachine.dev/dojo-externals/lib/externals"
	"micromachine.dev/dojo-externals/lib/umd"
	"micromachine.dev/dojo-externals/lib/utils"
)

const ManifestFile = "manifest.json"

// entryOutputPath places the bundle where the bootstrap's entry module id
// points: ../src/main.js seen from the externals folder.
const entryOutputPath = "src/main"

type Bundle struct {
	RootDir        string
	Config         *utils.Config
	Environment    string
	PackageManager string
	BuildScript    string
	Minify         bool
	// Bootstrap overrides the embedded requireExternals.js template.
	Bootstrap *BootstrapTemplate
}

// Result describes what Pack wrote.
type Result struct {
	LoaderModule string
	Externals    []umd.ExternalModule
	// Manifest maps every output file, relative to the output directory, to its
	// artifact hash.
	Manifest map[string]string
}

func (b *Bundle) Pack() (*Result, error) {
	absDir, err := filepath.Abs(b.RootDir)
	if err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, fmt.Errorf("could not resolve absolute path: %w", err)
	}

	outDir := b.GetOutputDir(absDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}

	set := &b.Config.Externals
	loaderModule, _ := externals.DetermineLoaderModule(set)
	if loaders := externals.LoaderModules(set); len(loaders) > 1 {
		slog.Warn(fmt.Sprintf("More than one external declares hasLoader, using %q", loaderModule), "declared", strings.Join(loaders, ", "))
	}

	generator, err := b.Generator()
	if err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, err
	}

	requests, err := b.Requests()
	if err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, err
	}

	start := time.Now()
	utils.LogWithColor(utils.Cyan, "Bundling application...")

	externalSet := plugins.NewExternalSet()

	externalPackagesPlugin := plugins.ExternalPackagesPlugin{
		Packages:  externals.Packages(set),
		Requests:  requests,
		Optional:  b.Config.Optional,
		Externals: externalSet,
	}

	externalsWrapperPlugin := plugins.ExternalsWrapperPlugin{
		Generator: generator,
		Externals: externalSet,
	}

	nodeBuiltinsPlugin := plugins.NodeBuiltinsPlugin{}
	registerLoaderPlugin := plugins.RegisterLoaderPlugin{}

	result := api.Build(api.BuildOptions{
		Plugins: []api.Plugin{
			registerLoaderPlugin.New(),
			externalPackagesPlugin.New(),
			nodeBuiltinsPlugin.New(),
			externalsWrapperPlugin.New(),
		},
		EntryPointsAdvanced: []api.EntryPoint{
			{InputPath: b.Config.Entry, OutputPath: entryOutputPath},
		},
		Outdir:            outDir,
		AbsWorkingDir:     absDir,
		Bundle:            true,
		Write:             false,
		Format:            api.FormatCommonJS,
		Platform:          api.PlatformBrowser,
		Target:            api.ES2017,
		TreeShaking:       api.TreeShakingTrue,
		MinifyWhitespace:  b.Minify,
		MinifyIdentifiers: b.Minify,
		MinifySyntax:      b.Minify,
		LogLevel:          api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": toJSString(b.Environment),
		},
	})

	if len(result.Errors) > 0 {
		for _, err := range result.Errors {
			slog.Error(fmt.Sprintf("✗ %s", formatMessage(err)))
		}

		return nil, fmt.Errorf("bundle failed with %d error(s)", len(result.Errors))
	}

	for _, warning := range result.Warnings {
		slog.Warn(formatMessage(warning))
	}

	manifest, err := writeOutputFiles(outDir, result.OutputFiles)
	if err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, err
	}

	utils.LogCompleted("Bundling completed", start)

	now := time.Now()
	utils.LogWithColor(utils.Default, "Copying externals...")

	if err := b.Copy(absDir, outDir, set, loaderModule); err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return nil, fmt.Errorf("could not copy externals: %w", err)
	}

	utils.LogCompleted("Externals copied", now)

	if b.Config.HTML != "" {
		if err := b.WriteHTML(absDir, outDir, externals.HTMLAssets(set, loaderModule)); err != nil {
			slog.Error(fmt.Sprintf("✗ %v", err))
			return nil, err
		}
	}

	return &Result{
		LoaderModule: loaderModule,
		Externals:    externalSet.Modules(),
		Manifest:     manifest,
	}, nil
}

// Generator builds the UMD wrapper generator from the configuration. "[name]"
// in names is replaced with the entry's base name.
func (b *Bundle) Generator() (*umd.Generator, error) {
	var names umd.Names
	if b.Config.Name != nil {
		n, err := umd.ParseNames(b.Config.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid name: %w", err)
		}
		names = n
	}

	entryName := strings.TrimSuffix(filepath.Base(b.Config.Entry), filepath.Ext(b.Config.Entry))
	replacer := strings.NewReplacer("[name]", entryName)

	return umd.New(umd.Options{
		Names:       names,
		NamedDefine: b.Config.NamedDefine,
		LoaderMap:   b.Config.LoaderMap,
		ReplaceKeys: replacer.Replace,
	}), nil
}

// Requests merges the explicit request mappings with the loader map. Modules
// handled by a custom loader are always external.
func (b *Bundle) Requests() (map[string]umd.Request, error) {
	requests := make(map[string]umd.Request, len(b.Config.Requests)+len(b.Config.LoaderMap))
	for path, raw := range b.Config.Requests {
		r, err := umd.ParseRequest(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid request for %q: %w", path, err)
		}
		requests[path] = r
	}
	for path := range b.Config.LoaderMap {
		if _, ok := requests[path]; !ok {
			requests[path] = umd.StringRequest(path)
		}
	}
	return requests, nil
}

// Copy executes the copy rules: dependencies are copied from node_modules into
// the externals folder and the bootstrap script is rendered.
func (b *Bundle) Copy(absDir, outDir string, set *externals.DependencySet, loaderModule string) error {
	for _, rule := range externals.CopyRules(set, loaderModule) {
		target := filepath.Join(outDir, filepath.FromSlash(rule.To))

		if rule.Bootstrap {
			if err := b.writeBootstrap(target, set, loaderModule); err != nil {
				return err
			}
			continue
		}

		src := filepath.Join(absDir, filepath.FromSlash(rule.From))
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("could not stat %s: %w", rule.From, err)
		}

		if info.IsDir() {
			err = copyDir(src, target, []string{"node_modules"})
		} else {
			err = copyFile(src, target, info.Mode())
		}
		if err != nil {
			return fmt.Errorf("could not copy %s: %w", rule.From, err)
		}
	}

	return nil
}

func (b *Bundle) writeBootstrap(target string, set *externals.DependencySet, loaderModule string) error {
	tmpl := b.Bootstrap
	if tmpl == nil {
		tmpl = DefaultBootstrapTemplate()
	}

	data, err := NewBootstrapData(b.Config.ExternalConfig, set, loaderModule)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("could not render %s: %w", externals.BootstrapScript, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return os.WriteFile(target, buf.Bytes(), 0644)
}

func (b *Bundle) WriteHTML(absDir, outDir string, assets externals.HTMLAssetsConfig) error {
	src, err := os.Open(filepath.Join(absDir, b.Config.HTML))
	if err != nil {
		return fmt.Errorf("could not open html page: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	if err := InjectHTMLAssets(src, &buf, assets); err != nil {
		return err
	}

	target := filepath.Join(outDir, filepath.Base(b.Config.HTML))
	if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("could not write html page: %w", err)
	}
	return nil
}

func (b *Bundle) RunBuildCommand() error {
	if b.BuildScript == "" {
		return nil
	}

	cmdName := b.PackageManager + " run " + b.BuildScript

	start := time.Now()
	utils.LogWithColor(utils.Default, fmt.Sprintf("Running `%s`...", cmdName))
	err := b.RunCommand(b.PackageManager, "run", b.BuildScript)

	if err != nil {
		slog.Error(fmt.Sprintf("✗ %v", err))
		return fmt.Errorf("build command failed: %w", err)
	}
	utils.LogCompleted(fmt.Sprintf("Completed `%s`", cmdName), start)

	return nil
}

func (b *Bundle) RunCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = b.RootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (b *Bundle) GetOutputDir(absDir string) string {
	if filepath.IsAbs(b.Config.OutDir) {
		return b.Config.OutDir
	}
	return filepath.Join(absDir, b.Config.OutDir)
}

func writeOutputFiles(outDir string, files []api.OutputFile) (map[string]string, error) {
	manifest := make(map[string]string, len(files))

	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
			return nil, fmt.Errorf("could not create output directory: %w", err)
		}
		if err := os.WriteFile(f.Path, f.Contents, 0644); err != nil {
			return nil, fmt.Errorf("could not write %s: %w", f.Path, err)
		}

		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			rel = f.Path
		}
		manifest[filepath.ToSlash(rel)] = f.Hash
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestFile), data, 0644); err != nil {
		return nil, fmt.Errorf("could not write manifest: %w", err)
	}

	return manifest, nil
}

// ReadManifest loads the manifest Pack wrote to outDir.
func ReadManifest(outDir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(outDir, ManifestFile))
	if err != nil {
		return nil, err
	}
	manifest := map[string]string{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return manifest, nil
}

// ManifestPaths returns the manifest's files in sorted order.
func ManifestPaths(manifest map[string]string) []string {
	paths := make([]string, 0, len(manifest))
	for p := range manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

func copyDir(src, dst string, ignorePath []string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)

		for _, p := range ignorePath {
			if rel == p || strings.HasPrefix(rel, p+string(filepath.Separator)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode.Perm())
}

func toJSString(val string) string {
	if val == "" {
		return `""`
	}
	b, _ := json.Marshal(val)
	return string(b)
}
