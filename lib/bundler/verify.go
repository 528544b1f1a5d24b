package bundler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"micromachine.dev/dojo-externals/lib/externals"
	"micromachine.dev/dojo-externals/lib/loader"
	"micromachine.dev/dojo-externals/lib/utils"
)

// Verify loads every custom external of cfg through a Coordinator, the way the
// generated wrapper does in the browser. Scripts are resolved relative to the
// externals folder by injector.
func Verify(ctx context.Context, cfg *utils.Config, injector loader.ScriptInjector) ([]loader.Module, error) {
	set := &cfg.Externals

	loaderModule, _ := externals.DetermineLoaderModule(set)
	loaderScript := externals.LoaderAsset(set, loaderModule)

	locate := func(pkg string) (string, bool) {
		return externals.PackageLocation(set, pkg)
	}

	byType := map[string][]string{}
	for id, typ := range cfg.LoaderMap {
		byType[typ] = append(byType[typ], id)
	}

	types := make([]string, 0, len(byType))
	for typ := range byType {
		types = append(types, typ)
	}
	sort.Strings(types)

	c := loader.New(injector)
	retrieve := loader.AMDFileLoader(loaderScript, locate)
	for _, typ := range types {
		c.RegisterLoader(typ, retrieve)
	}

	for _, typ := range types {
		ids := byType[typ]
		sort.Strings(ids)
		if _, err := c.Load(ctx, typ, ids); err != nil {
			return nil, err
		}
		slog.Debug("loading externals", "type", typ, "modules", len(ids))
	}

	values, err := c.WaitForActiveLoads(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load custom externals: %w", err)
	}

	modules := make([]loader.Module, 0, len(values))
	for _, v := range values {
		m, ok := v.(loader.Module)
		if !ok {
			return nil, fmt.Errorf("unexpected module value %T", v)
		}
		modules = append(modules, m)
	}
	return modules, nil
}
