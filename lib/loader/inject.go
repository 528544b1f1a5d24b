package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileInjector "injects" a script by checking it exists as a regular file under
// Root. It is used to verify a build output on disk.
type FileInjector struct {
	Root string
}

func (f FileInjector) Inject(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return &ScriptLoadError{Path: path, Err: err}
	}

	info, err := os.Stat(filepath.Join(f.Root, filepath.FromSlash(path)))
	if err != nil {
		return &ScriptLoadError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &ScriptLoadError{Path: path, Err: fmt.Errorf("%s is not a file", path)}
	}
	return nil
}

// HTTPInjector fetches scripts relative to BaseURL. Any non 2xx response fails
// the injection.
type HTTPInjector struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPInjector) Inject(ctx context.Context, path string) error {
	target, err := url.JoinPath(h.BaseURL, path)
	if err != nil {
		return &ScriptLoadError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &ScriptLoadError{Path: path, Err: err}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ScriptLoadError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ScriptLoadError{Path: path, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

// Module is the value an AMD file load resolves to.
type Module struct {
	ID   string
	Path string
}

// PackageLocator maps the first segment of an AMD module id to the folder,
// relative to the externals folder, that holds the package.
type PackageLocator func(pkg string) (string, bool)

// AMDFileLoader loads AMD module ids as files. The loader script is injected
// once per retrieval, then every module id is resolved to `<location>/<rest>.js`
// and injected in turn.
func AMDFileLoader(loaderScript string, locate PackageLocator) RetrieveLoader {
	return func(ctx context.Context, inject InjectScript) (Load, error) {
		if err := inject(ctx, loaderScript); err != nil {
			return nil, err
		}

		return func(ctx context.Context, moduleIDs []string) ([]any, error) {
			values := make([]any, 0, len(moduleIDs))
			for _, id := range moduleIDs {
				p, err := ModulePath(id, locate)
				if err != nil {
					return nil, err
				}
				if err := inject(ctx, p); err != nil {
					return nil, err
				}
				values = append(values, Module{ID: id, Path: p})
			}
			return values, nil
		}, nil
	}
}

// ModulePath resolves an AMD module id to a script path.
func ModulePath(id string, locate PackageLocator) (string, error) {
	if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, "://") {
		return "", fmt.Errorf("%w: %q", ErrUnknownPath, id)
	}

	pkg, rest, _ := strings.Cut(id, "/")
	p := id
	if locate != nil {
		if location, ok := locate(pkg); ok {
			p = location
			if rest != "" {
				p = location + "/" + rest
			}
		}
	}

	if !strings.HasSuffix(p, ".js") {
		p += ".js"
	}
	return p, nil
}
