package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
	"micromachine.dev/dojo-externals/lib/externals"
)

const (
	DefaultEntry  = "src/main.ts"
	DefaultOutDir = "dist"
)

var ErrNoConfig = errors.New("no externals configuration file found")

var configFiles = []string{
	"externals.toml",
	"externals.json",
	"externals.jsonc",
	"externals.yaml",
	"externals.yml",
}

type Config struct {
	Entry  string `json:"entry" yaml:"entry" toml:"entry"`
	OutDir string `json:"outdir" yaml:"outdir" toml:"outdir"`
	// HTML is the page the externals script tags are injected into.
	HTML string `json:"html" yaml:"html" toml:"html"`
	// Name is the library name, either a string, a list, or a map by target.
	Name        any  `json:"name" yaml:"name" toml:"name"`
	NamedDefine bool `json:"namedDefine" yaml:"namedDefine" toml:"namedDefine"`
	// ExternalConfig is passed to the AMD loader by the bootstrap script.
	ExternalConfig any                     `json:"externalConfig" yaml:"externalConfig" toml:"externalConfig"`
	Externals      externals.DependencySet `json:"externals" yaml:"externals" toml:"-"`
	LoaderMap      map[string]string       `json:"loaderMap" yaml:"loaderMap" toml:"loaderMap"`
	Requests       map[string]any          `json:"requests" yaml:"requests" toml:"requests"`
	Optional       []string                `json:"optional" yaml:"optional" toml:"optional"`

	// Path is the file the configuration was read from.
	Path string `json:"-" yaml:"-" toml:"-"`
}

// DetectConfigFile reads the first externals configuration file found in root,
// or the file at explicit when it is set.
func DetectConfigFile(root *string, explicit string) (*Config, error) {
	rootDir := ""
	if root != nil {
		rootDir = *root
	}

	paths := make([]string, 0, len(configFiles))
	if explicit != "" {
		if !filepath.IsAbs(explicit) {
			explicit = filepath.Join(rootDir, explicit)
		}
		paths = append(paths, explicit)
	} else {
		for _, name := range configFiles {
			paths = append(paths, filepath.Join(rootDir, name))
		}
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		config, err := ParseConfig(filepath.Ext(path), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		config.Path = path
		return config, nil
	}

	if explicit != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoConfig, explicit)
	}
	return nil, ErrNoConfig
}

// ParseConfig decodes a configuration document; ext selects the format.
func ParseConfig(ext string, data []byte) (*Config, error) {
	config := &Config{}

	switch ext {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
		if err := json.Unmarshal(data, config); err != nil {
			return nil, err
		}
		// externalConfig is spliced into the bootstrap as written.
		var raw struct {
			ExternalConfig json.RawMessage `json:"externalConfig"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if len(raw.ExternalConfig) > 0 && string(raw.ExternalConfig) != "null" {
			config.ExternalConfig = raw.ExternalConfig
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, err
		}
		// TOML tables carry no order, so externals go through the generic form.
		raw := map[string]any{}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		config.Externals = *externals.NewDependencySet()
		if err := config.Externals.FromAny(raw["externals"]); err != nil {
			return nil, err
		}
		if _, table := raw["externals"].(map[string]any); table {
			if loaders := externals.LoaderModules(&config.Externals); len(loaders) > 1 {
				slog.Warn("TOML [externals] tables are read in key order, use [[externals]] to control which hasLoader entry wins",
					"declared", strings.Join(loaders, ", "))
			}
		}
	default:
		return nil, fmt.Errorf("invalid configuration file extension %q", ext)
	}

	if config.Entry == "" {
		config.Entry = DefaultEntry
	}
	if config.OutDir == "" {
		config.OutDir = DefaultOutDir
	}

	return config, nil
}
