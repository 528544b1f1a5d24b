package bundler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/template"
	"text/template/parse"

	"micromachine.dev/dojo-externals/lib/externals"
)

//go:embed templates/requireExternals.js
var defaultBootstrapSource string

var ErrMalformedTemplate = errors.New("malformed bootstrap template")

var bootstrapSlots = []string{"ExternalConfig", "LayerModuleIDs"}

// BootstrapTemplate renders externals/requireExternals.js. It has two insertion
// points: {{.ExternalConfig}} for the loader configuration argument and
// {{.LayerModuleIDs}} for the quoted module ids required up front.
type BootstrapTemplate struct {
	tmpl *template.Template
}

// BootstrapData fills a BootstrapTemplate. Both fields are already JavaScript.
type BootstrapData struct {
	ExternalConfig string
	LayerModuleIDs string
}

func DefaultBootstrapTemplate() *BootstrapTemplate {
	t, err := ParseBootstrapTemplate(defaultBootstrapSource)
	if err != nil {
		panic(err)
	}
	return t
}

func ParseBootstrapTemplate(source string) (*BootstrapTemplate, error) {
	tmpl, err := template.New("requireExternals.js").Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTemplate, err)
	}

	found := map[string]bool{}
	if tmpl.Tree != nil {
		collectFields(tmpl.Tree.Root, found)
	}
	for _, slot := range bootstrapSlots {
		if !found[slot] {
			return nil, fmt.Errorf("%w: missing {{.%s}}", ErrMalformedTemplate, slot)
		}
	}

	return &BootstrapTemplate{tmpl: tmpl}, nil
}

func collectFields(node parse.Node, found map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, found)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, found)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectFields(arg, found)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) == 1 {
			found[n.Ident[0]] = true
		}
	case *parse.IfNode:
		collectFields(n.Pipe, found)
		collectFields(n.List, found)
		collectFields(n.ElseList, found)
	}
}

func (t *BootstrapTemplate) Execute(w io.Writer, data BootstrapData) error {
	return t.tmpl.Execute(w, data)
}

// NewBootstrapData renders the configuration argument and the eager module ids.
// A nil externalConfig leaves the argument out.
func NewBootstrapData(externalConfig any, set *externals.DependencySet, loaderModule string) (BootstrapData, error) {
	config, err := renderExternalConfig(externalConfig)
	if err != nil {
		return BootstrapData{}, err
	}

	return BootstrapData{
		ExternalConfig: config,
		LayerModuleIDs: externals.QuoteModuleIDs(externals.EagerModuleIDs(set, loaderModule)),
	}, nil
}

func renderExternalConfig(v any) (string, error) {
	if v == nil {
		return "", nil
	}

	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", fmt.Errorf("invalid externalConfig: %w", err)
		}
		return buf.String() + ", ", nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("invalid externalConfig: %w", err)
	}
	return string(data) + ", ", nil
}
