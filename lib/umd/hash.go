package umd

import (
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// UpdateHash mixes the wrapper's identity into h, so that changing only the
// exposed names changes the artifact hash.
func (g *Generator) UpdateHash(h io.Writer) {
	for _, part := range []string{"umd", g.names.Root.String(), g.names.AMD.String(), g.names.CommonJS.String()} {
		_, _ = io.WriteString(h, part)
		_, _ = io.WriteString(h, "\x00")
	}
}

// ArtifactHash identifies a rendered bundle.
func ArtifactHash(contents []byte, g *Generator) string {
	h := xxhash.New()
	_, _ = h.Write(contents)
	if g != nil {
		g.UpdateHash(h)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
