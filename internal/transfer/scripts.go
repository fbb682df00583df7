package transfer

import (
	"bytes"
	"embed"
	"text/template"

	"github.com/gravitational/trace"
)

// templates holds the job script templates every transfer method renders
// into a submitted scheduler job, using Go text/template over the same
// template names and parameter sets each method's Upload/Download builds.
//
//go:embed scripts/*.sh.tmpl
var templates embed.FS

var parsedTemplates = template.Must(template.ParseFS(templates, "scripts/*.sh.tmpl"))

// RenderScript renders one named job script template against parameters.
// Exported so the method packages (s3method, wormhole, streamer) can each
// render their own templates without re-embedding the scripts directory.
func RenderScript(name string, parameters map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := parsedTemplates.ExecuteTemplate(&buf, name, parameters); err != nil {
		return "", trace.Wrap(err, "rendering transfer job script %q", name)
	}
	return buf.String(), nil
}
