package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

// homePageTemplate is the HTML for the service home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Catalog.Namespace}} – ChatOps</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    code { font-size: 0.85rem; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>{{.Catalog.Namespace}}</h1>
  <p class="meta">{{.Catalog.Help}}</p>

  <section>
    <h2>Commands</h2>
    <p>Registered commands: <span class="stat">{{len .Catalog.Methods}}</span></p>
    {{if not .Catalog.Methods}}
    <p>No commands registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Command</th><th>Help</th><th>Pattern</th><th>Params</th>{{if .Usage}}<th>Invocations</th><th>Failed</th>{{end}}</tr>
      </thead>
      <tbody>
        {{range .Catalog.Methods}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Help}}</td>
          <td><code>{{.Regex}}</code></td>
          <td>{{range .Params}}{{.}} {{end}}</td>
          {{if $.Usage}}{{with index $.Usage .Name}}<td>{{.Total}}</td><td>{{.Failed}}</td>{{end}}{{end}}
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
  {{if .UsageError}}
  <p class="error">Could not load usage: {{.UsageError}}</p>
  {{end}}
</body>
</html>
`

// usageRow is one command's invocation counts.
type usageRow struct {
	Total  int
	Failed int
}

// homeData is the data passed to the home page template.
type homeData struct {
	Catalog    *registry.Catalog
	Usage      map[string]usageRow
	UsageError string
}

// handleHome returns an HTTP handler for the service home page.
func (a *httpAPI) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), a.healthTimeout)
		defer cancel()

		data := homeData{Catalog: a.svc.Catalog()}
		counts, err := a.svc.Usage(ctx)
		if err != nil {
			data.UsageError = err.Error()
		} else if counts != nil {
			data.Usage = make(map[string]usageRow, len(counts))
			for _, c := range counts {
				data.Usage[c.Command] = usageRow{Total: c.Total, Failed: c.Failed}
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
