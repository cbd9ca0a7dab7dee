// Package swagger serves the API contract and a Swagger UI page over it.
package swagger

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	apicontract "github.com/tuanvumaihuynh/product-catalog/api-contract"
)

const (
	DocsPath     = "/docs"
	SpecYAMLPath = "/docs/openapi.yml"
	SpecJSONPath = "/docs/openapi.json"

	uiVersion = "5.29.3"
)

var page = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui-bundle.js" crossorigin></script>
<script>
  window.onload = () => {
    window.ui = SwaggerUIBundle({
      url: {{.SpecURL}},
      dom_id: '#swagger-ui',
      deepLinking: true,
    });
  };
</script>
</body>
</html>
`))

// Register mounts the UI page and both renderings of the contract on r.
func Register(r chi.Router) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, struct {
		Title     string
		UIVersion string
		SpecURL   string
	}{
		Title:     "Product Catalog API",
		UIVersion: uiVersion,
		SpecURL:   SpecYAMLPath,
	}); err != nil {
		panic(err)
	}
	pageBytes := buf.Bytes()

	r.Get(DocsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		//nolint:errcheck
		w.Write(pageBytes)
	})

	specBytes := apicontract.GetSpecBytes()
	r.Get(SpecYAMLPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		//nolint:errcheck
		w.Write(specBytes)
	})

	specJSON := sync.OnceValues(func() ([]byte, error) {
		doc, err := apicontract.Load(context.Background())
		if err != nil {
			return nil, err
		}
		return doc.MarshalJSON()
	})
	r.Get(SpecJSONPath, func(w http.ResponseWriter, _ *http.Request) {
		b, err := specJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck
		w.Write(b)
	})
}
