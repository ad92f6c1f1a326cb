package handlers

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
)

type index struct {
	tmpl *template.Template
	data indexData
}

type indexData struct {
	Build     string
	NodeURL   string
	EventsURL string
}

func newIndex(build string, nodeURL string) (*index, error) {
	u, err := url.Parse(strings.TrimSuffix(nodeURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing node url: %w", err)
	}

	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path += "/v1/events"

	tmpl, err := template.ParseFS(assets, "assets/views/index.html")
	if err != nil {
		return nil, err
	}

	ig := index{
		tmpl: tmpl,
		data: indexData{
			Build:     build,
			NodeURL:   u.String(),
			EventsURL: ws.String(),
		},
	}

	return &ig, nil
}

func (ig *index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ig.tmpl.Execute(w, ig.data); err != nil {
		return fmt.Errorf("executing index template: %w", err)
	}

	return nil
}
