package api

import (
	"net/http"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// describe returns t's description as served to the client behind r: the
// core document plus base URL, security block and WebSocket alternate link.
func (s *Server) describe(r *http.Request, t *thing.Thing) map[string]any {
	td := t.AsThingDescription()

	httpScheme, wsScheme := "http", "ws"
	if r.TLS != nil || s.cfg.TLS.Enabled {
		httpScheme, wsScheme = "https", "wss"
	}

	links, _ := td["links"].([]any) //nolint:errcheck // always a []any from AsThingDescription
	td["links"] = append(links, map[string]any{
		"rel":  "alternate",
		"href": wsScheme + "://" + r.Host + t.Href(),
	})
	td["base"] = httpScheme + "://" + r.Host + t.Href()

	if s.secCfg.JWT.Secret != "" {
		td["securityDefinitions"] = map[string]any{
			"bearer_sc": map[string]any{
				"scheme": "bearer",
				"alg":    "HS256",
				"format": "jwt",
				"in":     "header",
			},
		}
		td["security"] = "bearer_sc"
	} else {
		td["securityDefinitions"] = map[string]any{
			"nosec_sc": map[string]any{"scheme": "nosec"},
		}
		td["security"] = "nosec_sc"
	}

	return td
}
