package parser

import "strings"

var spaIndicators = []string{
	"ng-app", "ng-view", "ui-view",     // AngularJS
	"<app-root", "ng-version",          // Angular
	"data-reactroot", "__next",         // React/Next.js
	"data-v-", "data-server-rendered",  // Vue
	"data-ember",                       // Ember
	"window.__nuxt", "window.__svelte", // Nuxt/Svelte
}

// LooksClientRendered reports whether a server response probably needs a
// browser to produce its real content.
func LooksClientRendered(doc string) bool {
	// Empty or very small body often means JS-rendered content
	if len(doc) < 500 {
		return true
	}

	lower := strings.ToLower(doc)
	for _, indicator := range spaIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	bodyStart := strings.Index(lower, "<body")
	bodyEnd := strings.Index(lower, "</body>")
	if bodyStart < 0 || bodyEnd <= bodyStart {
		return false
	}

	body := lower[bodyStart:bodyEnd]
	for {
		start := strings.Index(body, "<script")
		if start == -1 {
			break
		}
		end := strings.Index(body[start:], "</script>")
		if end == -1 {
			break
		}
		body = body[:start] + body[start+end+len("</script>"):]
	}

	return len(strings.TrimSpace(body)) < 200
}
