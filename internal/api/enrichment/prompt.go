package enrichment

import (
	"fmt"
	"strings"

	"github.com/Arnonfr/urbanito/internal/types"
)

func getEnrichmentPrompt(poiName, city string, prefs types.ContentPreferences) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write extended visitor content for %q in %s.\n", poiName, city)

	depth := prefs.Depth
	if depth == "" {
		depth = "standard"
	}
	fmt.Fprintf(&b, "Content depth: %s.\n", depth)
	if prefs.Style != "" {
		fmt.Fprintf(&b, "Narrative style: %s.\n", prefs.Style)
	}
	lang := prefs.Language
	if lang == "" {
		lang = "en"
	}
	fmt.Fprintf(&b, "Write all fields in locale %q.\n", lang)

	b.WriteString(`Respond with JSON only, no prose, in this exact shape:
{
  "historical_analysis": "text",
  "architectural_analysis": "text",
  "sections": [{"title": "text", "body": "text"}],
  "citations": ["source"]
}
Omit or leave empty any field you have nothing reliable for.`)

	return b.String()
}

func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	if strings.HasSuffix(response, "```") {
		response = strings.TrimSuffix(response, "```")
	}

	return strings.TrimSpace(response)
}
