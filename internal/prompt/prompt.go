// Package prompt loads persona resources from a data directory and composes
// them into the system prompt sent with every generation request.
//
// Three resources are recognized:
//
//	summary.txt - biography/background of the persona
//	style.txt   - tone and phrasing guidance
//	facts.json  - structured facts, rendered as a bullet list
//
// Missing or unreadable resources degrade gracefully: the loader logs a
// warning and composes the prompt from whatever is present. An empty data
// directory yields a minimal generic prompt rather than an error.
package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Resources holds the raw persona material read from the data directory.
type Resources struct {
	Summary string
	Style   string
	Facts   map[string]string
}

// Loader reads persona resources from a directory.
type Loader struct {
	dataDir string
	logger  *slog.Logger
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dataDir: dataDir, logger: logger}
}

// Load reads all recognized resources. It never fails: each missing file is
// logged and skipped so the assistant still answers without a persona.
func (l *Loader) Load() *Resources {
	res := &Resources{}

	res.Summary = l.readText("summary.txt")
	res.Style = l.readText("style.txt")
	res.Facts = l.readFacts("facts.json")

	return res
}

func (l *Loader) readText(name string) string {
	path := filepath.Join(l.dataDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("persona resource unavailable", "resource", name, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (l *Loader) readFacts(name string) map[string]string {
	path := filepath.Join(l.dataDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("persona resource unavailable", "resource", name, "error", err)
		return nil
	}

	var facts map[string]string
	if err := json.Unmarshal(data, &facts); err != nil {
		l.logger.Warn("persona facts malformed, skipping", "resource", name, "error", err)
		return nil
	}
	return facts
}

// SystemPrompt composes the system prompt from the loaded resources.
// Sections are included only when the underlying resource is present,
// so a bare installation still produces a usable prompt.
func SystemPrompt(res *Resources) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant answering questions in a conversation.")

	if res == nil {
		return b.String()
	}

	if res.Summary != "" {
		b.WriteString("\n\n## About you\n\n")
		b.WriteString(res.Summary)
	}

	if len(res.Facts) > 0 {
		b.WriteString("\n\n## Facts\n\n")
		// Stable order keeps the prompt deterministic across restarts.
		keys := make([]string, 0, len(res.Facts))
		for k := range res.Facts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, res.Facts[k])
		}
	}

	if res.Style != "" {
		b.WriteString("\n\n## Style\n\n")
		b.WriteString(res.Style)
	}

	return b.String()
}
