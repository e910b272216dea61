package risk

import (
	"path"
	"path/filepath"
	"strings"

	"fimon/config"

	"github.com/cloudflare/ahocorasick"
)

// locationTable resolves a path to the first configured category whose
// pattern occurs in it. All patterns are matched in a single pass.
type locationTable struct {
	categories []config.LocationCategory
	// owner maps a dictionary index to its category index.
	owner   []int
	matcher *ahocorasick.Matcher
	def     float64
}

func newLocationTable(categories []config.LocationCategory, def float64) *locationTable {
	t := &locationTable{categories: categories, def: def}
	var dict []string
	seen := map[string]bool{}
	for i, cat := range categories {
		for _, p := range cat.Patterns {
			p = filepath.ToSlash(strings.TrimSpace(p))
			// An earlier category already owns a repeated pattern.
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			dict = append(dict, p)
			t.owner = append(t.owner, i)
		}
	}
	if len(dict) > 0 {
		t.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return t
}

// lookup returns the score and name of the winning category, or the default
// score and an empty name.
func (t *locationTable) lookup(p string) (float64, string) {
	if t.matcher == nil {
		return t.def, ""
	}
	normalized := filepath.ToSlash(p)
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	best := -1
	for _, hit := range t.matcher.MatchThreadSafe([]byte(normalized)) {
		if idx := t.owner[hit]; best < 0 || idx < best {
			best = idx
		}
	}
	if best < 0 {
		return t.def, ""
	}
	return t.categories[best].Score, t.categories[best].Name
}

// fileTypeScore is the highest of the extension, file name and MIME tables.
func fileTypeScore(cfg config.RiskConfig, filePath, mimeType string) float64 {
	base := path.Base(filepath.ToSlash(filePath))
	score := -1.0
	if v, ok := cfg.Extensions[strings.ToLower(path.Ext(base))]; ok && v > score {
		score = v
	}
	if v, ok := cfg.SensitiveNames[base]; ok && v > score {
		score = v
	}
	if mimeType != "" {
		if v, ok := cfg.MimeTypes[strings.ToLower(mimeType)]; ok && v > score {
			score = v
		}
	}
	if score < 0 {
		return clip(cfg.DefaultFileType)
	}
	return clip(score)
}
