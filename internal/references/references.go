// Package references searches a curated dataset of reference slide
// designs by category, taste and palette.
package references

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Match weights.
const (
	categoryScore = 10
	tasteScore    = 5
	paletteScore  = 3
)

// Reference is one annotated design in the dataset.
type Reference struct {
	ID       string         `json:"id" yaml:"id"`
	Category string         `json:"category" yaml:"category"`
	Taste    []string       `json:"taste" yaml:"taste"`
	Palette  []string       `json:"palette" yaml:"palette"`
	Comment  string         `json:"comment" yaml:"comment"`
	Features map[string]any `json:"features,omitempty" yaml:"features"`
	Filename string         `json:"filename,omitempty" yaml:"filename"`
}

// Pattern summarizes a recurring design pattern in the dataset.
type Pattern struct {
	Palette  []string `json:"palette" yaml:"palette"`
	Features []string `json:"features" yaml:"features"`
}

// Dataset is the on-disk reference collection.
type Dataset struct {
	Images         []Reference        `json:"images" yaml:"images"`
	DesignPatterns map[string]Pattern `json:"design_patterns" yaml:"design_patterns"`
}

// Load reads a dataset from a JSON or YAML file. A missing file yields
// an empty dataset.
func Load(path string) (*Dataset, error) {
	ds := &Dataset{}
	if path == "" {
		return ds, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reference dataset: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, ds)
	default:
		err = json.Unmarshal(data, ds)
	}
	if err != nil {
		return nil, fmt.Errorf("parse reference dataset %s: %w", path, err)
	}
	return ds, nil
}

// Query selects references. Empty fields do not filter.
type Query struct {
	Category string
	Taste    []string
	Palette  []string
	Limit    int
}

func (q Query) empty() bool {
	return q.Category == "" && len(q.Taste) == 0 && len(q.Palette) == 0
}

// Search scores every reference against q and returns the best matches,
// highest score first. A category substring match scores 10, each
// shared taste tag 5 and each shared palette entry 3. With no filters
// every reference matches. Ties keep dataset order.
func (d *Dataset) Search(q Query) []Reference {
	type scored struct {
		ref   Reference
		score int
	}
	var hits []scored
	for _, ref := range d.Images {
		score := 0
		if q.Category != "" && strings.Contains(ref.Category, q.Category) {
			score += categoryScore
		}
		score += overlap(q.Taste, ref.Taste) * tasteScore
		score += overlap(q.Palette, ref.Palette) * paletteScore

		if score > 0 || q.empty() {
			hits = append(hits, scored{ref, score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]Reference, len(hits))
	for i, h := range hits {
		out[i] = h.ref
	}
	return out
}

// Get returns the reference with the given ID.
func (d *Dataset) Get(id string) (Reference, bool) {
	for _, ref := range d.Images {
		if ref.ID == id {
			return ref, true
		}
	}
	return Reference{}, false
}

// Summary renders the patterns and references as prompt context.
func (d *Dataset) Summary() string {
	var sb strings.Builder
	sb.WriteString("## Reference design patterns\n")

	names := make([]string, 0, len(d.DesignPatterns))
	for name := range d.DesignPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := d.DesignPatterns[name]
		fmt.Fprintf(&sb, "\n### %s\n- Palette: %s\n- Features: %s\n",
			name, strings.Join(p.Palette, ", "), strings.Join(p.Features, ", "))
	}

	sb.WriteString("\n## Reference images\n")
	for _, ref := range d.Images {
		taste := ref.Taste
		if len(taste) > 3 {
			taste = taste[:3]
		}
		fmt.Fprintf(&sb, "- **%s**: %s (%s)\n", ref.Category, strings.Join(taste, ", "), ref.Comment)
	}
	return sb.String()
}

// overlap counts distinct values of want present in have.
func overlap(want, have []string) int {
	if len(want) == 0 || len(have) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(want))
	for _, w := range want {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := set[w]; ok {
			n++
		}
	}
	return n
}
