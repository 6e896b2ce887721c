// Package taxonomy loads the canonical genre/subgenre tree and normalizes
// providers' free-text tags onto it.
//
// # Canonical Taxonomy
//
// The taxonomy is a versioned, curated TOML data file: a finite tree of
// genre → subgenre names plus an alias table for known free-text variants.
// It is loaded once per run and read-only during processing.
//
// # Normalization
//
// Raw tags are case-folded and punctuation-normalized, then resolved through
// the alias table, exact canonical names, and finally a fuzzy match
// (Jaro-Winkler, threshold 0.92) for near-miss spellings. Unmatched tags are
// dropped with a retained drop count for diagnostics. Matched weights are
// rescaled so each provider's tag mass sums to 1.0, preventing providers that
// return more tags from dominating the vote on count alone.
package taxonomy

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
)

//go:embed taxonomy.toml
var embeddedTaxonomy []byte

// Label is a canonical assignment for one raw tag: either a top-level genre
// (Subgenre empty) or a subgenre under its parent genre.
type Label struct {
	Genre    string
	Subgenre string
}

type genreEntry struct {
	Name      string   `toml:"name"`
	Subgenres []string `toml:"subgenres"`
}

type taxonomyFile struct {
	Version string            `toml:"version"`
	Genres  []genreEntry      `toml:"genres"`
	Aliases map[string]string `toml:"aliases"`
}

// Taxonomy is the loaded canonical genre tree. Read-only after load; safe for
// concurrent use.
type Taxonomy struct {
	version   string
	genres    []string            // top-level genres, file order
	subgenres map[string][]string // genre → subgenres, file order
	byFolded  map[string]Label    // folded canonical name → label
	aliases   map[string]Label    // folded alias → label
}

// Load parses taxonomy data from TOML bytes.
func Load(data []byte) (*Taxonomy, error) {
	var file taxonomyFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("taxonomy is missing a version")
	}
	if len(file.Genres) == 0 {
		return nil, fmt.Errorf("taxonomy contains no genres")
	}

	t := &Taxonomy{
		version:   file.Version,
		subgenres: make(map[string][]string, len(file.Genres)),
		byFolded:  make(map[string]Label),
		aliases:   make(map[string]Label),
	}

	for _, entry := range file.Genres {
		if entry.Name == "" {
			return nil, fmt.Errorf("taxonomy contains an unnamed genre")
		}
		folded := Fold(entry.Name)
		if _, dup := t.byFolded[folded]; dup {
			return nil, fmt.Errorf("duplicate taxonomy name %q", entry.Name)
		}
		t.genres = append(t.genres, entry.Name)
		t.subgenres[entry.Name] = entry.Subgenres
		t.byFolded[folded] = Label{Genre: entry.Name}

		for _, sub := range entry.Subgenres {
			subFolded := Fold(sub)
			if _, dup := t.byFolded[subFolded]; dup {
				return nil, fmt.Errorf("duplicate taxonomy name %q", sub)
			}
			t.byFolded[subFolded] = Label{Genre: entry.Name, Subgenre: sub}
		}
	}

	for alias, target := range file.Aliases {
		label, ok := t.byFolded[Fold(target)]
		if !ok {
			return nil, fmt.Errorf("alias %q points at unknown name %q", alias, target)
		}
		t.aliases[Fold(alias)] = label
	}

	return t, nil
}

// Default returns the taxonomy shipped with the binary.
func Default() (*Taxonomy, error) {
	return Load(embeddedTaxonomy)
}

// LoadFile reads a taxonomy override from disk.
func LoadFile(path string, read func(string) ([]byte, error)) (*Taxonomy, error) {
	data, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return Load(data)
}

// Version returns the taxonomy data version.
func (t *Taxonomy) Version() string {
	return t.version
}

// Genres returns the top-level genres in file order.
func (t *Taxonomy) Genres() []string {
	out := make([]string, len(t.genres))
	copy(out, t.genres)
	return out
}

// SubgenresOf returns the subgenres under a genre, nil if the genre is unknown.
func (t *Taxonomy) SubgenresOf(genre string) []string {
	subs, ok := t.subgenres[genre]
	if !ok {
		return nil
	}
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}

// Aliases returns the alias table sorted by alias, for diagnostics output.
func (t *Taxonomy) Aliases() []string {
	out := make([]string, 0, len(t.aliases))
	for alias, label := range t.aliases {
		name := label.Genre
		if label.Subgenre != "" {
			name = label.Subgenre
		}
		out = append(out, fmt.Sprintf("%s → %s", alias, name))
	}
	sort.Strings(out)
	return out
}

// Fold case-folds and punctuation-normalizes a tag for lookup: lowercase,
// punctuation stripped except '&', whitespace collapsed.
func Fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&':
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
