// Package stats aggregates reconciled track decisions into playlist-level
// genre statistics.
package stats

import (
	"sort"

	"genrify/internal/reconcile"
)

// Row is one genre's share of the playlist.
type Row struct {
	Genre   string
	Count   int
	Percent float64
}

// SubgenreRow is one (genre, subgenre) pair's share of the playlist.
type SubgenreRow struct {
	Genre    string
	Subgenre string
	Count    int
	Percent  float64
}

// Summary is the aggregate view of a playlist's decisions.
//
// Genres and Subgenres are sorted by descending count with alphabetical
// tie-break. Unknown tracks appear both in the Genres rows and in the
// dedicated Unknown count. Percentages are over Total, so they sum to 100
// (within float tolerance) when Total is nonzero.
type Summary struct {
	Total     int
	Unknown   int
	Genres    []Row
	Subgenres []SubgenreRow
}

// Aggregate builds a Summary from decisions. An empty input yields a
// well-formed empty summary, not an error.
func Aggregate(decisions []reconcile.Decision) Summary {
	summary := Summary{Total: len(decisions)}

	genreCounts := make(map[string]int)
	type pair struct{ genre, subgenre string }
	subCounts := make(map[pair]int)

	for _, d := range decisions {
		genre := d.Genre
		if genre == "" {
			genre = reconcile.UnknownGenre
		}
		genreCounts[genre]++
		if genre == reconcile.UnknownGenre {
			summary.Unknown++
			continue
		}
		if d.Subgenre != "" {
			subCounts[pair{genre, d.Subgenre}]++
		}
	}

	if summary.Total == 0 {
		return summary
	}

	for genre, count := range genreCounts {
		summary.Genres = append(summary.Genres, Row{
			Genre:   genre,
			Count:   count,
			Percent: 100 * float64(count) / float64(summary.Total),
		})
	}
	sort.Slice(summary.Genres, func(i, j int) bool {
		a, b := summary.Genres[i], summary.Genres[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Genre < b.Genre
	})

	for key, count := range subCounts {
		summary.Subgenres = append(summary.Subgenres, SubgenreRow{
			Genre:    key.genre,
			Subgenre: key.subgenre,
			Count:    count,
			Percent:  100 * float64(count) / float64(summary.Total),
		})
	}
	sort.Slice(summary.Subgenres, func(i, j int) bool {
		a, b := summary.Subgenres[i], summary.Subgenres[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Genre != b.Genre {
			return a.Genre < b.Genre
		}
		return a.Subgenre < b.Subgenre
	})

	return summary
}
