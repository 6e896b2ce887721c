// package formatter serializes enrichment reports to CSV and reads them back
// for post-processing runs.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"genrify/internal/enrich"
	"genrify/internal/providers"
	"genrify/internal/stats"
)

// recordHeader is the fixed column layout of the enriched track CSV. The
// reader validates against it, so reordering columns is a format change.
var recordHeader = []string{
	"artist", "album", "track", "year",
	"genre", "subgenre", "confidence",
	"lastfm_genre", "spotify_genre", "musicbrainz_genre", "dropped_tags",
	"danceability", "energy", "key", "loudness", "mode",
	"speechiness", "acousticness", "instrumentalness", "liveness",
	"valence", "tempo", "time_signature", "duration_ms",
	"sections", "segments", "analysis_tempo", "analysis_loudness",
	"loved_track", "loved_album", "loved_artist",
	"errors", "file_path",
}

// ExportToCSV converts a report's records to CSV, one row per track in
// playlist order.
func ExportToCSV(report *enrich.PlaylistReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(recordHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range report.Records {
		if err := writer.Write(recordRow(record)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the report's track CSV to path.
func WriteCSV(report *enrich.PlaylistReport, path string) error {
	data, err := ExportToCSV(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

func recordRow(r enrich.TrackRecord) []string {
	row := []string{
		r.Track.Artist,
		r.Track.Album,
		r.Track.Title,
		r.Track.Year,
		r.Genre,
		r.Subgenre,
		floatField(r.Confidence),
		r.ProviderGenres[providers.NameLastFM],
		r.ProviderGenres[providers.NameSpotify],
		r.ProviderGenres[providers.NameMusicBrainz],
		intField(r.DroppedTags),
	}

	if f := r.Features; f != nil {
		row = append(row,
			floatField(f.Danceability), floatField(f.Energy), strconv.Itoa(f.Key),
			floatField(f.Loudness), strconv.Itoa(f.Mode), floatField(f.Speechiness),
			floatField(f.Acousticness), floatField(f.Instrumentalness), floatField(f.Liveness),
			floatField(f.Valence), floatField(f.Tempo), strconv.Itoa(f.TimeSignature),
			intField(f.DurationMS),
		)
	} else {
		row = append(row, make([]string, 13)...)
	}

	if a := r.Analysis; a != nil {
		row = append(row, strconv.Itoa(a.Sections), strconv.Itoa(a.Segments),
			floatField(a.Tempo), floatField(a.Loudness))
	} else {
		row = append(row, make([]string, 4)...)
	}

	row = append(row,
		lovedField(r.Loved.Track), lovedField(r.Loved.Album), lovedField(r.Loved.Artist),
		joinAnnotations(r.Errors),
		r.Track.Path,
	)
	return row
}

// ReadCSV reads a previously written track CSV back into records, preserving
// row order. Feature and analysis columns round-trip; error annotations keep
// provider and kind but flatten the original message.
func ReadCSV(path string) ([]enrich.TrackRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file %s is empty", path)
	}
	if !headerMatches(rows[0]) {
		return nil, fmt.Errorf("CSV file %s has an unrecognized header", path)
	}

	records := make([]enrich.TrackRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func headerMatches(row []string) bool {
	if len(row) != len(recordHeader) {
		return false
	}
	for i, col := range recordHeader {
		if row[i] != col {
			return false
		}
	}
	return true
}

func parseRow(row []string) (enrich.TrackRecord, error) {
	if len(row) != len(recordHeader) {
		return enrich.TrackRecord{}, fmt.Errorf("expected %d columns, got %d", len(recordHeader), len(row))
	}

	record := enrich.TrackRecord{
		Track: providers.Track{
			Artist: row[0],
			Album:  row[1],
			Title:  row[2],
			Year:   row[3],
			Path:   row[32],
		},
		Genre:          row[4],
		Subgenre:       row[5],
		Confidence:     parseFloat(row[6]),
		ProviderGenres: make(map[string]string),
		DroppedTags:    parseInt(row[10]),
		Loved: enrich.LovedFlags{
			Track:  row[28] == "yes",
			Album:  row[29] == "yes",
			Artist: row[30] == "yes",
		},
		Errors: parseAnnotations(row[31]),
	}

	for i, name := range []string{providers.NameLastFM, providers.NameSpotify, providers.NameMusicBrainz} {
		if genre := row[7+i]; genre != "" {
			record.ProviderGenres[name] = genre
		}
	}

	if hasAny(row[11:24]) {
		record.Features = &providers.FeatureRecord{
			Danceability:     parseFloat(row[11]),
			Energy:           parseFloat(row[12]),
			Key:              parseInt(row[13]),
			Loudness:         parseFloat(row[14]),
			Mode:             parseInt(row[15]),
			Speechiness:      parseFloat(row[16]),
			Acousticness:     parseFloat(row[17]),
			Instrumentalness: parseFloat(row[18]),
			Liveness:         parseFloat(row[19]),
			Valence:          parseFloat(row[20]),
			Tempo:            parseFloat(row[21]),
			TimeSignature:    parseInt(row[22]),
			DurationMS:       parseInt(row[23]),
		}
	}
	if hasAny(row[24:28]) {
		record.Analysis = &providers.AnalysisRecord{
			Sections: parseInt(row[24]),
			Segments: parseInt(row[25]),
			Tempo:    parseFloat(row[26]),
			Loudness: parseFloat(row[27]),
		}
	}
	return record, nil
}

// ExportStatsCSV converts a summary to CSV: genre rows first, subgenre rows
// after a blank separator, matching the layout downstream spreadsheets expect.
func ExportStatsCSV(summary stats.Summary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"genre", "subgenre", "count", "percent"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range summary.Genres {
		if err := writer.Write([]string{row.Genre, "", strconv.Itoa(row.Count), percentField(row.Percent)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	for _, row := range summary.Subgenres {
		if err := writer.Write([]string{row.Genre, row.Subgenre, strconv.Itoa(row.Count), percentField(row.Percent)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteStatsCSV writes the summary CSV to path.
func WriteStatsCSV(summary stats.Summary, path string) error {
	data, err := ExportStatsCSV(summary)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}

func joinAnnotations(errs []enrich.Annotation) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, len(errs))
	for i, ann := range errs {
		parts[i] = fmt.Sprintf("%s:%s:%s", ann.Provider, ann.Kind, ann.Message)
	}
	return strings.Join(parts, "; ")
}

func parseAnnotations(field string) []enrich.Annotation {
	if field == "" {
		return nil
	}
	var out []enrich.Annotation
	for _, part := range strings.Split(field, "; ") {
		pieces := strings.SplitN(part, ":", 3)
		if len(pieces) < 2 {
			continue
		}
		kind, _ := providers.ParseKind(pieces[1])
		ann := enrich.Annotation{Provider: pieces[0], Kind: kind}
		if len(pieces) == 3 {
			ann.Message = pieces[2]
		}
		out = append(out, ann)
	}
	return out
}

func hasAny(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return true
		}
	}
	return false
}

func intField(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func floatField(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func percentField(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func lovedField(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
