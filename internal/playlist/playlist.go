// Package playlist reads extended M3U playlists into ordered track lists.
//
// Info lines are expected in "#EXTINF:<seconds>,Artist - Title" form with the
// media path on the following line. Relative paths resolve against a music
// root directory. Malformed entries are skipped with a warning rather than
// failing the whole playlist, since exported playlists are frequently messy.
package playlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"genrify/internal/providers"
	"genrify/internal/shared"
)

// Parse reads an extended M3U file into tracks, in playlist order.
func Parse(path, musicRoot string, logger *log.Logger) ([]providers.Track, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist: %w", err)
	}
	defer file.Close()

	var (
		tracks  []providers.Track
		pending *providers.Track
	)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF") {
			if pending != nil {
				logger.Warn("info line without a media path", "line", lineNo-1)
			}
			track, ok := parseInfoLine(line)
			if !ok {
				logger.Warn("skipping malformed info line", "line", lineNo, "content", line)
				pending = nil
				continue
			}
			pending = &track
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		// Media path line. Paths without a preceding info line carry no
		// artist/title and cannot be enriched.
		if pending == nil {
			logger.Warn("skipping media path without info line", "line", lineNo)
			continue
		}
		pending.Path = resolvePath(line, musicRoot)
		tracks = append(tracks, *pending)
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	if pending != nil {
		logger.Warn("playlist ends with an info line missing its media path")
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrEmptyPlaylist, path)
	}
	return tracks, nil
}

// parseInfoLine splits "#EXTINF:<seconds>,Artist - Title" into a track.
func parseInfoLine(line string) (providers.Track, bool) {
	_, meta, ok := strings.Cut(line, ":")
	if !ok {
		return providers.Track{}, false
	}
	durationPart, info, ok := strings.Cut(meta, ",")
	if !ok {
		return providers.Track{}, false
	}

	artist, title, ok := strings.Cut(info, " - ")
	if !ok {
		return providers.Track{}, false
	}
	artist = strings.TrimSpace(artist)
	title = strings.TrimSpace(title)
	if artist == "" || title == "" {
		return providers.Track{}, false
	}

	track := providers.Track{Artist: artist, Title: title}
	if seconds, err := strconv.ParseFloat(strings.TrimSpace(durationPart), 64); err == nil && seconds > 0 {
		track.DurationMS = int(seconds * 1000)
	}
	return track, true
}

func resolvePath(line, musicRoot string) string {
	path := filepath.FromSlash(line)
	if musicRoot != "" && !filepath.IsAbs(path) {
		path = filepath.Join(musicRoot, path)
	}
	return filepath.Clean(path)
}

// LovedSets holds normalized path sets from loved tracks/albums/artists M3U
// files. Album and artist membership is directory based: a track's album
// directory is its parent, its artist directory the parent above that.
type LovedSets struct {
	Tracks  map[string]bool
	Albums  map[string]bool
	Artists map[string]bool
}

// LoadLovedSets reads the optional loved M3U files. Empty paths yield empty
// sets.
func LoadLovedSets(tracksPath, albumsPath, artistsPath, musicRoot string, logger *log.Logger) (*LovedSets, error) {
	sets := &LovedSets{
		Tracks:  make(map[string]bool),
		Albums:  make(map[string]bool),
		Artists: make(map[string]bool),
	}

	// Album and artist M3Us list member tracks; membership is keyed by the
	// enclosing directory, so entries are reduced to directories on load.
	load := func(path string, into map[string]bool, reduce func(string) string) error {
		if path == "" {
			return nil
		}
		paths, err := parsePathSet(path, musicRoot)
		if err != nil {
			return err
		}
		for _, p := range paths {
			into[reduce(p)] = true
		}
		return nil
	}

	identity := func(p string) string { return p }
	albumDir := func(p string) string { return filepath.Dir(p) }
	artistDir := func(p string) string { return filepath.Dir(filepath.Dir(p)) }

	if err := load(tracksPath, sets.Tracks, identity); err != nil {
		return nil, err
	}
	if err := load(albumsPath, sets.Albums, albumDir); err != nil {
		return nil, err
	}
	if err := load(artistsPath, sets.Artists, artistDir); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Debug("loaded loved sets",
			"tracks", len(sets.Tracks), "albums", len(sets.Albums), "artists", len(sets.Artists))
	}
	return sets, nil
}

// Flags reports the track path's membership across the three sets.
func (s *LovedSets) Flags(trackPath string) (track, album, artist bool) {
	if trackPath == "" {
		return false, false, false
	}
	path := filepath.Clean(trackPath)
	albumDir := filepath.Dir(path)
	artistDir := filepath.Dir(albumDir)
	return s.Tracks[path], s.Albums[albumDir], s.Artists[artistDir]
}

// parsePathSet reads every non-comment line of an M3U as a media path.
func parsePathSet(path, musicRoot string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open loved playlist: %w", err)
	}
	defer file.Close()

	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, resolvePath(line, musicRoot))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read loved playlist: %w", err)
	}
	return paths, nil
}
