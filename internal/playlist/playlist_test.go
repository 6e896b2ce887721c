package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"genrify/internal/shared"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParse(t *testing.T) {
	t.Run("Ordered Tracks With Metadata", func(t *testing.T) {
		path := writeTemp(t, "mix.m3u", `#EXTM3U
#EXTINF:210,Deadmau5 - Strobe
Deadmau5/For Lack of a Better Name/Strobe.m4a
#EXTINF:545,Miles Davis - So What
Miles Davis/Kind of Blue/So What.m4a
`)
		tracks, err := Parse(path, "/music", nil)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		first := tracks[0]
		if first.Artist != "Deadmau5" || first.Title != "Strobe" {
			t.Errorf("expected Deadmau5 - Strobe, got %s - %s", first.Artist, first.Title)
		}
		if first.DurationMS != 210000 {
			t.Errorf("expected duration 210000ms, got %d", first.DurationMS)
		}
		want := filepath.Clean("/music/Deadmau5/For Lack of a Better Name/Strobe.m4a")
		if first.Path != want {
			t.Errorf("expected path %s, got %s", want, first.Path)
		}
		if tracks[1].Artist != "Miles Davis" {
			t.Errorf("expected playlist order preserved, got %s second", tracks[1].Artist)
		}
	})

	t.Run("Absolute Paths Kept", func(t *testing.T) {
		path := writeTemp(t, "abs.m3u", `#EXTINF:100,A - B
/srv/music/A/Album/B.mp3
`)
		tracks, err := Parse(path, "/music", nil)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if tracks[0].Path != filepath.Clean("/srv/music/A/Album/B.mp3") {
			t.Errorf("absolute path must not be re-rooted, got %s", tracks[0].Path)
		}
	})

	t.Run("Malformed Entries Skipped", func(t *testing.T) {
		path := writeTemp(t, "messy.m3u", `#EXTM3U
#EXTINF:broken line with no comma
#EXTINF:90,NoSeparatorHere
#EXTINF:180,Slayer - Raining Blood
Slayer/Reign in Blood/Raining Blood.m4a
orphan/path/without/info.m4a
`)
		tracks, err := Parse(path, "", nil)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 surviving track, got %d", len(tracks))
		}
		if tracks[0].Artist != "Slayer" {
			t.Errorf("expected Slayer, got %s", tracks[0].Artist)
		}
	})

	t.Run("Empty Playlist Is An Error", func(t *testing.T) {
		path := writeTemp(t, "empty.m3u", "#EXTM3U\n")
		_, err := Parse(path, "", nil)
		if !errors.Is(err, shared.ErrEmptyPlaylist) {
			t.Fatalf("expected ErrEmptyPlaylist, got %v", err)
		}
	})

	t.Run("Missing File Is An Error", func(t *testing.T) {
		if _, err := Parse(filepath.Join(t.TempDir(), "nope.m3u"), "", nil); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestLovedSets(t *testing.T) {
	tracksM3U := writeTemp(t, "loved_tracks.m3u", `#EXTM3U
Deadmau5/For Lack of a Better Name/Strobe.m4a
`)
	albumsM3U := writeTemp(t, "loved_albums.m3u", `Miles Davis/Kind of Blue/So What.m4a
`)
	artistsM3U := writeTemp(t, "loved_artists.m3u", `Slayer/Reign in Blood/Angel of Death.m4a
`)

	sets, err := LoadLovedSets(tracksM3U, albumsM3U, artistsM3U, "/music", nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	t.Run("Track Membership By Path", func(t *testing.T) {
		track, _, _ := sets.Flags("/music/Deadmau5/For Lack of a Better Name/Strobe.m4a")
		if !track {
			t.Error("expected loved track flag")
		}
	})

	t.Run("Album Membership By Directory", func(t *testing.T) {
		_, album, _ := sets.Flags("/music/Miles Davis/Kind of Blue/Freddie Freeloader.m4a")
		if !album {
			t.Error("expected any track in a loved album directory to be flagged")
		}
	})

	t.Run("Artist Membership By Directory", func(t *testing.T) {
		_, _, artist := sets.Flags("/music/Slayer/South of Heaven/Mandatory Suicide.m4a")
		if !artist {
			t.Error("expected any track under a loved artist directory to be flagged")
		}
	})

	t.Run("Unrelated Path Unflagged", func(t *testing.T) {
		track, album, artist := sets.Flags("/music/Kraftwerk/Autobahn/Autobahn.m4a")
		if track || album || artist {
			t.Error("expected no flags for unrelated path")
		}
	})

	t.Run("Missing Inputs Yield Empty Sets", func(t *testing.T) {
		empty, err := LoadLovedSets("", "", "", "/music", nil)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if track, album, artist := empty.Flags("/music/a/b/c.m4a"); track || album || artist {
			t.Error("expected no flags from empty sets")
		}
	})
}
