package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSignedCoord(t *testing.T) {
	cases := []struct {
		v    float64
		ref  string
		want float64
	}{
		{49.2, "N", 49.2},
		{49.2, "S", -49.2},
		{16.6, "E", 16.6},
		{16.6, "W", -16.6},
		{16.6, "w", -16.6},
		{16.6, "", 16.6},
	}
	for _, tc := range cases {
		if got := SignedCoord(tc.v, tc.ref); got != tc.want {
			t.Errorf("SignedCoord(%v, %q) = %v, want %v", tc.v, tc.ref, got, tc.want)
		}
	}
}

func TestColorize_StablePerSite(t *testing.T) {
	markers := []Marker{
		{SiteID: "quarry"},
		{SiteID: "riverbed"},
		{SiteID: "quarry"},
	}
	colorize(markers)

	if markers[0].Color == "" {
		t.Fatal("every marker must get a colour")
	}
	if markers[0].Color != markers[2].Color {
		t.Error("markers of the same site must share a colour")
	}
	if markers[0].Color == markers[1].Color {
		t.Error("different sites must get different colours")
	}
}

func TestOffsetStacked(t *testing.T) {
	markers := []Marker{
		{Lat: 49.2, Lon: 16.6},
		{Lat: 49.2, Lon: 16.6},
		{Lat: 49.2, Lon: 16.6},
		{Lat: 50.0, Lon: 14.4},
	}
	offsetStacked(markers)

	if markers[0].Lat != 49.2 {
		t.Error("the first marker at a coordinate stays put")
	}
	if markers[1].Lat == markers[0].Lat || markers[2].Lat == markers[1].Lat {
		t.Error("stacked markers must be nudged apart")
	}
	if markers[2].Lat <= markers[1].Lat {
		t.Error("the nudge grows diagonally with each duplicate")
	}
	if markers[3].Lat != 50.0 || markers[3].Lon != 14.4 {
		t.Error("unique coordinates must not move")
	}
}

func TestWriteMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_map.html")
	markers := []Marker{
		{Name: "20260501_S01-P001_Brno_riverbed_JN.jpg", File: "20260501_S01-P001_Brno_riverbed_JN.jpg",
			SiteID: "riverbed", City: "Brno", Lat: 49.2, Lon: 16.6},
	}

	if err := WriteMap(path, markers); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	for _, want := range []string{"leaflet", "circleMarker", "riverbed", "49.2"} {
		if !strings.Contains(html, want) {
			t.Errorf("map document is missing %q", want)
		}
	}
}

func TestWriteMap_NoMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_map.html")
	if err := WriteMap(path, nil); err != nil {
		t.Fatalf("an empty marker set must still render: %v", err)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, Stats{
		Scanned: 10, Placed: 9, Deleted: 2, Flagged: 3,
		DedupRun: true, Threshold: 0.94, CrossSite: 1, ToVerify: 1,
		CompressRun: true, Budget: 12 << 20, Cap: 2 << 20, Achieved: 11 << 20, Shrunk: 3,
	})

	out := buf.String()
	for _, want := range []string{"Images", "Deduplication", "Compression", "0.94", "12 MiB", "2 MiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary is missing %q", want)
		}
	}
}

func TestRenderSummary_DeficitRow(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, Stats{CompressRun: true, Budget: 4 << 20, Achieved: 5 << 20, Deficit: 1 << 20})

	if !strings.Contains(buf.String(), "over budget") {
		t.Error("an infeasible budget must surface the deficit")
	}
}
