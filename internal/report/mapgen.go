// Package report renders the run artifacts meant for humans: the
// interactive map and the terminal summary tables.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"
)

// Marker is one geotagged image on the map.
type Marker struct {
	Name         string  `json:"name"`
	File         string  `json:"file"` // path relative to the map document
	SiteID       string  `json:"site"`
	City         string  `json:"city"`
	Photographer string  `json:"photographer"`
	Date         string  `json:"date"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Color        string  `json:"color"`
}

// SignedCoord applies the hemisphere reference to an unsigned GPS
// coordinate: south and west are negative.
func SignedCoord(v float64, ref string) float64 {
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return -v
	}
	return v
}

var sitePalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#469990", "#9a6324",
}

// colorize assigns each site a stable palette colour, sorted by site id
// so re-runs pick the same colours.
func colorize(markers []Marker) {
	siteIDs := map[string]bool{}
	for _, m := range markers {
		siteIDs[m.SiteID] = true
	}
	sorted := make([]string, 0, len(siteIDs))
	for id := range siteIDs {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	colors := map[string]string{}
	for i, id := range sorted {
		colors[id] = sitePalette[i%len(sitePalette)]
	}
	for i := range markers {
		markers[i].Color = colors[markers[i].SiteID]
	}
}

// offsetStacked nudges markers sharing a coordinate diagonally so none
// of them hides under another.
func offsetStacked(markers []Marker) {
	const step = 0.00005
	seen := map[string]int{}
	for i := range markers {
		key := fmt.Sprintf("%.5f/%.5f", markers[i].Lat, markers[i].Lon)
		n := seen[key]
		seen[key] = n + 1
		if n > 0 {
			markers[i].Lat += step * float64(n)
			markers[i].Lon += step * float64(n)
		}
	}
}

const mapTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
<title>Image map</title>
<meta name="viewport" content="width=device-width, initial-scale=1.0"/>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"/>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  html, body, #map { height: 100%; margin: 0; }
  .popup-thumb { max-width: 240px; display: block; margin-bottom: 6px; }
  .popup-table td { padding: 1px 6px 1px 0; font-size: 12px; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var markers = {{.Markers}};

var map = L.map('map');
L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);

var bounds = [];
markers.forEach(function (m) {
  bounds.push([m.lat, m.lon]);
  var popup = '<a href="' + m.file + '" target="_blank">' +
    '<img class="popup-thumb" src="' + m.file + '"/></a>' +
    '<table class="popup-table">' +
    '<tr><td>name</td><td>' + m.name + '</td></tr>' +
    '<tr><td>site</td><td>' + m.site + '</td></tr>' +
    '<tr><td>city</td><td>' + m.city + '</td></tr>' +
    '<tr><td>photographer</td><td>' + m.photographer + '</td></tr>' +
    '<tr><td>date</td><td>' + m.date + '</td></tr>' +
    '</table>';
  L.circleMarker([m.lat, m.lon], {
    radius: 7,
    color: m.color,
    fillColor: m.color,
    fillOpacity: 0.8
  }).addTo(map).bindPopup(popup);
});

if (bounds.length > 0) {
  map.fitBounds(bounds, { padding: [30, 30] });
} else {
  map.setView([0, 0], 2);
}
</script>
</body>
</html>
`

var mapTmpl = template.Must(template.New("map").Parse(mapTemplate))

// WriteMap renders the self-contained Leaflet document with one marker
// per geotagged image.
func WriteMap(path string, markers []Marker) error {
	ms := make([]Marker, len(markers))
	copy(ms, markers)
	colorize(ms)
	offsetStacked(ms)

	data, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("could not encode markers: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create map file: %w", err)
	}
	defer f.Close()

	return mapTmpl.Execute(f, struct{ Markers template.JS }{Markers: template.JS(data)})
}
