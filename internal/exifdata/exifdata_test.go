package exifdata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, name string, encode func(*bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// gpsTiff builds a minimal little-endian TIFF whose only content is a GPS
// sub-IFD with the given reference letters and degree/minute coordinates.
func gpsTiff(t *testing.T, latRef string, latDeg, latMin uint32, lonRef string, lonDeg, lonMin uint32) []byte {
	t.Helper()
	le := binary.LittleEndian
	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, le, v); err != nil {
			t.Fatal(err)
		}
	}

	buf.WriteString("II")
	w(uint16(42))
	w(uint32(8)) // IFD0 offset

	// IFD0: a single pointer to the GPS sub-IFD
	const gpsIFD = 26
	w(uint16(1))
	w(uint16(0x8825)) // GPSInfoIFDPointer
	w(uint16(4))      // LONG
	w(uint32(1))
	w(uint32(gpsIFD))
	w(uint32(0))

	// GPS IFD: ref/coordinate pairs, rationals stored past the directory
	const latOff, lonOff = 80, 104
	entry := func(tag, typ uint16, count uint32, val [4]byte) {
		w(tag)
		w(typ)
		w(count)
		buf.Write(val[:])
	}
	ascii := func(s string) (v [4]byte) { copy(v[:], s+"\x00"); return }
	ptr := func(o uint32) (v [4]byte) { le.PutUint32(v[:], o); return }
	w(uint16(4))
	entry(0x0001, 2, 2, ascii(latRef)) // GPSLatitudeRef
	entry(0x0002, 5, 3, ptr(latOff))   // GPSLatitude
	entry(0x0003, 2, 2, ascii(lonRef)) // GPSLongitudeRef
	entry(0x0004, 5, 3, ptr(lonOff))   // GPSLongitude
	w(uint32(0))

	for _, r := range []uint32{latDeg, 1, latMin, 1, 0, 1, lonDeg, 1, lonMin, 1, 0, 1} {
		w(r)
	}
	return buf.Bytes()
}

func TestRead_SouthernHemisphereStoredUnsigned(t *testing.T) {
	// 33°30'S / 70°30'W: the magnitude goes into the catalog, the sign
	// lives in the reference tag until render time.
	data := gpsTiff(t, "S", 33, 30, "W", 70, 30)
	path := filepath.Join(t.TempDir(), "south.tif")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !m.HasLocation() {
		t.Fatalf("expected coordinates, got %+v", m)
	}
	if *m.Latitude != 33.5 || m.LatitudeRef != "S" {
		t.Errorf("latitude = %v ref %q, want 33.5 ref \"S\"", *m.Latitude, m.LatitudeRef)
	}
	if *m.Longitude != 70.5 || m.LongitudeRef != "W" {
		t.Errorf("longitude = %v ref %q, want 70.5 ref \"W\"", *m.Longitude, m.LongitudeRef)
	}
}

func TestRead_NorthernHemisphereStoredUnsigned(t *testing.T) {
	data := gpsTiff(t, "N", 49, 15, "E", 16, 45)
	path := filepath.Join(t.TempDir(), "north.tif")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !m.HasLocation() {
		t.Fatalf("expected coordinates, got %+v", m)
	}
	if *m.Latitude != 49.25 || m.LatitudeRef != "N" {
		t.Errorf("latitude = %v ref %q, want 49.25 ref \"N\"", *m.Latitude, m.LatitudeRef)
	}
	if *m.Longitude != 16.75 || m.LongitudeRef != "E" {
		t.Errorf("longitude = %v ref %q, want 16.75 ref \"E\"", *m.Longitude, m.LongitudeRef)
	}
}

func TestRead_StrippedJpegYieldsEmptyMeta(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	path := writeImage(t, "plain.jpg", func(buf *bytes.Buffer) error {
		return jpeg.Encode(buf, img, nil)
	})

	m, err := Read(path)
	if err != nil {
		t.Fatalf("a JPEG without EXIF is not an error: %v", err)
	}
	if m.TakenAt != nil || m.HasLocation() || m.Altitude != nil || m.Direction != nil {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}

func TestRead_PngYieldsEmptyMeta(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	path := writeImage(t, "plain.png", func(buf *bytes.Buffer) error {
		return png.Encode(buf, img)
	})

	m, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.TakenAt != nil || m.HasLocation() {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "gone.jpg")); err == nil {
		t.Error("a missing file must be an I/O error")
	}
}

func TestHasLocation(t *testing.T) {
	lat, lon := 49.2, 16.6
	cases := []struct {
		name string
		m    Meta
		want bool
	}{
		{"both", Meta{Latitude: &lat, Longitude: &lon}, true},
		{"latitude only", Meta{Latitude: &lat}, false},
		{"longitude only", Meta{Longitude: &lon}, false},
		{"neither", Meta{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.HasLocation(); got != tc.want {
				t.Errorf("HasLocation() = %v, want %v", got, tc.want)
			}
		})
	}
}
