// Package exifdata extracts capture time and GPS fields from image
// files. Missing tags are normal for field cameras, so absent values
// are nil rather than errors.
package exifdata

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Meta holds the subset of EXIF data the pipeline records per image.
type Meta struct {
	TakenAt *time.Time

	Latitude     *float64
	LatitudeRef  string // N or S
	Longitude    *float64
	LongitudeRef string // E or W
	Altitude     *float64
	AltitudeRef  string // 0 above, 1 below sea level
	Direction    *float64
	DirectionRef string // T true north, M magnetic
}

// HasLocation reports whether both coordinates were present.
func (m *Meta) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Read extracts metadata from the image at path. Files without an EXIF
// segment (PNGs, stripped JPEGs) yield an empty Meta and no error; only
// I/O failures are reported.
func Read(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return &Meta{}, nil
	}
	return fromExif(x), nil
}

func fromExif(x *exif.Exif) *Meta {
	m := &Meta{}

	if dt, err := x.DateTime(); err == nil {
		m.TakenAt = &dt
	}

	if lat, lon, err := x.LatLong(); err == nil {
		// LatLong returns signed decimal degrees; the pipeline keeps the
		// unsigned magnitude next to the reference tag and applies the
		// hemisphere sign at render time.
		lat, lon = math.Abs(lat), math.Abs(lon)
		m.Latitude = &lat
		m.Longitude = &lon
		m.LatitudeRef = tagString(x, exif.GPSLatitudeRef)
		m.LongitudeRef = tagString(x, exif.GPSLongitudeRef)
	}

	if alt := tagRational(x, exif.GPSAltitude); alt != nil {
		m.Altitude = alt
		m.AltitudeRef = tagString(x, exif.GPSAltitudeRef)
	}

	if dir := tagRational(x, exif.GPSImgDirection); dir != nil {
		m.Direction = dir
		m.DirectionRef = tagString(x, exif.GPSImgDirectionRef)
	}

	return m
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		// numeric refs (altitude) stringify through the tag itself
		return tag.String()
	}
	return s
}

func tagRational(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}
