package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"path"
	"time"
)

// Image is one catalog record. A record is created when an image is copied
// into the output tree and is never removed afterwards: deletion by the
// dedup resolver only flips Deleted, so the table doubles as an audit log.
type Image struct {
	ID           int64
	PhotoID      string // zero-padded sequence id, e.g. P001
	SiteID       string // zero-padded site id, e.g. S01; empty when site awareness is off
	SiteName     string
	City         string
	Photographer string

	TakenAt time.Time // zero when no usable date was found

	// GPS values are stored unsigned together with their reference tags,
	// exactly as they appear in EXIF. Sign handling (S/W) happens at render time.
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
	Direction *float64
	LatRef    string
	LonRef    string
	AltRef    string
	DirRef    string

	InputFolder  string
	InputName    string
	OutputFolder string
	OutputName   string

	ByteSize   int64
	Descriptor []float32 // nil when the feature vector could not be computed

	Deleted             bool
	SimilarImageDeleted bool
	SiteVerified        bool
}

// OrderKey is the fixed total order on (site, input path) used for
// deterministic tie-breaking during dedup resolution.
func (img *Image) OrderKey() string {
	return img.SiteID + "\x00" + path.Join(img.InputFolder, img.InputName)
}

// OutputRel returns the image path relative to the output tree root.
func (img *Image) OutputRel() string {
	return path.Join(img.OutputFolder, img.OutputName)
}

// HasLocation reports whether the record carries GPS coordinates.
func (img *Image) HasLocation() bool {
	return img.Latitude != nil && img.Longitude != nil
}

// Site describes one collection site loaded from its YAML descriptor.
// Attrs holds every descriptor key (city included) with lowercased keys.
type Site struct {
	SiteID   string
	SiteName string
	City     string
	Attrs    map[string]string
}

// PairOutcome records which side(s) of a same-site duplicate pair were deleted.
type PairOutcome string

const (
	OutcomeImage1 PairOutcome = "image-1"
	OutcomeImage2 PairOutcome = "image-2"
	OutcomeBoth   PairOutcome = "both"
)

// DuplicatePair is one resolved same-site edge of the similarity graph.
type DuplicatePair struct {
	ID       int64
	RunID    string
	Image1ID int64
	Image2ID int64
	Score    float64
	Outcome  PairOutcome
}

// CrossSitePair is an above-threshold edge between two different sites
// where both endpoints survived. Never auto-resolved.
type CrossSitePair struct {
	ID       int64
	RunID    string
	Image1ID int64
	Image2ID int64
	Score    float64
}

// SiteCheck queues a surviving image for manual site verification: it matched
// an image of another site and that partner was deleted by a same-site
// resolution, so the evidence is no longer visible in the output tree.
type SiteCheck struct {
	ID        int64
	RunID     string
	ImageID   int64 // the survivor to verify
	PartnerID int64 // the deleted partner
	Score     float64
	Verified  bool
}

// Run records the parameters and outcome of one engine invocation.
type Run struct {
	ID        string // UUID
	Kind      string // process, dedup, compress
	StartedAt time.Time
	Threshold float64 // similarity threshold, 0 when dedup did not run
	Budget    int64   // byte budget, 0 when compression did not run
	Cap       int64   // chosen compression cap in bytes
	Achieved  int64   // total bytes after compression
	Deficit   int64   // bytes over budget when the budget was unachievable
	Deleted   int64   // images deleted by dedup
}

// encodeVector packs a float32 vector into a little-endian blob for SQLite.
func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("descriptor blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
