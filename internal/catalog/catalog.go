package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Directories created inside the output tree for metadata artifacts.
const (
	MetadataDir = "_IMAGE_METADATA"
	SimilarDir  = "_SIMILAR_IMAGES"
	SizeDistDir = "_IMAGE_SIZE_DISTRIBUTIONS"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("catalog: record not found")

// Store persists the image catalog, site data and audit tables in a SQLite
// database inside the output tree, so the dedup and compress engines can run
// in separate invocations against the same output set.
type Store struct {
	db   *sql.DB
	root string // output tree root
	lock *flock.Flock
}

// Open initializes or connects to the catalog database under root and
// applies migrations.
func Open(root string) (*Store, error) {
	metaDir := filepath.Join(root, MetadataDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}

	dbPath := filepath.Join(metaDir, "catalog.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:   db,
		root: root,
		lock: flock.New(filepath.Join(metaDir, "catalog.lock")),
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Root returns the output tree root this catalog belongs to.
func (s *Store) Root() string {
	return s.root
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lock takes an exclusive file lock on the output tree so two mutating
// invocations cannot interleave. Returns an error if another run holds it.
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output tree: %w", err)
	}
	if !ok {
		return errors.New("output tree is locked by another fieldprep run")
	}
	return nil
}

// Unlock releases the output tree lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			photo_id TEXT NOT NULL,
			site_id TEXT NOT NULL DEFAULT '',
			site_name TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			photographer TEXT NOT NULL DEFAULT '',
			taken_at TEXT,
			latitude REAL,
			longitude REAL,
			altitude REAL,
			direction REAL,
			lat_ref TEXT NOT NULL DEFAULT '',
			lon_ref TEXT NOT NULL DEFAULT '',
			alt_ref TEXT NOT NULL DEFAULT '',
			dir_ref TEXT NOT NULL DEFAULT '',
			input_folder TEXT NOT NULL,
			input_name TEXT NOT NULL,
			output_folder TEXT NOT NULL,
			output_name TEXT NOT NULL,
			byte_size INTEGER NOT NULL DEFAULT 0,
			descriptor BLOB,
			deleted INTEGER NOT NULL DEFAULT 0,
			similar_image_deleted INTEGER NOT NULL DEFAULT 0,
			site_verified INTEGER NOT NULL DEFAULT 0,
			UNIQUE(site_id, input_folder, input_name)
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			site_id TEXT PRIMARY KEY,
			site_name TEXT NOT NULL,
			city TEXT NOT NULL,
			attrs_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			started_at TEXT NOT NULL,
			threshold REAL NOT NULL DEFAULT 0,
			budget INTEGER NOT NULL DEFAULT 0,
			cap INTEGER NOT NULL DEFAULT 0,
			achieved INTEGER NOT NULL DEFAULT 0,
			deficit INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS duplicate_pairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			image1_id INTEGER NOT NULL REFERENCES images(id),
			image2_id INTEGER NOT NULL REFERENCES images(id),
			score REAL NOT NULL,
			outcome TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cross_site_pairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			image1_id INTEGER NOT NULL REFERENCES images(id),
			image2_id INTEGER NOT NULL REFERENCES images(id),
			score REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS site_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			image_id INTEGER NOT NULL REFERENCES images(id),
			partner_id INTEGER NOT NULL REFERENCES images(id),
			score REAL NOT NULL,
			verified INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

const imageColumns = `id, photo_id, site_id, site_name, city, photographer,
	taken_at, latitude, longitude, altitude, direction,
	lat_ref, lon_ref, alt_ref, dir_ref,
	input_folder, input_name, output_folder, output_name,
	byte_size, descriptor, deleted, similar_image_deleted, site_verified`

// InsertImage stores a new image record and fills in its ID.
func (s *Store) InsertImage(ctx context.Context, img *Image) error {
	var takenAt any
	if !img.TakenAt.IsZero() {
		takenAt = img.TakenAt.Format(time.RFC3339)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO images (
			photo_id, site_id, site_name, city, photographer,
			taken_at, latitude, longitude, altitude, direction,
			lat_ref, lon_ref, alt_ref, dir_ref,
			input_folder, input_name, output_folder, output_name,
			byte_size, descriptor, deleted, similar_image_deleted, site_verified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0)`,
		img.PhotoID, img.SiteID, img.SiteName, img.City, img.Photographer,
		takenAt, img.Latitude, img.Longitude, img.Altitude, img.Direction,
		img.LatRef, img.LonRef, img.AltRef, img.DirRef,
		img.InputFolder, img.InputName, img.OutputFolder, img.OutputName,
		img.ByteSize, encodeVector(img.Descriptor),
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	img.ID = id
	return nil
}

func scanImage(row interface{ Scan(...any) error }) (*Image, error) {
	var img Image
	var takenAt sql.NullString
	var descriptor []byte

	err := row.Scan(
		&img.ID, &img.PhotoID, &img.SiteID, &img.SiteName, &img.City, &img.Photographer,
		&takenAt, &img.Latitude, &img.Longitude, &img.Altitude, &img.Direction,
		&img.LatRef, &img.LonRef, &img.AltRef, &img.DirRef,
		&img.InputFolder, &img.InputName, &img.OutputFolder, &img.OutputName,
		&img.ByteSize, &descriptor, &img.Deleted, &img.SimilarImageDeleted, &img.SiteVerified,
	)
	if err != nil {
		return nil, err
	}

	if takenAt.Valid && takenAt.String != "" {
		ts, parseErr := time.Parse(time.RFC3339, takenAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse taken_at: %w", parseErr)
		}
		img.TakenAt = ts
	}

	img.Descriptor, err = decodeVector(descriptor)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// GetImage loads a single record by ID.
func (s *Store) GetImage(ctx context.Context, id int64) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %d: %w", id, err)
	}
	return img, nil
}

// ListImages returns records ordered by photo id. Deleted records are
// included only when includeDeleted is set.
func (s *Store) ListImages(ctx context.Context, includeDeleted bool) ([]*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images`
	if !includeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY photo_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, scanErr := scanImage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan image: %w", scanErr)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// UpdateDescriptor replaces the stored feature vector of one image.
func (s *Store) UpdateDescriptor(ctx context.Context, id int64, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE images SET descriptor = ? WHERE id = ?`, encodeVector(vec), id)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	return nil
}

// UpdateByteSize replaces the stored size after compression.
func (s *Store) UpdateByteSize(ctx context.Context, id int64, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE images SET byte_size = ? WHERE id = ?`, size, id)
	if err != nil {
		return fmt.Errorf("update byte size: %w", err)
	}
	return nil
}

// MarkDeleted flips the deleted flag on the given images. Records stay in
// the table so the audit trail survives the file deletion.
func (s *Store) MarkDeleted(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE images SET deleted = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark deleted %d: %w", id, err)
		}
	}
	return nil
}

// MarkSimilarDeleted flags surviving images whose same-site partner was deleted.
func (s *Store) MarkSimilarDeleted(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE images SET similar_image_deleted = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark similar deleted %d: %w", id, err)
		}
	}
	return nil
}

// SetSiteVerified records the manual review outcome for a site check.
func (s *Store) SetSiteVerified(ctx context.Context, checkID int64, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE site_checks SET verified = ? WHERE id = ?`, verified, checkID)
	if err != nil {
		return fmt.Errorf("set site verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set site verified: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	var imageID int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT image_id FROM site_checks WHERE id = ?`, checkID).Scan(&imageID); err != nil {
		return fmt.Errorf("set site verified: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE images SET site_verified = ? WHERE id = ?`, verified, imageID); err != nil {
		return fmt.Errorf("set site verified: %w", err)
	}
	return nil
}

// UpsertSites stores the site table.
func (s *Store) UpsertSites(ctx context.Context, sites []Site) error {
	for _, site := range sites {
		attrs, err := json.Marshal(site.Attrs)
		if err != nil {
			return fmt.Errorf("marshal site attrs: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO sites (site_id, site_name, city, attrs_json) VALUES (?, ?, ?, ?)
			 ON CONFLICT(site_id) DO UPDATE SET site_name=excluded.site_name,
			 city=excluded.city, attrs_json=excluded.attrs_json`,
			site.SiteID, site.SiteName, site.City, string(attrs)); err != nil {
			return fmt.Errorf("upsert site %s: %w", site.SiteID, err)
		}
	}
	return nil
}

// ListSites returns the site table ordered by site id.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, site_name, city, attrs_json FROM sites ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		var attrs string
		if err := rows.Scan(&site.SiteID, &site.SiteName, &site.City, &attrs); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &site.Attrs); err != nil {
			return nil, fmt.Errorf("unmarshal site attrs: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// NewRun records the start of an engine invocation and returns its UUID.
func (s *Store) NewRun(ctx context.Context, kind string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRun persists the final parameters and outcome of a run.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET threshold=?, budget=?, cap=?, achieved=?, deficit=?, deleted=? WHERE id=?`,
		run.Threshold, run.Budget, run.Cap, run.Achieved, run.Deficit, run.Deleted, run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, threshold, budget, cap, achieved, deficit, deleted
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &run.Kind, &started, &run.Threshold,
			&run.Budget, &run.Cap, &run.Achieved, &run.Deficit, &run.Deleted); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parse run start: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertDuplicatePairs stores the resolved same-site audit rows.
func (s *Store) InsertDuplicatePairs(ctx context.Context, pairs []DuplicatePair) error {
	for _, p := range pairs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO duplicate_pairs (run_id, image1_id, image2_id, score, outcome)
			 VALUES (?, ?, ?, ?, ?)`,
			p.RunID, p.Image1ID, p.Image2ID, p.Score, string(p.Outcome)); err != nil {
			return fmt.Errorf("insert duplicate pair: %w", err)
		}
	}
	return nil
}

// ListDuplicatePairs returns all resolved same-site pairs.
func (s *Store) ListDuplicatePairs(ctx context.Context) ([]DuplicatePair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, image1_id, image2_id, score, outcome FROM duplicate_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list duplicate pairs: %w", err)
	}
	defer rows.Close()

	var pairs []DuplicatePair
	for rows.Next() {
		var p DuplicatePair
		var outcome string
		if err := rows.Scan(&p.ID, &p.RunID, &p.Image1ID, &p.Image2ID, &p.Score, &outcome); err != nil {
			return nil, fmt.Errorf("scan duplicate pair: %w", err)
		}
		p.Outcome = PairOutcome(outcome)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// InsertCrossSitePairs stores cross-site edges where both endpoints survived.
func (s *Store) InsertCrossSitePairs(ctx context.Context, pairs []CrossSitePair) error {
	for _, p := range pairs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO cross_site_pairs (run_id, image1_id, image2_id, score)
			 VALUES (?, ?, ?, ?)`,
			p.RunID, p.Image1ID, p.Image2ID, p.Score); err != nil {
			return fmt.Errorf("insert cross-site pair: %w", err)
		}
	}
	return nil
}

// ListCrossSitePairs returns all surviving cross-site pairs.
func (s *Store) ListCrossSitePairs(ctx context.Context) ([]CrossSitePair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, image1_id, image2_id, score FROM cross_site_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cross-site pairs: %w", err)
	}
	defer rows.Close()

	var pairs []CrossSitePair
	for rows.Next() {
		var p CrossSitePair
		if err := rows.Scan(&p.ID, &p.RunID, &p.Image1ID, &p.Image2ID, &p.Score); err != nil {
			return nil, fmt.Errorf("scan cross-site pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// InsertSiteChecks stores the manual verification queue.
func (s *Store) InsertSiteChecks(ctx context.Context, checks []SiteCheck) error {
	for _, c := range checks {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO site_checks (run_id, image_id, partner_id, score, verified)
			 VALUES (?, ?, ?, ?, 0)`,
			c.RunID, c.ImageID, c.PartnerID, c.Score); err != nil {
			return fmt.Errorf("insert site check: %w", err)
		}
	}
	return nil
}

// ListSiteChecks returns the manual verification queue.
func (s *Store) ListSiteChecks(ctx context.Context) ([]SiteCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, image_id, partner_id, score, verified FROM site_checks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list site checks: %w", err)
	}
	defer rows.Close()

	var checks []SiteCheck
	for rows.Next() {
		var c SiteCheck
		if err := rows.Scan(&c.ID, &c.RunID, &c.ImageID, &c.PartnerID, &c.Score, &c.Verified); err != nil {
			return nil, fmt.Errorf("scan site check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
