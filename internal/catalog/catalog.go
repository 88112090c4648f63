// Package catalog keeps an apparatus catalog of indexed pieces in SQLite:
// one row per version, variant marker and reading, with the variant type
// bits of each reading, so readings can be listed by version across pieces.
package catalog

import (
	"context"
	"database/sql"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/sqlite"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS pieces (
	id TEXT PRIMARY KEY,
	title TEXT,
	composer TEXT,
	digest TEXT,
	voices INTEGER,
	sections INTEGER,
	indexed_at TEXT
);
CREATE TABLE IF NOT EXISTS versions (
	piece_id TEXT NOT NULL,
	id TEXT NOT NULL,
	source_name TEXT,
	source_id TEXT,
	editor TEXT,
	description TEXT,
	missing_voices TEXT,
	is_default INTEGER,
	PRIMARY KEY (piece_id, id)
);
CREATE TABLE IF NOT EXISTS markers (
	piece_id TEXT NOT NULL,
	marker INTEGER NOT NULL,
	section INTEGER,
	voice INTEGER,
	position INTEGER,
	default_length TEXT,
	types INTEGER,
	PRIMARY KEY (piece_id, marker)
);
CREATE TABLE IF NOT EXISTS readings (
	piece_id TEXT NOT NULL,
	marker INTEGER NOT NULL,
	reading INTEGER NOT NULL,
	error INTEGER,
	types INTEGER,
	events INTEGER,
	music_time TEXT,
	PRIMARY KEY (piece_id, marker, reading)
);
CREATE TABLE IF NOT EXISTS reading_versions (
	piece_id TEXT NOT NULL,
	marker INTEGER NOT NULL,
	reading INTEGER NOT NULL,
	version_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reading_versions_version ON reading_versions(piece_id, version_id);
`

// now stamps indexed pieces; tests replace it.
var now = time.Now

// Catalog is an open apparatus catalog.
type Catalog struct {
	db *sql.DB
}

// Piece is one indexed piece.
type Piece struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Composer  string `json:"composer,omitempty"`
	Digest    string `json:"digest"`
	Voices    int    `json:"voices"`
	Sections  int    `json:"sections"`
	IndexedAt string `json:"indexed_at"`
}

// Version is one indexed variant version.
type Version struct {
	ID            string `json:"id"`
	SourceName    string `json:"source_name,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
	Editor        string `json:"editor,omitempty"`
	Description   string `json:"description,omitempty"`
	MissingVoices []int  `json:"missing_voices,omitempty"`
	Default       bool   `json:"default,omitempty"`
}

// Marker is one indexed variant marker.
type Marker struct {
	Number        int               `json:"number"`
	Location      music.Location    `json:"location"`
	DefaultLength string            `json:"default_length"`
	Types         music.VariantType `json:"types"`
}

// Reading is one indexed reading together with its marker's location.
type Reading struct {
	Marker    int               `json:"marker"`
	Location  music.Location    `json:"location"`
	Number    int               `json:"number"`
	Error     bool              `json:"error,omitempty"`
	Types     music.VariantType `json:"types"`
	Events    int               `json:"events"`
	MusicTime string            `json:"music_time"`
	Versions  []string          `json:"versions"`
}

// Stats counts the rows written by Index.
type Stats struct {
	Versions int `json:"versions"`
	Markers  int `json:"markers"`
	Readings int `json:"readings"`
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open catalog", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create catalog schema")
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Index replaces everything recorded for pieceID with the apparatus of p.
// Variant types are recomputed against the default segments.
func (c *Catalog) Index(ctx context.Context, pieceID string, p *music.Piece) (Stats, error) {
	if pieceID == "" {
		return Stats{}, errors.NewValidation("piece_id", "must not be empty")
	}
	if p.Materialized() {
		return Stats{}, errors.NewValidation("piece", "cannot index a materialized version")
	}
	var st Stats
	err := sqlite.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		if err := deletePiece(ctx, tx, pieceID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pieces (id, title, composer, digest, voices, sections, indexed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pieceID, p.Meta.Title, p.Meta.Composer, p.Digest(), p.NumVoices(), p.NumSections(),
			now().UTC().Format(time.RFC3339)); err != nil {
			return errors.Wrap(err, "insert piece")
		}

		for _, v := range p.Versions() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO versions (piece_id, id, source_name, source_id, editor, description, missing_voices, is_default) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				pieceID, v.ID, v.SourceName, v.SourceID, v.Editor, v.Description,
				formatVoices(v.MissingVoices), v.Default); err != nil {
				return errors.Wrapf(err, "insert version %s", v.ID)
			}
			st.Versions++
		}

		for n, mv := range p.Markers() {
			types := mv.Marker.CalcVariantTypes(mv.Readings[0].Events)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO markers (piece_id, marker, section, voice, position, default_length, types) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				pieceID, n, mv.Location.Section, mv.Location.Voice, mv.Location.Index,
				mv.Marker.DefaultLength().String(), int(types)); err != nil {
				return errors.Wrapf(err, "insert marker %d", n)
			}
			st.Markers++

			for rn, r := range mv.Marker.Readings() {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO readings (piece_id, marker, reading, error, types, events, music_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					pieceID, n, rn, r.Error, int(r.Types()), r.Len(), r.MusicTime().String()); err != nil {
					return errors.Wrapf(err, "insert reading %d.%d", n, rn)
				}
				for _, v := range r.Versions() {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO reading_versions (piece_id, marker, reading, version_id) VALUES (?, ?, ?, ?)`,
						pieceID, n, rn, v.ID); err != nil {
						return errors.Wrapf(err, "insert reading version %s", v.ID)
					}
				}
				st.Readings++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	logging.Info("catalog indexed", "piece_id", pieceID,
		"versions", st.Versions, "markers", st.Markers, "readings", st.Readings)
	return st, nil
}

// Remove deletes everything recorded for pieceID.
func (c *Catalog) Remove(ctx context.Context, pieceID string) error {
	return sqlite.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		return deletePiece(ctx, tx, pieceID)
	})
}

func deletePiece(ctx context.Context, tx *sql.Tx, pieceID string) error {
	for _, table := range []string{"reading_versions", "readings", "markers", "versions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE piece_id = ?`, pieceID); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pieces WHERE id = ?`, pieceID); err != nil {
		return errors.Wrap(err, "clear pieces")
	}
	return nil
}

// Pieces lists the indexed pieces ordered by ID.
func (c *Catalog) Pieces(ctx context.Context) ([]Piece, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, composer, digest, voices, sections, indexed_at FROM pieces ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query pieces")
	}
	defer rows.Close()

	var out []Piece
	for rows.Next() {
		var p Piece
		if err := rows.Scan(&p.ID, &p.Title, &p.Composer, &p.Digest, &p.Voices, &p.Sections, &p.IndexedAt); err != nil {
			return nil, errors.Wrap(err, "scan piece")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Versions lists the versions of an indexed piece in declaration order.
func (c *Catalog) Versions(ctx context.Context, pieceID string) ([]Version, error) {
	if err := c.requirePiece(ctx, pieceID); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, source_name, source_id, editor, description, missing_voices, is_default
		 FROM versions WHERE piece_id = ? ORDER BY rowid`, pieceID)
	if err != nil {
		return nil, errors.Wrap(err, "query versions")
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var missing string
		if err := rows.Scan(&v.ID, &v.SourceName, &v.SourceID, &v.Editor, &v.Description, &missing, &v.Default); err != nil {
			return nil, errors.Wrap(err, "scan version")
		}
		v.MissingVoices = parseVoices(missing)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Markers lists the markers of an indexed piece in timeline order.
func (c *Catalog) Markers(ctx context.Context, pieceID string) ([]Marker, error) {
	if err := c.requirePiece(ctx, pieceID); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT marker, section, voice, position, default_length, types
		 FROM markers WHERE piece_id = ? ORDER BY marker`, pieceID)
	if err != nil {
		return nil, errors.Wrap(err, "query markers")
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		var types int
		if err := rows.Scan(&m.Number, &m.Location.Section, &m.Location.Voice, &m.Location.Index, &m.DefaultLength, &types); err != nil {
			return nil, errors.Wrap(err, "scan marker")
		}
		m.Types = music.VariantType(types)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Readings lists every reading of an indexed piece.
func (c *Catalog) Readings(ctx context.Context, pieceID string) ([]Reading, error) {
	return c.readings(ctx, pieceID, "")
}

// ReadingsByVersion lists the readings that versionID owns explicitly.
// Passages where the version follows the default are not listed.
func (c *Catalog) ReadingsByVersion(ctx context.Context, pieceID, versionID string) ([]Reading, error) {
	if versionID == "" {
		return nil, errors.NewValidation("version", "must not be empty")
	}
	var n int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM versions WHERE piece_id = ? AND id = ?`, pieceID, versionID).Scan(&n); err != nil {
		return nil, errors.Wrap(err, "query version")
	}
	if n == 0 {
		return nil, errors.NewNotFound("version", versionID)
	}
	return c.readings(ctx, pieceID, versionID)
}

func (c *Catalog) readings(ctx context.Context, pieceID, versionID string) ([]Reading, error) {
	if err := c.requirePiece(ctx, pieceID); err != nil {
		return nil, err
	}
	query := `SELECT r.marker, m.section, m.voice, m.position, r.reading, r.error, r.types, r.events, r.music_time,
		(SELECT group_concat(rv.version_id, ',') FROM reading_versions rv
		 WHERE rv.piece_id = r.piece_id AND rv.marker = r.marker AND rv.reading = r.reading)
		FROM readings r JOIN markers m ON m.piece_id = r.piece_id AND m.marker = r.marker
		WHERE r.piece_id = ?`
	args := []any{pieceID}
	if versionID != "" {
		query += ` AND EXISTS (SELECT 1 FROM reading_versions rv
			WHERE rv.piece_id = r.piece_id AND rv.marker = r.marker AND rv.reading = r.reading AND rv.version_id = ?)`
		args = append(args, versionID)
	}
	query += ` ORDER BY r.marker, r.reading`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query readings")
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		var types int
		var versions sql.NullString
		if err := rows.Scan(&r.Marker, &r.Location.Section, &r.Location.Voice, &r.Location.Index,
			&r.Number, &r.Error, &types, &r.Events, &r.MusicTime, &versions); err != nil {
			return nil, errors.Wrap(err, "scan reading")
		}
		r.Types = music.VariantType(types)
		if versions.String != "" {
			r.Versions = strings.Split(versions.String, ",")
			slices.Sort(r.Versions)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Catalog) requirePiece(ctx context.Context, pieceID string) error {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pieces WHERE id = ?`, pieceID).Scan(&n); err != nil {
		return errors.Wrap(err, "query piece")
	}
	if n == 0 {
		return errors.NewNotFound("piece", pieceID)
	}
	return nil
}

// formatVoices stores 0-based voice numbers as a 1-based list.
func formatVoices(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v + 1)
	}
	return strings.Join(parts, " ")
}

func parseVoices(s string) []int {
	var out []int
	for _, f := range strings.Fields(s) {
		if n, err := strconv.Atoi(f); err == nil {
			out = append(out, n-1)
		}
	}
	return out
}
