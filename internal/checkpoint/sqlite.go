package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/nvandessel/latwalk/internal/histogram"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrRunNotFound is returned when a run has no stored checkpoint.
var ErrRunNotFound = errors.New("run not found")

// RunInfo summarises one stored run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	Lattice   string    `json:"lattice"`
	N         int       `json:"n"`
	Mu        float64   `json:"mu"`
	Samples   uint64    `json:"samples"`
	Tours     uint64    `json:"tours"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SQLiteStore keeps the latest checkpoint of every run in a SQLite database,
// one row per named slot.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &SQLiteStore{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// Save replaces the stored checkpoint of runID with cp and returns the
// number of encoded slot bytes written.
func (s *SQLiteStore) Save(ctx context.Context, runID string, cp *Checkpoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, title, n, mu, lattice, contact_level, samples, tours, checkpoint_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			title = excluded.title, n = excluded.n, mu = excluded.mu, lattice = excluded.lattice,
			contact_level = excluded.contact_level, samples = excluded.samples, tours = excluded.tours,
			checkpoint_time = excluded.checkpoint_time, updated_at = excluded.updated_at`,
		runID, cp.Title, cp.N, cp.Mu, cp.Lattice, cp.ContactLevel, int64(cp.Samples), int64(cp.Tours),
		cp.Time.UTC().Format(time.RFC3339Nano), now, now)
	if err != nil {
		return 0, fmt.Errorf("saving run %s: %w", runID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("clearing slots of %s: %w", runID, err)
	}

	var written int64
	insert := func(name, kind string, v any) error {
		data, err := s.encode(v)
		if err != nil {
			return fmt.Errorf("encoding slot %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slots (run_id, name, kind, data) VALUES (?, ?, ?, ?)`,
			runID, name, kind, data); err != nil {
			return fmt.Errorf("saving slot %s: %w", name, err)
		}
		written += int64(len(data))
		return nil
	}
	for _, name := range sortedKeys(cp.Histograms) {
		if err := insert(name, "float", cp.Histograms[name]); err != nil {
			return 0, err
		}
	}
	for _, name := range sortedKeys(cp.Counts) {
		if err := insert(name, "int", cp.Counts[name]); err != nil {
			return 0, err
		}
	}
	if err := insert(SlotSampledWeights, "float", cp.SampledWeights); err != nil {
		return 0, err
	}
	if err := insert(SlotSampledWalks, "int", cp.SampledWalks); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run %s: %w", runID, err)
	}
	return written, nil
}

// Load reads back the checkpoint stored for runID.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := &Checkpoint{
		Histograms: make(map[string]*histogram.Array[float64]),
		Counts:     make(map[string]*histogram.Array[int64]),
	}
	var samples, tours int64
	var ts string
	err := s.db.QueryRowContext(ctx, `
		SELECT title, n, mu, lattice, contact_level, samples, tours, checkpoint_time
		FROM runs WHERE run_id = ?`, runID).
		Scan(&cp.Title, &cp.N, &cp.Mu, &cp.Lattice, &cp.ContactLevel, &samples, &tours, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	cp.Samples, cp.Tours = uint64(samples), uint64(tours)
	if cp.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("parsing checkpoint time of %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, data FROM slots WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading slots of %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, kind string
		var data []byte
		if err := rows.Scan(&name, &kind, &data); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		switch {
		case name == SlotSampledWeights:
			cp.SampledWeights = new(histogram.Array[float64])
			err = s.decode(data, cp.SampledWeights)
		case name == SlotSampledWalks:
			cp.SampledWalks = new(histogram.Array[int64])
			err = s.decode(data, cp.SampledWalks)
		case kind == "float":
			h := new(histogram.Array[float64])
			err = s.decode(data, h)
			cp.Histograms[name] = h
		case kind == "int":
			h := new(histogram.Array[int64])
			err = s.decode(data, h)
			cp.Counts[name] = h
		default:
			err = fmt.Errorf("unknown slot kind %q", kind)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding slot %s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slots: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint for run %s: %w", runID, err)
	}
	return cp, nil
}

// List returns the stored runs, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, lattice, n, mu, samples, tours, updated_at
		FROM runs ORDER BY updated_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		var samples, tours int64
		var updated string
		if err := rows.Scan(&ri.RunID, &ri.Lattice, &ri.N, &ri.Mu, &samples, &tours, &updated); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		ri.Samples, ri.Tours = uint64(samples), uint64(tours)
		ri.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, ri)
	}
	return out, rows.Err()
}

// Latest returns the most recently updated run's checkpoint.
func (s *SQLiteStore) Latest(ctx context.Context) (string, *Checkpoint, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(runs) == 0 {
		return "", nil, ErrRunNotFound
	}
	cp, err := s.Load(ctx, runs[0].RunID)
	if err != nil {
		return "", nil, err
	}
	return runs[0].RunID, cp, nil
}

// Delete removes runID and its slots.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *SQLiteStore) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(raw, nil), nil
}

func (s *SQLiteStore) decode(data []byte, v any) error {
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
