package checkpoint

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// FormatV1 is the current file format: a JSON header line followed by a
// zstd-compressed JSON payload.
const FormatV1 = 1

// MaxDecompressedSize bounds the decompressed payload (1GB).
const MaxDecompressedSize = 1 << 30

// Header is the plain-text first line of a checkpoint file.
type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id"`
	Checksum  string    `json:"checksum"`
	Title     string    `json:"title"`
	Lattice   string    `json:"lattice"`
	N         int       `json:"n"`
	Samples   uint64    `json:"samples"`
	Slots     []string  `json:"slots"`
}

// Write stores cp at path under runID.
func Write(path, runID string, cp *Checkpoint) (*Header, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing zstd writer: %w", err)
	}

	header := &Header{
		Version:   FormatV1,
		CreatedAt: cp.Time,
		RunID:     runID,
		Checksum:  checksum(compressed.Bytes()),
		Title:     cp.Title,
		Lattice:   cp.Lattice,
		N:         cp.N,
		Samples:   cp.Samples,
		Slots:     cp.Slots(),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	// Write to a sibling file, then rename into place.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("renaming checkpoint: %w", err)
	}
	return header, nil
}

// Read loads a checkpoint, verifying its checksum and contents.
func Read(path string) (*Header, *Checkpoint, error) {
	header, compressed, err := readRaw(path)
	if err != nil {
		return nil, nil, err
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	decompressed, err := io.ReadAll(io.LimitReader(dec, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if len(decompressed) > MaxDecompressedSize {
		return nil, nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var cp Checkpoint
	if err := json.Unmarshal(decompressed, &cp); err != nil {
		return nil, nil, fmt.Errorf("parsing checkpoint data: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid checkpoint %s: %w", filepath.Base(path), err)
	}
	return header, &cp, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

// Verify checks the payload checksum without decompressing.
func Verify(path string) error {
	_, _, err := readRaw(path)
	return err
}

func readRaw(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, header.Checksum, actual)
	}
	return header, compressed, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
