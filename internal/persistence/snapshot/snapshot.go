// Package snapshot writes zstd-compressed roster snapshots: a recovery
// backstop alongside the sqlite store, written on shutdown and on demand.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"saved_at_unix"`
}

type RosterV1 struct {
	Header Header `json:"header"`

	Players []PlayerV1 `json:"players"`
	Drops   []DropV1   `json:"drops,omitempty"`
}

type PlayerV1 struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Pos       [3]int         `json:"pos"`
	Inventory map[string]int `json:"inventory"`
}

type DropV1 struct {
	ID        string            `json:"id"`
	Pos       [3]int            `json:"pos"`
	Item      string            `json:"item"`
	Count     int               `json:"count"`
	Meta      map[string]string `json:"meta,omitempty"`
	ExpiresAt int64             `json:"expires_at_unix"`
}

func Write(path string, snap RosterV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func Read(path string) (RosterV1, error) {
	var snap RosterV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is informational; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
