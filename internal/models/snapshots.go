package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dextop-world/dextop/pkg/wire"
)

// SnapshotEncodingJSONZstd is the only encoding written today.
const SnapshotEncodingJSONZstd = "json+zstd"

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdInitErr
}

// EncodeSnapshot serializes a desktop snapshot for storage.
func EncodeSnapshot(snap wire.DesktopSnapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(encoding string, blob []byte) (wire.DesktopSnapshot, error) {
	var snap wire.DesktopSnapshot
	switch encoding {
	case SnapshotEncodingJSONZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return snap, err
		}
		raw, err := dec.DecodeAll(blob, nil)
		if err != nil {
			return snap, fmt.Errorf("decompress snapshot: %w", err)
		}
		blob = raw
	case "json":
	default:
		return snap, fmt.Errorf("unknown snapshot encoding %q", encoding)
	}
	if err := json.Unmarshal(blob, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Programs == nil {
		snap.Programs = map[string]wire.ProgramWindow{}
	}
	return snap, nil
}

// SaveDextopSnapshot stores the latest desktop snapshot of userID's dextop.
func (q *Queries) SaveDextopSnapshot(ctx context.Context, userID string, snap wire.DesktopSnapshot, at time.Time) error {
	blob, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
INSERT INTO dextop_snapshots (user_id, encoding, snapshot, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET encoding = excluded.encoding, snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		userID, SnapshotEncodingJSONZstd, blob, at)
	return err
}

// LoadDextopSnapshot returns the stored snapshot for userID. found is false
// when nothing has been saved yet.
func (q *Queries) LoadDextopSnapshot(ctx context.Context, userID string) (snap wire.DesktopSnapshot, found bool, err error) {
	var encoding string
	var blob []byte
	err = q.db.QueryRowContext(ctx, `SELECT encoding, snapshot FROM dextop_snapshots WHERE user_id = ?`, userID).Scan(&encoding, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.NewDesktopSnapshot(), false, nil
	}
	if err != nil {
		return snap, false, err
	}
	snap, err = DecodeSnapshot(encoding, blob)
	if err != nil {
		return snap, false, err
	}
	return snap, true, nil
}
