package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"unitrack/internal/core/id"
	"unitrack/internal/domain/units"
)

// CompressionAlgo specifies how a history payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which details are
// stored zstd-compressed.
const DefaultCompressThreshold = 4 * 1024

// historyRow is one row of unit_history.
type historyRow struct {
	ID                int64           `db:"id"`
	UnitID            id.ID           `db:"unit_id"`
	Action            string          `db:"action"`
	ActorID           string          `db:"actor_id"`
	Details           json.RawMessage `db:"details"`
	DetailsCompressed []byte          `db:"details_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// HistoryCodec converts history entries to and from unit_history rows.
type HistoryCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewHistoryCodec creates a codec. threshold <= 0 uses DefaultCompressThreshold.
func NewHistoryCodec(threshold int) (*HistoryCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &HistoryCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Encode builds the row for an entry of unitID.
func (c *HistoryCodec) Encode(unitID id.ID, e units.HistoryEntry) (historyRow, error) {
	raw, err := units.MarshalDetails(e.Details)
	if err != nil {
		return historyRow{}, fmt.Errorf("marshal history details: %w", err)
	}

	row := historyRow{
		UnitID:          unitID,
		Action:          string(e.Action),
		ActorID:         e.ActorID,
		CreatedAt:       e.Timestamp,
		CompressionAlgo: CompressionNone,
		Details:         raw,
	}
	if len(raw) > c.threshold {
		row.DetailsCompressed = c.encoder.EncodeAll(raw, nil)
		row.Details = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row, nil
}

// Decode rebuilds the history entry stored in row.
func (c *HistoryCodec) Decode(row historyRow) (units.HistoryEntry, error) {
	raw := row.Details
	if row.CompressionAlgo == CompressionZstd && len(row.DetailsCompressed) > 0 {
		decompressed, err := c.decoder.DecodeAll(row.DetailsCompressed, nil)
		if err != nil {
			return units.HistoryEntry{}, fmt.Errorf("decompress history %d: %w", row.ID, err)
		}
		raw = decompressed
	}

	action := units.Action(row.Action)
	details, err := units.DecodeDetails(action, raw)
	if err != nil {
		return units.HistoryEntry{}, err
	}
	return units.HistoryEntry{
		Action:    action,
		ActorID:   row.ActorID,
		Timestamp: row.CreatedAt,
		Details:   details,
	}, nil
}

// values returns row values in historyColumns order.
func (r historyRow) values() []any {
	var details any
	if r.Details != nil {
		details = []byte(r.Details)
	}
	return []any{r.UnitID, r.Action, r.ActorID, details, r.DetailsCompressed, string(r.CompressionAlgo), r.CreatedAt}
}

var historyColumns = []string{
	"unit_id", "action", "actor_id", "details", "details_compressed", "compression_algo", "created_at",
}
