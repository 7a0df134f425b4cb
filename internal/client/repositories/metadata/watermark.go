package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// WatermarkPrefix starts every per-table watermark key.
const WatermarkPrefix = "lastSync_"

func WatermarkKey(t tables.Table) string {
	return WatermarkPrefix + t.String()
}

// Watermark returns the stored watermark of t, or nil when t has never
// synced (or was reset).
func Watermark(ctx context.Context, r Repository, t tables.Table) (*time.Time, error) {
	v, err := r.Get(ctx, WatermarkKey(t))
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	ts, err := records.ParseTime(string(v))
	if err != nil {
		return nil, fmt.Errorf("bad watermark for %s: %w", t, err)
	}
	return &ts, nil
}

func SetWatermark(ctx context.Context, r Repository, t tables.Table, at time.Time) error {
	return r.Set(ctx, WatermarkKey(t), []byte(records.FormatTime(at)))
}

// ResetWatermarks forgets every table's watermark so the next round pulls
// everything.
func ResetWatermarks(ctx context.Context, r Repository) error {
	return r.DeletePrefix(ctx, WatermarkPrefix)
}
