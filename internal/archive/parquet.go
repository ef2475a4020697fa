package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/shipquery/shipquery/internal/querycache"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
	MinLastUsed *time.Time
	MaxLastUsed *time.Time
}

type parquetEntry struct {
	CacheKey        string `parquet:"cache_key"`
	SQLQuery        string `parquet:"sql_query"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
	LastUsedUnixMs  int64  `parquet:"last_used_unix_ms"`
	UseCount        int64  `parquet:"use_count"`
	CreatedBy       string `parquet:"created_by"`
	MetadataJSON    string `parquet:"metadata_json"`
}

func EncodeEntriesToParquet(entries []querycache.Entry) (ParquetEncodeResult, error) {
	if len(entries) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	var minTime *time.Time
	var maxTime *time.Time

	for _, entry := range entries {
		metadataJSON := ""
		if len(entry.Metadata) > 0 {
			encoded, err := json.Marshal(entry.Metadata)
			if err != nil {
				return ParquetEncodeResult{}, fmt.Errorf("marshal metadata for %q: %w", entry.Key, err)
			}
			metadataJSON = string(encoded)
		}

		rows = append(rows, parquetEntry{
			CacheKey:        entry.Key,
			SQLQuery:        entry.SQLTemplate,
			CreatedAtUnixMs: entry.CreatedAt.UTC().UnixMilli(),
			LastUsedUnixMs:  entry.LastUsed.UTC().UnixMilli(),
			UseCount:        entry.UseCount,
			CreatedBy:       entry.CreatedBy,
			MetadataJSON:    metadataJSON,
		})

		if !entry.LastUsed.IsZero() {
			lastUsed := entry.LastUsed.UTC()
			if minTime == nil || lastUsed.Before(*minTime) {
				copy := lastUsed
				minTime = &copy
			}
			if maxTime == nil || lastUsed.After(*maxTime) {
				copy := lastUsed
				maxTime = &copy
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		MinLastUsed: minTime,
		MaxLastUsed: maxTime,
	}, nil
}
