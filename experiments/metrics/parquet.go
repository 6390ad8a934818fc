package metrics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// ExperienceRow is one move of a training game, labelled with the final result for the mover.
type ExperienceRow struct {
	Episode int32   `parquet:"episode"`
	Step    int32   `parquet:"step"`
	Mark    string  `parquet:"mark,dict"`
	State   string  `parquet:"state"` // board key before the move
	Move    int32   `parquet:"move"`
	Result  string  `parquet:"result,dict"`
	Value   float32 `parquet:"value"` // 1 win, 0 draw, -1 loss
}

// WriteExperienceParquet writes rows to a temp file and renames it into place.
func WriteExperienceParquet(outPath string, rows []ExperienceRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "experience_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

func ReadExperienceParquet(path string) ([]ExperienceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ExperienceRow](pf)
	defer reader.Close()

	rows := make([]ExperienceRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows[:n], nil
}
