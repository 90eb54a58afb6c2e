package ingest

import (
	"errors"
	"fmt"
	"io"

	"github.com/viktsys/twmarket/models"
)

// ReadOptions loads an option export with the option keyword profile and
// returns its rows without touching the store. The second value counts rows
// that could not be parsed.
func ReadOptions(path, product string) ([]models.OptionRaw, int, error) {
	src, err := NewLoader(OptionProfile).Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	b := newRowBuilder(Decision{Type: Options, Header: src.Header}, path, product)
	var (
		rows    []models.OptionRaw
		invalid int
	)
	for {
		chunk, err := src.ReadChunk(5000)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid, fmt.Errorf("read %s: %w", path, err)
		}
		batch := b.build(Options, chunk)
		rows = append(rows, batch.options...)
		invalid += batch.dropped
	}
	return rows, invalid, nil
}
