package oi

import (
	"io"

	"github.com/gocarina/gocsv"
)

// DeltaRow is the CSV shape of an Aggregate.
type DeltaRow struct {
	Date   string  `csv:"date"`
	Strike float64 `csv:"strike"`
	CP     string  `csv:"cp"`
	OI     int64   `csv:"oi"`
	RawOI  string  `csv:"raw_oi_text"`
	Prev1  int64   `csv:"prev1"`
	Prev2  int64   `csv:"prev2"`
	Delta1 int64   `csv:"delta_1"`
	Delta2 int64   `csv:"delta_2"`
}

// DeltaRows converts aggregates for export.
func DeltaRows(aggs []Aggregate) []DeltaRow {
	rows := make([]DeltaRow, len(aggs))
	for i, a := range aggs {
		rows[i] = DeltaRow{
			Date:   a.Date.Format("2006-01-02"),
			Strike: a.Strike,
			CP:     a.CP,
			OI:     a.OI,
			RawOI:  a.RawOI,
			Prev1:  a.Prev1,
			Prev2:  a.Prev2,
			Delta1: a.Delta1,
			Delta2: a.Delta2,
		}
	}
	return rows
}

// WriteDeltasCSV writes the full aggregate with deltas.
func WriteDeltasCSV(w io.Writer, aggs []Aggregate) error {
	rows := DeltaRows(aggs)
	return gocsv.Marshal(&rows, w)
}
