package oi

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func oiPtr(v int64) *int64 { return &v }

func obs(d int, strike float64, cp string, oi int64) Observation {
	return Observation{Date: day(d), Strike: strike, CP: cp, OI: oiPtr(oi), RawText: "x", Session: normalize.SessionRegular}
}

func find(t *testing.T, aggs []Aggregate, d int, strike float64, cp string) Aggregate {
	t.Helper()
	for _, a := range aggs {
		if a.Date.Equal(day(d)) && a.Strike == strike && a.CP == cp {
			return a
		}
	}
	t.Fatalf("no aggregate for %d %v %s", d, strike, cp)
	return Aggregate{}
}

func TestAggregateDailyInterleavedContracts(t *testing.T) {
	// sessions of different contracts interleaved and out of order
	input := []Observation{
		obs(3, 17500, "C", 160),
		obs(1, 17600, "P", 50),
		obs(1, 17500, "C", 100),
		obs(2, 17600, "P", 80),
		obs(2, 17500, "C", 130),
		obs(3, 17600, "P", 20),
	}

	aggs := AggregateDaily(input)
	require.Len(t, aggs, 6)

	c3 := find(t, aggs, 3, 17500, "C")
	assert.EqualValues(t, 130, c3.Prev1)
	assert.EqualValues(t, 100, c3.Prev2)
	assert.EqualValues(t, 30, c3.Delta1)
	assert.EqualValues(t, 60, c3.Delta2)

	p3 := find(t, aggs, 3, 17600, "P")
	assert.EqualValues(t, -60, p3.Delta1)
	assert.EqualValues(t, -30, p3.Delta2)

	first := find(t, aggs, 1, 17500, "C")
	assert.EqualValues(t, 0, first.Prev1)
	assert.EqualValues(t, 100, first.Delta1)
}

func TestAggregateDailySumsAndJoinsRaw(t *testing.T) {
	input := []Observation{
		{Date: day(1), Strike: 17500, CP: "C", OI: oiPtr(10), RawText: "10", Session: normalize.SessionRegular},
		{Date: day(1), Strike: 17500, CP: "C", OI: nil, RawText: "-", Session: normalize.SessionRegular},
		{Date: day(1), Strike: 17500, CP: "C", OI: oiPtr(5), RawText: "5", Session: normalize.SessionRegular},
		{Date: day(1), Strike: 17500, CP: "C", OI: oiPtr(999), RawText: "999", Session: normalize.SessionAfterHours},
	}

	aggs := AggregateDaily(input)
	require.Len(t, aggs, 1)
	assert.EqualValues(t, 15, aggs[0].OI)
	assert.Equal(t, "10|-|5", aggs[0].RawOI)
}

func TestFilterSessionFallsBackToAllRows(t *testing.T) {
	input := []Observation{
		{Session: normalize.SessionAfterHours},
		{Session: normalize.SessionAfterHours},
	}
	assert.Len(t, FilterSession(input), 2)
}

func TestFilterSessionTreatsUnlabelledRowsAsRegular(t *testing.T) {
	input := []Observation{
		{Strike: 17500, Session: ""},
		{Strike: 17600, Session: normalize.Session("一般")},
		{Strike: 17700, Session: normalize.Session("盤後")},
	}

	kept := FilterSession(input)
	require.Len(t, kept, 2)
	assert.Equal(t, 17500.0, kept[0].Strike)
	assert.Equal(t, normalize.SessionRegular, kept[1].Session)
}

func TestClassifyDelta(t *testing.T) {
	tests := []struct {
		delta int64
		want  Level
	}{
		{0, LevelNone},
		{399, LevelNone},
		{400, LevelLarge},
		{799, LevelLarge},
		{-800, LevelMajor},
		{1199, LevelMajor},
		{1200, LevelExtreme},
		{-5000, LevelExtreme},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDelta(tt.delta), "delta %d", tt.delta)
	}
	assert.Equal(t, "極端", LevelExtreme.String())
	assert.Equal(t, "大單", LevelLarge.String())
}

func TestEstimateATM(t *testing.T) {
	today := []Aggregate{
		{Strike: 17400, CP: "C", OI: 100},
		{Strike: 17500, CP: "C", OI: 300},
		{Strike: 17500, CP: "P", OI: 300},
		{Strike: 17600, CP: "P", OI: 500},
		{Strike: 17700, CP: "C", OI: 0},
	}

	atm, ok := EstimateATM(today, ATMMaxOI)
	require.True(t, ok)
	assert.Equal(t, 17500.0, atm)

	atm, ok = EstimateATM(today, ATMMedian)
	require.True(t, ok)
	assert.Equal(t, 17500.0, atm)

	_, ok = EstimateATM([]Aggregate{{Strike: 1, OI: 0}}, ATMMaxOI)
	assert.False(t, ok)
}

func TestDetectLevelsAndRanking(t *testing.T) {
	input := []Observation{
		obs(1, 17500, "C", 1000),
		obs(2, 17500, "C", 2200), // +1200
		obs(1, 17500, "P", 1000),
		obs(2, 17500, "P", 201), // -799
		obs(1, 17600, "C", 100),
		obs(2, 17600, "C", 150), // +50
	}
	aggs := AggregateDaily(input)

	got := Detect(aggs, day(2), DefaultParams())
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].CP)
	assert.Equal(t, LevelExtreme, got[0].Level)
	assert.Equal(t, "極端", got[0].Label)
	assert.Equal(t, LevelLarge, got[1].Level)
	assert.EqualValues(t, 799, got[1].Abs)
}

func TestDetectRelativeAnomaly(t *testing.T) {
	var input []Observation
	// steady +10 per session, then +100
	oi := int64(1000)
	for d := 1; d <= 6; d++ {
		input = append(input, obs(d, 17500, "C", oi))
		oi += 10
	}
	input = append(input, obs(7, 17500, "C", oi-10+100))
	aggs := AggregateDaily(input)

	got := Detect(aggs, day(7), DefaultParams())
	require.Len(t, got, 1)
	assert.True(t, got[0].Relative)
	assert.Equal(t, LevelNone, got[0].Level)
	assert.Equal(t, "相對異常", got[0].Label)
	assert.InDelta(t, 10.0, got[0].Baseline, 1e-9)
}

func TestDetectRemoteFlag(t *testing.T) {
	input := []Observation{
		obs(1, 17500, "C", 5000),
		obs(2, 17500, "C", 5000),
		obs(1, 20000, "P", 0),
		obs(2, 20000, "P", 450),
	}
	aggs := AggregateDaily(input)

	got := Detect(aggs, day(2), DefaultParams())
	require.Len(t, got, 1)
	assert.True(t, got[0].Remote)
	// the level rule outranks the remote label
	assert.Equal(t, "大單", got[0].Label)
}

func TestDetectTopN(t *testing.T) {
	var input []Observation
	for i := 0; i < 15; i++ {
		strike := 17000 + float64(i)*100
		input = append(input, obs(1, strike, "C", 0), obs(2, strike, "C", int64(400+i)))
	}
	params := DefaultParams()
	got := Detect(AggregateDaily(input), day(2), params)
	require.Len(t, got, params.TopN)
	assert.EqualValues(t, 414, got[0].Abs)
}

func TestReport(t *testing.T) {
	input := []Observation{
		obs(1, 17500, "C", 100), obs(2, 17500, "C", 600),
		obs(1, 17500, "P", 900), obs(2, 17500, "P", 300),
		obs(1, 17600, "C", 50), obs(2, 17600, "C", 70),
		obs(1, 17400, "P", 10), obs(2, 17400, "P", 5),
	}
	r := Report(AggregateDaily(input), day(2), DefaultParams())

	assert.Equal(t, 4, r.Contracts)
	require.NotNil(t, r.MaxCall)
	assert.Equal(t, 17500.0, r.MaxCall.Strike)
	require.NotNil(t, r.MaxPut)
	assert.EqualValues(t, 300, r.MaxPut.OI)
	assert.True(t, r.HasATM)
	assert.Equal(t, 17500.0, r.ATM)

	require.Len(t, r.TopIncrease1, 2)
	assert.EqualValues(t, 500, r.TopIncrease1[0].Delta)
	require.Len(t, r.TopDecrease1, 2)
	assert.EqualValues(t, -600, r.TopDecrease1[0].Delta)
	assert.EqualValues(t, 670, r.TotalCallOI)
	assert.InDelta(t, 305.0/670.0, r.PutCallOIRatio, 1e-9)
	require.Len(t, r.Anomalies, 2)
}

func TestBuildPivot(t *testing.T) {
	input := []Observation{
		obs(1, 17500, "C", 100), obs(1, 17500, "P", 50),
		obs(2, 17500, "C", 120),
		obs(3, 17600, "P", 30),
	}
	aggs := AggregateDaily(input)

	p := BuildPivot(aggs, PivotOI, 0)
	assert.Equal(t, []float64{17500, 17600}, p.Strikes)
	require.Len(t, p.Dates, 3)
	assert.Equal(t, []int64{150, 120, 0}, p.Cells[0])
	assert.Equal(t, []int64{0, 0, 30}, p.Cells[1])

	recent := BuildPivot(aggs, PivotDelta, 2)
	require.Len(t, recent.Dates, 2)
	assert.Equal(t, []int64{20, 0}, recent.Cells[0])
	assert.Equal(t, []int64{0, 30}, recent.Cells[1])

	recs := p.Records()
	assert.Equal(t, []string{"strike", "2024-01-01", "2024-01-02", "2024-01-03"}, recs[0])
	assert.Equal(t, []string{"17500", "150", "120", "0"}, recs[1])
}

func TestWriteDeltasCSV(t *testing.T) {
	aggs := AggregateDaily([]Observation{obs(1, 17500, "C", 100), obs(2, 17500, "C", 130)})

	var buf bytes.Buffer
	require.NoError(t, WriteDeltasCSV(&buf, aggs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,strike,cp,oi,raw_oi_text,prev1,prev2,delta_1,delta_2", lines[0])
	assert.Equal(t, "2024-01-02,17500,C,130,x,100,0,30,130", lines[2])
}

func TestFromOptions(t *testing.T) {
	rows := []models.OptionRaw{{TradeDate: day(1), Strike: 17500, CP: "P", OI: oiPtr(3), RawOIText: "3", Session: "regular"}}
	got := FromOptions(rows)
	require.Len(t, got, 1)
	assert.Equal(t, "P", got[0].CP)
	assert.EqualValues(t, 3, *got[0].OI)
}

func TestDefaultRange(t *testing.T) {
	from, to := DefaultRange(time.Date(2024, 1, 30, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, day(1), from)
	assert.Equal(t, day(30), to)
}

func TestParseHelpers(t *testing.T) {
	m, err := ParseATMMethod("median")
	require.NoError(t, err)
	assert.Equal(t, ATMMedian, m)
	_, err = ParseATMMethod("mean")
	assert.Error(t, err)

	v, err := ParsePivotValue("delta")
	require.NoError(t, err)
	assert.Equal(t, PivotDelta, v)
}

type fakeOptionStore struct {
	rows   []models.OptionRaw
	latest time.Time
	filter database.OptionFilter
}

func (f *fakeOptionStore) QueryOptions(_ context.Context, filter database.OptionFilter) ([]models.OptionRaw, error) {
	f.filter = filter
	return f.rows, nil
}

func (f *fakeOptionStore) LatestOptionDate(context.Context, string) (time.Time, error) {
	if f.latest.IsZero() {
		return time.Time{}, database.ErrNoData
	}
	return f.latest, nil
}

func TestBuildReportDefaultsToLatestDay(t *testing.T) {
	store := &fakeOptionStore{
		latest: day(20),
		rows: []models.OptionRaw{
			{TradeDate: day(19), Strike: 17500, CP: "C", OI: oiPtr(100), Session: normalize.SessionRegular},
			{TradeDate: day(20), Strike: 17500, CP: "C", OI: oiPtr(1500), Session: normalize.SessionRegular},
		},
	}

	r, err := BuildReport(context.Background(), store, Query{Product: "TXO"}, DefaultParams())
	require.NoError(t, err)
	assert.True(t, r.Date.Equal(day(20)))
	require.Len(t, r.Anomalies, 1)
	assert.EqualValues(t, 1400, r.Anomalies[0].Delta1)

	require.NotNil(t, store.filter.From)
	assert.True(t, store.filter.From.Equal(time.Date(2023, 12, 22, 0, 0, 0, 0, time.UTC)))
	assert.True(t, store.filter.To.Equal(day(20)))
	assert.Equal(t, "TXO", store.filter.Product)
}

func TestQueryResolveExtendsRangeToDay(t *testing.T) {
	d, to := day(25), day(10)
	gotDay, _, gotTo, err := Query{Date: &d, To: &to}.Resolve(context.Background(), &fakeOptionStore{})
	require.NoError(t, err)
	assert.True(t, gotDay.Equal(day(25)))
	assert.True(t, gotTo.Equal(day(25)))

	_, _, _, err = Query{}.Resolve(context.Background(), &fakeOptionStore{})
	assert.True(t, errors.Is(err, database.ErrNoData))
}
