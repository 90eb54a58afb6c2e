package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	sampleRecords   = 200
	headerScanLines = 10
	emptyColumnName = "空欄位"
)

// Profile tells the loader which keywords make a header plausible.
type Profile struct {
	Name string
	// HeaderKeywords must all appear in a line for it to be tried first.
	HeaderKeywords []string
	// Required are matched against the joined header; one hit is enough.
	Required []string
	// Lenient accepts the first parse with data rows when no combination
	// passes the keyword check.
	Lenient bool
}

// OptionProfile reads TAIFEX option exports for the OI analysis.
var OptionProfile = Profile{
	Name:           "options",
	HeaderKeywords: []string{"交易日期", "履約", "買賣權"},
	Required:       []string{"交易日期", "履約", "買賣權", "未沖銷契約"},
}

// ImportProfile reads any export handled by the importer.
var ImportProfile = Profile{
	Name:     "import",
	Required: importKeywords(),
	Lenient:  true,
}

func importKeywords() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(words ...string) {
		for _, w := range words {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	add(stockFieldKeywords...)
	add(derivativeFieldKeywords...)
	for _, f := range fieldOrder {
		add(columnCandidates[f]...)
	}
	return out
}

var encodingNames = []string{"utf-8-sig", "utf-8", "big5", "latin1"}

func decoderFor(name string) (encoding.Encoding, error) {
	switch name {
	case "utf-8-sig":
		return unicode.UTF8BOM, nil
	case "utf-8":
		return nil, nil
	case "big5", "cp950":
		return traditionalchinese.Big5, nil
	case "latin1":
		return charmap.ISO8859_1, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// sniffEncoding guesses from the leading bytes of a file.
func sniffEncoding(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}):
		return "utf-8-sig"
	case utf8.Valid(trimPartialRune(head)):
		return "utf-8"
	default:
		return "big5"
	}
}

// trimPartialRune drops a rune cut off at the end of a read buffer.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func candidateEncodings(head []byte) []string {
	guess := sniffEncoding(head)
	out := []string{guess}
	for _, name := range encodingNames {
		if name != guess {
			out = append(out, name)
		}
	}
	return out
}

func sniffDelimiters(sample string) []rune {
	var found []rune
	for _, d := range []rune{',', '\t', ';', '|'} {
		if strings.ContainsRune(sample, d) {
			found = append(found, d)
		}
	}
	if !strings.ContainsRune(sample, ',') {
		found = append(found, ',')
	}
	return found
}

// Attempt is one tried (encoding, delimiter, header row) combination.
type Attempt struct {
	Encoding  string
	Delimiter rune
	HeaderRow int
	Note      string
}

// LoadError reports a file no combination could parse plausibly.
type LoadError struct {
	Path     string
	Profile  string
	Attempts []Attempt
	Sample   []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("parse %s: no plausible %s layout after %d attempts", e.Path, e.Profile, len(e.Attempts))
}

// Report renders the attempts, the raw sample and tokenization previews.
func (e *LoadError) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== DIAGNOSTIC REPORT: %s =====\n", e.Path)
	b.WriteString("Tried combinations:\n")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "  enc=%s, delim=%q, header_row=%d -> %s\n", a.Encoding, a.Delimiter, a.HeaderRow, a.Note)
	}

	b.WriteString("\nRaw sample (first lines):\n")
	for i, line := range e.Sample {
		fmt.Fprintf(&b, "%03d: %q\n", i, line)
	}

	if len(e.Sample) > 0 {
		b.WriteString("\n-- tokenization hints --\n")
		for _, d := range []string{",", "\t", ";", "|"} {
			fmt.Fprintf(&b, "\n--- tokenization preview (delimiter=%q) ---\n", d)
			for i, line := range e.Sample {
				if i >= 10 {
					break
				}
				tokens := strings.Split(line, d)
				fmt.Fprintf(&b, "%03d | %02d tokens | %q\n", i, len(tokens), tokens)
			}
		}
	}
	b.WriteString("===== END DIAGNOSTIC =====\n")
	return b.String()
}

// Layout is the parse a Loader settled on for a file.
type Layout struct {
	Encoding  string
	Delimiter rune
	HeaderRow int
	Header    []string
	// Preamble holds the lines above the header, usually report titles.
	Preamble [][]string
	keep     []int
}

// Source streams the data rows of a file with the chosen layout.
type Source struct {
	Layout
	path   string
	file   *os.File
	reader *csv.Reader
}

func (s *Source) Path() string { return s.path }

// ReadChunk returns up to n data rows projected onto the header columns.
// It returns io.EOF once no rows remain.
func (s *Source) ReadChunk(n int) ([][]string, error) {
	rows := make([][]string, 0, n)
	for len(rows) < n {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return rows, err
		}
		if blank(record) {
			continue
		}
		rows = append(rows, project(record, s.keep))
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

func (s *Source) Close() error {
	return s.file.Close()
}

// Loader tries encoding, delimiter and header-row combinations until one
// gives a plausible table.
type Loader struct {
	Profile Profile
}

func NewLoader(profile Profile) *Loader {
	return &Loader{Profile: profile}
}

// Open picks a layout for path and returns a Source positioned on the first
// data row. A *LoadError is returned when nothing plausible is found.
func (l *Loader) Open(path string) (*Source, error) {
	head, err := readHead(path, 64*1024)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	loadErr := &LoadError{Path: path, Profile: l.Profile.Name}
	var fallback *Layout

	for _, enc := range candidateEncodings(head) {
		lines, err := sampleLines(path, enc, sampleRecords)
		if err != nil {
			loadErr.Attempts = append(loadErr.Attempts, Attempt{Encoding: enc, HeaderRow: -1, Note: "read_sample_error: " + err.Error()})
			continue
		}
		loadErr.Sample = firstN(lines, 50)

		for _, delim := range sniffDelimiters(strings.Join(lines, "\n")) {
			records, err := sampleRecordsFor(path, enc, delim, sampleRecords)
			if err != nil {
				loadErr.Attempts = append(loadErr.Attempts, Attempt{Encoding: enc, Delimiter: delim, HeaderRow: -1, Note: "read_error: " + err.Error()})
				continue
			}

			for _, h := range l.headerCandidates(records) {
				layout, rows := buildLayout(enc, delim, h, records)
				note := fmt.Sprintf("sample_records=%d columns=%d data_rows=%d", len(records), len(layout.Header), rows)
				if rows > 0 && l.plausible(layout.Header) {
					return openSource(path, layout)
				}
				if rows > 0 && fallback == nil {
					fb := layout
					fallback = &fb
				}
				loadErr.Attempts = append(loadErr.Attempts, Attempt{Encoding: enc, Delimiter: delim, HeaderRow: h, Note: note + " implausible"})
			}
		}
	}

	if l.Profile.Lenient && fallback != nil {
		return openSource(path, *fallback)
	}
	return nil, loadErr
}

// headerCandidates lists the keyword row first and then rows 0..9.
func (l *Loader) headerCandidates(records [][]string) []int {
	limit := headerScanLines
	if len(records) < limit {
		limit = len(records)
	}

	var out []int
	if len(l.Profile.HeaderKeywords) > 0 {
		for i := 0; i < limit; i++ {
			if containsAll(records[i], l.Profile.HeaderKeywords) {
				out = append(out, i)
				break
			}
		}
	}
	for i := 0; i < limit; i++ {
		if len(out) > 0 && out[0] == i {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (l *Loader) plausible(header []string) bool {
	joined := strings.Join(header, ",")
	lower := strings.ToLower(joined)
	for _, k := range l.Profile.Required {
		if strings.Contains(joined, k) || strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func containsAll(tokens []string, keywords []string) bool {
	for _, k := range keywords {
		found := false
		for _, t := range tokens {
			if strings.Contains(strings.TrimSpace(t), k) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// buildLayout drops columns with neither a header nor any data in the sample
// and names the remaining blank headers. A named column is always kept, since
// its values may start past the sample. It returns the layout and the number
// of non-blank data rows in the sample.
func buildLayout(enc string, delim rune, headerRow int, records [][]string) (Layout, int) {
	header := records[headerRow]
	data := records[headerRow+1:]

	width := len(header)
	for _, r := range data {
		if len(r) > width {
			width = len(r)
		}
	}

	var keep []int
	for col := 0; col < width; col++ {
		if cell(header, col) != "" || columnHasData(data, col) {
			keep = append(keep, col)
		}
	}

	names := make([]string, len(keep))
	for i, col := range keep {
		name := cell(header, col)
		if name == "" {
			name = emptyColumnName
		}
		names[i] = name
	}

	rows := 0
	for _, r := range data {
		if !blank(r) {
			rows++
		}
	}

	preamble := make([][]string, 0, headerRow)
	for _, r := range records[:headerRow] {
		preamble = append(preamble, trimAll(r))
	}

	return Layout{
		Encoding:  enc,
		Delimiter: delim,
		HeaderRow: headerRow,
		Header:    names,
		Preamble:  preamble,
		keep:      keep,
	}, rows
}

func openSource(path string, layout Layout) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	reader, err := newCSVReader(f, layout.Encoding, layout.Delimiter)
	if err != nil {
		f.Close()
		return nil, err
	}
	for i := 0; i <= layout.HeaderRow; i++ {
		if _, err := reader.Read(); err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			f.Close()
			return nil, fmt.Errorf("skip header of %s: %w", path, err)
		}
	}
	return &Source{Layout: layout, path: path, file: f, reader: reader}, nil
}

func newCSVReader(r io.Reader, enc string, delim rune) (*csv.Reader, error) {
	decoded, err := decode(r, enc)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(bufio.NewReaderSize(decoded, 256*1024))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, nil
}

func decode(r io.Reader, enc string) (io.Reader, error) {
	e, err := decoderFor(enc)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return r, nil
	}
	return transform.NewReader(r, e.NewDecoder()), nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

func sampleLines(path, enc string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := decode(f, enc)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() && len(lines) < n {
		line := strings.TrimRight(scanner.Text(), "\r")
		if enc == "utf-8" && !utf8.ValidString(line) {
			return nil, fmt.Errorf("invalid utf-8 on line %d", len(lines))
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func sampleRecordsFor(path, enc string, delim rune, n int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := newCSVReader(f, enc, delim)
	if err != nil {
		return nil, err
	}

	var records [][]string
	for len(records) < n {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, err
		}
		records = append(records, append([]string(nil), record...))
	}
	if len(records) == 0 {
		return nil, errors.New("empty file")
	}
	return records, nil
}

func cell(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func columnHasData(rows [][]string, col int) bool {
	for _, r := range rows {
		if cell(r, col) != "" {
			return true
		}
	}
	return false
}

func project(record []string, keep []int) []string {
	out := make([]string, len(keep))
	for i, col := range keep {
		out[i] = cell(record, col)
	}
	return out
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, c := range record {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func firstN(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
