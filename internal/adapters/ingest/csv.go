package ingest

import (
	"bytes"
	"encoding/csv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var separators = []rune{';', ',', '\t', '|'}

// sniffLines is how many lines separator detection looks at.
const sniffLines = 10

// decodeText returns data as UTF-8. Exports that are not valid UTF-8 are
// taken to be Windows-1252, which covers ISO-8859-1 for printable text.
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}

func readCSV(data []byte) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	r := newCSVReader(text, detectSeparator(text))
	return r.ReadAll()
}

func newCSVReader(text []byte, sep rune) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r
}

// detectSeparator picks the separator giving the most lines with the same
// column count (above one) among the first lines. Earlier separators win
// ties.
func detectSeparator(text []byte) rune {
	best, bestScore := separators[0], 0
	for _, sep := range separators {
		r := newCSVReader(text, sep)
		counts := map[int]int{}
		for i := 0; i < sniffLines; i++ {
			rec, err := r.Read()
			if err != nil {
				break
			}
			if len(rec) > 1 {
				counts[len(rec)]++
			}
		}
		score := 0
		for _, n := range counts {
			score = max(score, n)
		}
		if score > bestScore {
			best, bestScore = sep, score
		}
	}
	return best
}
