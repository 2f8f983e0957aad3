// Package pdftext recovers best-effort plain text from PDF bytes without a
// document-model parser. It scans content streams, inflates the ones marked
// /FlateDecode and collects the parenthesized string operands inside them.
// Malformed input degrades to less text, never to an error.
package pdftext

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// markerWindow is how many bytes before a stream keyword are searched for the filter name.
	markerWindow = 200
	// maxInflated caps a single decompressed stream.
	maxInflated = 64 << 20
)

var (
	streamKeyword    = []byte("stream")
	endstreamKeyword = []byte("endstream")
	flateMarker      = []byte("/FlateDecode")

	parenRun     = regexp.MustCompile(`\(([^()]+)\)`)
	printableRun = regexp.MustCompile(`[\x20-\x7E]{3,}`)
	escapedBreak = strings.NewReplacer(`\n`, " ", `\r`, " ", `\t`, " ")
)

// Stats describes what an extraction pass found.
type Stats struct {
	Segments        int
	Inflated        int
	InflateFailures int
	UsedFallback    bool
}

// Extract returns the normalized text of a PDF buffer, or "" when nothing is recoverable.
func Extract(data []byte) string {
	text, _ := ExtractWithStats(data)
	return text
}

// ExtractWithStats is Extract plus counters for logging.
func ExtractWithStats(data []byte) (string, Stats) {
	var stats Stats
	var runs []string

	for _, seg := range segments(data) {
		stats.Segments++
		payload := seg.body
		if seg.compressed {
			if inflated, ok := inflate(seg.body); ok {
				payload = inflated
				stats.Inflated++
			} else {
				stats.InflateFailures++
			}
		}
		for _, m := range parenRun.FindAllSubmatch(payload, -1) {
			runs = append(runs, string(m[1]))
		}
	}

	text := normalize(escapedBreak.Replace(strings.Join(runs, " ")))
	if text != "" {
		return text, stats
	}

	stats.UsedFallback = true
	printable := printableRun.FindAll(data, -1)
	parts := make([]string, 0, len(printable))
	for _, p := range printable {
		parts = append(parts, string(p))
	}
	return normalize(strings.Join(parts, " ")), stats
}

type segment struct {
	body       []byte
	compressed bool
}

// segments walks the buffer and returns every stream ... endstream body in order.
func segments(data []byte) []segment {
	var out []segment
	pos := 0
	for pos < len(data) {
		idx := bytes.Index(data[pos:], streamKeyword)
		if idx < 0 {
			break
		}
		start := pos + idx
		pos = start + len(streamKeyword)

		// "endstream" also contains "stream"; only a bare keyword opens a segment.
		if start >= 3 && bytes.Equal(data[start-3:start], []byte("end")) {
			continue
		}

		bodyStart, ok := skipEOL(data, pos)
		if !ok {
			continue
		}
		end := bytes.Index(data[bodyStart:], endstreamKeyword)
		if end < 0 {
			break
		}
		bodyEnd := bodyStart + end
		closing := bodyEnd + len(endstreamKeyword)
		bodyEnd = trimEOL(data, bodyStart, bodyEnd)

		windowStart := start - markerWindow
		if windowStart < 0 {
			windowStart = 0
		}
		out = append(out, segment{
			body:       data[bodyStart:bodyEnd],
			compressed: bytes.Contains(data[windowStart:start], flateMarker),
		})
		pos = closing
	}
	return out
}

// skipEOL consumes the mandatory \n or \r\n after the stream keyword.
func skipEOL(data []byte, pos int) (int, bool) {
	switch {
	case pos < len(data) && data[pos] == '\n':
		return pos + 1, true
	case pos+1 < len(data) && data[pos] == '\r' && data[pos+1] == '\n':
		return pos + 2, true
	default:
		return pos, false
	}
}

// trimEOL drops a single \n or \r\n preceding endstream.
func trimEOL(data []byte, start, end int) int {
	if end > start && data[end-1] == '\n' {
		end--
		if end > start && data[end-1] == '\r' {
			end--
		}
	}
	return end
}

// inflate decodes a zlib-wrapped DEFLATE body, the framing PDF writers use for /FlateDecode.
func inflate(body []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	defer zr.Close() //nolint:errcheck
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated))
	if err != nil {
		return nil, false
	}
	return out, true
}

func normalize(s string) string {
	if !utf8.ValidString(s) {
		s = decodeLatin1(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// decodeLatin1 keeps valid UTF-8 sequences and reads every other byte as Latin-1,
// the usual single-byte encoding of string operands in simple PDF fonts.
func decodeLatin1(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			r = rune(s[i])
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}
