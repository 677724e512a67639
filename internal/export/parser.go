package export

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

// DateLayout is the startDate format used by the export
const DateLayout = "2006-01-02 15:04:05 -0700"

const recordElement = "Record"

// ErrFeedConsumed is yielded when a parser is iterated a second time
var ErrFeedConsumed = errors.New("export: record feed already consumed")

// Stats counts what a parser has seen so far
type Stats struct {
	Seen         int
	Unrecognized int
	Stale        int
	Emitted      int
}

// Parser streams Record elements out of an export document.
// It is single-pass: Records may be ranged over once.
type Parser struct {
	dec      *xml.Decoder
	types    health.TypeMap
	stats    Stats
	consumed bool
}

// NewParser creates a parser reading from r
func NewParser(r io.Reader, types health.TypeMap) *Parser {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	return &Parser{
		dec:   dec,
		types: types,
	}
}

// Stats returns counters for the records seen so far
func (p *Parser) Stats() Stats {
	return p.stats
}

// Records yields every recognized record whose startDate is strictly after
// cutoff, converted to UTC. The sequence ends at the first error.
func (p *Parser) Records(cutoff time.Time) iter.Seq2[health.Record, error] {
	return func(yield func(health.Record, error) bool) {
		if p.consumed {
			yield(health.Record{}, ErrFeedConsumed)
			return
		}
		p.consumed = true

		for {
			tok, err := p.dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				line, _ := p.dec.InputPos()
				yield(health.Record{}, fmt.Errorf("%w: malformed export near line %d: %w", health.ErrFormat, line, err))
				return
			}

			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != recordElement {
				continue
			}
			p.stats.Seen++

			rec, keep, err := p.convert(start, cutoff)
			if err != nil {
				yield(health.Record{}, err)
				return
			}
			if !keep {
				continue
			}

			p.stats.Emitted++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (p *Parser) convert(start xml.StartElement, cutoff time.Time) (health.Record, bool, error) {
	vendor, _ := attr(start, "type")
	canonical, ok := p.types.Lookup(vendor)
	if !ok {
		p.stats.Unrecognized++
		return health.Record{}, false, nil
	}

	line, _ := p.dec.InputPos()

	raw, ok := attr(start, "startDate")
	if !ok {
		return health.Record{}, false, &health.FormatError{Line: line, Attr: "startDate", Err: errors.New("missing attribute")}
	}
	ts, err := ParseStartDate(raw)
	if err != nil {
		return health.Record{}, false, &health.FormatError{Line: line, Attr: "startDate", Value: raw, Err: err}
	}

	if !ts.After(cutoff) {
		p.stats.Stale++
		return health.Record{}, false, nil
	}

	value, ok := attr(start, "value")
	if !ok {
		return health.Record{}, false, &health.FormatError{Line: line, Attr: "value", Err: errors.New("missing attribute")}
	}

	return health.Record{Type: canonical, Timestamp: ts, Value: value}, true, nil
}

// ParseStartDate parses an export timestamp such as
// "2024-01-01 08:00:00 +0100" and returns it in UTC.
func ParseStartDate(s string) (time.Time, error) {
	ts, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
