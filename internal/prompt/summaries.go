package prompt

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
)

// SummaryKind tells which shape a SummaryInput was resolved to.
type SummaryKind int

const (
	SummaryOther SummaryKind = iota
	SummaryText
	SummarySequence
	SummaryMapping
)

func (k SummaryKind) String() string {
	switch k {
	case SummaryText:
		return "text"
	case SummarySequence:
		return "sequence"
	case SummaryMapping:
		return "mapping"
	default:
		return "other"
	}
}

// SummaryEntry is one key/value pair of a mapping input.
type SummaryEntry struct {
	Key   string
	Value any
}

// SummaryInput holds article summaries of an unknown shape. The zero value
// is an Other input and normalizes to an empty sequence.
type SummaryInput struct {
	kind    SummaryKind
	text    string
	values  []any
	entries []SummaryEntry
	err     error
}

func Text(s string) SummaryInput {
	return SummaryInput{kind: SummaryText, text: s}
}

func Sequence(values ...any) SummaryInput {
	return SummaryInput{kind: SummarySequence, values: values}
}

func Strings(values []string) SummaryInput {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}

	return Sequence(anyValues...)
}

// Mapping keeps entries in the given order; keys are dropped on normalization.
func Mapping(entries ...SummaryEntry) SummaryInput {
	return SummaryInput{kind: SummaryMapping, entries: entries}
}

func (in SummaryInput) Kind() SummaryKind {
	return in.kind
}

// FromValue classifies an arbitrary Go value. Maps are enumerated in sorted
// key order because Go maps carry no order of their own.
func FromValue(v any) SummaryInput {
	switch t := v.(type) {
	case nil:
		return SummaryInput{}
	case SummaryInput:
		return t
	case string:
		return Text(t)
	case []string:
		return Strings(t)
	case []any:
		return Sequence(t...)
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Sequence()
		}

		values := make([]any, rv.Len())
		for i := range rv.Len() {
			values[i] = rv.Index(i).Interface()
		}

		return Sequence(values...)

	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortStableFunc(keys, compareMapKeys)

		entries := make([]SummaryEntry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, SummaryEntry{
				Key:   fmt.Sprint(k.Interface()),
				Value: rv.MapIndex(k).Interface(),
			})
		}

		return Mapping(entries...)

	default:
		return SummaryInput{}
	}
}

// compareMapKeys orders keys of ordered kinds by value and any other keys by
// their text.
func compareMapKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	default:
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	}
}

// ParseSummaryJSON classifies a JSON document. Object members keep their
// document order, a repeated key keeps its first position and its last value. Nested arrays and objects become their compact JSON text.
func ParseSummaryJSON(data []byte) SummaryInput {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return SummaryInput{err: fmt.Errorf("read first token: %w", err)}
	}

	var in SummaryInput

	switch t := tok.(type) {
	case string:
		in = Text(t)

	case json.Delim:
		switch t {
		case '[':
			in, err = parseJSONArray(dec)
		case '{':
			in, err = parseJSONObject(dec)
		default:
			err = fmt.Errorf("unexpected delimiter %q", t)
		}
		if err != nil {
			return SummaryInput{err: err}
		}

	default:
		// null, numbers and booleans.
		in = SummaryInput{}
	}

	if _, err = dec.Token(); !errors.Is(err, io.EOF) {
		return SummaryInput{err: errors.New("trailing data after JSON value")}
	}

	return in
}

func parseJSONArray(dec *json.Decoder) (SummaryInput, error) {
	var values []any

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SummaryInput{}, fmt.Errorf("decode array element: %w", err)
		}

		value, err := jsonValue(raw)
		if err != nil {
			return SummaryInput{}, fmt.Errorf("decode array element: %w", err)
		}
		values = append(values, value)
	}

	if _, err := dec.Token(); err != nil {
		return SummaryInput{}, fmt.Errorf("read array end: %w", err)
	}

	return Sequence(values...), nil
}

func parseJSONObject(dec *json.Decoder) (SummaryInput, error) {
	var entries []SummaryEntry
	index := make(map[string]int)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return SummaryInput{}, fmt.Errorf("read object key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return SummaryInput{}, fmt.Errorf("unexpected object key %v", keyTok)
		}

		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return SummaryInput{}, fmt.Errorf("decode object value (key = %s): %w", key, err)
		}

		value, err := jsonValue(raw)
		if err != nil {
			return SummaryInput{}, fmt.Errorf("decode object value (key = %s): %w", key, err)
		}

		if i, ok := index[key]; ok {
			entries[i].Value = value
			continue
		}

		index[key] = len(entries)
		entries = append(entries, SummaryEntry{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return SummaryInput{}, fmt.Errorf("read object end: %w", err)
	}

	return Mapping(entries...), nil
}

func jsonValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)

	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return nil, nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	case trimmed[0] == '[', trimmed[0] == '{':
		var compacted bytes.Buffer
		if err := json.Compact(&compacted, trimmed); err != nil {
			return nil, err
		}
		return compacted.String(), nil
	default:
		return string(trimmed), nil
	}
}

// Normalized is the outcome of Normalize. Degraded is set when the input
// could not be coerced and the empty fallback was used instead.
type Normalized struct {
	Summaries []string
	Kind      SummaryKind
	Degraded  bool
}

// Normalize flattens any SummaryInput into an ordered list of strings. It
// never fails: inputs that cannot be coerced yield an empty list.
func Normalize(in SummaryInput) (out Normalized) {
	defer func() {
		if r := recover(); r != nil {
			out = degraded(in.kind)
		}
	}()

	if in.err != nil {
		return degraded(in.kind)
	}

	switch in.kind {
	case SummaryText:
		return Normalized{Summaries: []string{in.text}, Kind: in.kind}

	case SummarySequence:
		summaries := make([]string, len(in.values))
		for i, v := range in.values {
			summaries[i] = coerceText(v)
		}
		return Normalized{Summaries: summaries, Kind: in.kind}

	case SummaryMapping:
		summaries := make([]string, len(in.entries))
		for i, e := range in.entries {
			summaries[i] = coerceText(e.Value)
		}
		return Normalized{Summaries: summaries, Kind: in.kind}

	default:
		return Normalized{Summaries: []string{}, Kind: SummaryOther}
	}
}

func degraded(kind SummaryKind) Normalized {
	return Normalized{Summaries: []string{}, Kind: kind, Degraded: true}
}

func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		if isNilPointer(v) {
			return ""
		}
		return t.String()
	case error:
		if isNilPointer(v) {
			return ""
		}
		return t.Error()
	}

	if isNilPointer(v) {
		return ""
	}

	return fmt.Sprint(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
