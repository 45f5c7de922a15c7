package normalize

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// The field types in this file never fail to decode. A value of an
// unexpected shape becomes the zero value instead of rejecting the
// whole record, since the dumps change field types between releases.

var nullLiteral = []byte("null")

func isNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, nullLiteral)
}

// FlexString accepts a JSON string, number or boolean.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (s *FlexString) UnmarshalJSON(b []byte) error {
	*s = ""
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err == nil {
			*s = FlexString(v)
		}
	case '{', '[':
		// objects and arrays have no scalar text
	default:
		*s = FlexString(b)
	}
	return nil
}

// String returns the trimmed value
func (s FlexString) String() string {
	return strings.TrimSpace(string(s))
}

// FlexInt accepts a JSON number or a numeric string. Anything else,
// including fractional numbers, is treated as absent.
type FlexInt struct {
	Value int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler
func (n *FlexInt) UnmarshalJSON(b []byte) error {
	*n = FlexInt{}
	var s FlexString
	_ = s.UnmarshalJSON(b)
	text := s.String()
	if text == "" {
		return nil
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		*n = FlexInt{Value: v, Valid: true}
		return nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		*n = FlexInt{Value: int64(f), Valid: true}
	}
	return nil
}

// FlexBool accepts a JSON boolean, a number, or a boolean-ish string.
type FlexBool struct {
	Value bool
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler
func (v *FlexBool) UnmarshalJSON(b []byte) error {
	*v = FlexBool{}
	var s FlexString
	_ = s.UnmarshalJSON(b)
	switch strings.ToLower(s.String()) {
	case "true", "t", "yes", "y", "1":
		*v = FlexBool{Value: true, Valid: true}
	case "false", "f", "no", "n", "0":
		*v = FlexBool{Value: false, Valid: true}
	}
	return nil
}

// personName is the structured author shape used by some dump releases.
type personName struct {
	Name      FlexString `json:"name"`
	FullName  FlexString `json:"full_name"`
	First     FlexString `json:"first"`
	Last      FlexString `json:"last"`
	FirstName FlexString `json:"first_name"`
	LastName  FlexString `json:"last_name"`
	Task      FlexString `json:"task"`
}

func (p personName) String() string {
	for _, s := range []FlexString{p.Name, p.FullName, p.Task} {
		if v := s.String(); v != "" {
			return v
		}
	}
	first := p.First.String()
	if first == "" {
		first = p.FirstName.String()
	}
	last := p.Last.String()
	if last == "" {
		last = p.LastName.String()
	}
	return strings.TrimSpace(first + " " + last)
}

// NameList is an ordered list of names. It accepts a list of strings, a
// list of name objects, a mix of both, or a single bare string. Blank
// entries are dropped; order is preserved.
type NameList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *NameList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return nil
	}

	if b[0] != '[' {
		if name := decodeName(b); name != "" {
			*l = NameList{name}
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	names := make(NameList, 0, len(items))
	for _, item := range items {
		if name := decodeName(item); name != "" {
			names = append(names, name)
		}
	}
	*l = names
	return nil
}

func decodeName(b []byte) string {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return ""
	}
	if b[0] == '{' {
		var p personName
		if err := json.Unmarshal(b, &p); err != nil {
			return ""
		}
		return p.String()
	}
	var s FlexString
	_ = s.UnmarshalJSON(b)
	return s.String()
}

// Label is one category label attached to a method, optionally carrying
// the area the source put it under.
type Label struct {
	Name string
	Area string
}

// labelObject covers the `collections` entries and `main_collection`.
type labelObject struct {
	Collection FlexString `json:"collection"`
	Name       FlexString `json:"name"`
	Category   FlexString `json:"category"`
	Area       FlexString `json:"area"`
	AreaID     FlexString `json:"area_id"`
}

func (o labelObject) label() Label {
	name := o.Collection.String()
	if name == "" {
		name = o.Name.String()
	}
	if name == "" {
		name = o.Category.String()
	}
	area := o.Area.String()
	if area == "" {
		area = o.AreaID.String()
	}
	return Label{Name: name, Area: area}
}

// LabelList accepts the three category shapes seen across releases:
// a list of names, a list of {collection, area} objects, or an object
// mapping area name to a list of category names. Map-shaped input is
// visited in sorted area order so results are reproducible.
type LabelList []Label

// UnmarshalJSON implements json.Unmarshaler
func (l *LabelList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return nil
	}

	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil
		}
		for _, item := range items {
			if lbl := decodeLabel(item); lbl.Name != "" {
				*l = append(*l, lbl)
			}
		}
	case '{':
		var byArea map[string]NameList
		if err := json.Unmarshal(b, &byArea); err != nil {
			return nil
		}
		areas := make([]string, 0, len(byArea))
		for area := range byArea {
			areas = append(areas, area)
		}
		sort.Strings(areas)
		for _, area := range areas {
			for _, name := range byArea[area] {
				*l = append(*l, Label{Name: name, Area: strings.TrimSpace(area)})
			}
		}
	default:
		if name := decodeName(b); name != "" {
			*l = LabelList{{Name: name}}
		}
	}
	return nil
}

func decodeLabel(b []byte) Label {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var o labelObject
		if err := json.Unmarshal(b, &o); err != nil {
			return Label{}
		}
		return o.label()
	}
	return Label{Name: decodeName(b)}
}

// MainCollection is the single-label shape embedded in paper method
// references.
type MainCollection struct {
	Label Label
}

// UnmarshalJSON implements json.Unmarshaler
func (m *MainCollection) UnmarshalJSON(b []byte) error {
	m.Label = decodeLabel(b)
	return nil
}

// linkObject is a titled URL as used by leaderboard rows and datasets
type linkObject struct {
	Title FlexString `json:"title"`
	Name  FlexString `json:"name"`
	URL   FlexString `json:"url"`
}

// LinkList accepts a list of {title, url} objects or bare URL strings.
// Entries with neither a title nor a URL are dropped.
type LinkList []Link

// UnmarshalJSON implements json.Unmarshaler
func (l *LinkList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if isNull(b) || b[0] != '[' {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if isNull(item) {
			continue
		}
		var link Link
		if item[0] == '{' {
			var o linkObject
			if err := json.Unmarshal(item, &o); err != nil {
				continue
			}
			link = Link{Title: o.Title.String(), URL: o.URL.String()}
			if link.Title == "" {
				link.Title = o.Name.String()
			}
		} else {
			var s FlexString
			_ = s.UnmarshalJSON(item)
			link = Link{URL: s.String()}
		}
		if link.Title != "" || link.URL != "" {
			*l = append(*l, link)
		}
	}
	return nil
}
