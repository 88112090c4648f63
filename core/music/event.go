package music

import (
	"fmt"
	"strings"
)

// Kind discriminates the event variants.
type Kind int

// Event kinds.
const (
	KindNote Kind = iota
	KindRest
	KindClef
	KindMensuration
	KindColorChange
	KindDot
	KindBarline
	KindAnnotation
	KindOriginalText
	KindLacuna
	KindProportion
	KindCustos
	KindLineEnd
	KindMultiEvent
	KindVariantBegin
	KindVariantEnd
	KindSectionEnd
)

var kindNames = map[Kind]string{
	KindNote:         "note",
	KindRest:         "rest",
	KindClef:         "clef",
	KindMensuration:  "mensuration",
	KindColorChange:  "color",
	KindDot:          "dot",
	KindBarline:      "barline",
	KindAnnotation:   "annotation",
	KindOriginalText: "text",
	KindLacuna:       "lacuna",
	KindProportion:   "proportion",
	KindCustos:       "custos",
	KindLineEnd:      "lineend",
	KindMultiEvent:   "multi",
	KindVariantBegin: "variant_begin",
	KindVariantEnd:   "variant_end",
	KindSectionEnd:   "section_end",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Body holds the kind-specific part of an event. The set of implementations
// is closed; callers dispatch with a type switch.
type Body interface {
	Kind() Kind
	clone() Body
	key() string
}

// Context is the set of parameters in effect at an event.
type Context struct {
	Clef        *Clef
	KeySig      int // signature accidentals, negative for flats
	Mensuration *Mensuration
	Coloration  Coloration
	Proportion  Proportion
}

// Event is one unit of a voice timeline.
type Event struct {
	Body      Body
	MusicTime Proportion
	Context   Context

	Colored    bool
	Editorial  bool
	Error      bool
	Commentary string

	// DefaultListPlace is the index of the event in its default list, or -1
	// when the event belongs to a variant reading or has not been placed.
	DefaultListPlace int
}

// NewEvent wraps a body in an event envelope with its nominal duration.
func NewEvent(b Body) *Event {
	e := &Event{Body: b, DefaultListPlace: -1}
	e.MusicTime = nominalTime(b)
	return e
}

// Kind returns the discriminant of the event body.
func (e *Event) Kind() Kind {
	return e.Body.Kind()
}

// IsMarker reports whether e is a variant Begin or End sentinel.
func (e *Event) IsMarker() bool {
	k := e.Kind()
	return k == KindVariantBegin || k == KindVariantEnd
}

// Marker returns the variant marker of a Begin or End sentinel.
func (e *Event) Marker() *VariantMarker {
	switch b := e.Body.(type) {
	case *VariantBegin:
		return b.Marker
	case *VariantEnd:
		return b.Marker
	}
	return nil
}

// Clone returns a deep copy of e that is not placed in any list.
// Marker sentinels keep pointing at the same marker.
func (e *Event) Clone() *Event {
	c := *e
	c.Body = e.Body.clone()
	c.DefaultListPlace = -1
	return &c
}

// Equal compares two events structurally. Derived state (context, colored
// flag, list place) is ignored.
func (e *Event) Equal(o *Event) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	return e.Editorial == o.Editorial &&
		e.Error == o.Error &&
		e.Commentary == o.Commentary &&
		e.Body.key() == o.Body.key()
}

// Key returns a canonical string for the event's content.
func (e *Event) Key() string {
	var sb strings.Builder
	sb.WriteString(e.Body.key())
	if e.Editorial {
		sb.WriteString(" ed")
	}
	if e.Error {
		sb.WriteString(" err")
	}
	if e.Commentary != "" {
		fmt.Fprintf(&sb, " %q", e.Commentary)
	}
	return sb.String()
}

func (e *Event) String() string {
	return e.Key()
}

// EventsEqual compares two event slices element by element.
func EventsEqual(a, b []*Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneEvents deep-copies a slice of events.
func CloneEvents(events []*Event) []*Event {
	out := make([]*Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// SumMusicTime totals the durations of events.
func SumMusicTime(events []*Event) Proportion {
	total := Zero
	for _, e := range events {
		total = total.Add(e.MusicTime).Reduce()
	}
	return total
}

func nominalTime(b Body) Proportion {
	switch v := b.(type) {
	case *Note:
		return noteValue(v.Type, nil, false)
	case *Rest:
		return noteValue(v.Type, nil, false)
	case *Lacuna:
		return v.Length
	case *MultiEvent:
		total := Zero
		for _, e := range v.Events {
			if total.Less(e.MusicTime) {
				total = e.MusicTime
			}
		}
		return total
	}
	return Zero
}
