package music

import (
	"slices"
	"strings"
)

// VariantType classifies how a reading differs from the default segment.
type VariantType uint8

// Variant type bits.
const (
	VariantTextual VariantType = 1 << iota
	VariantMusical
	VariantNonSubstantive
	VariantError
)

// VariantNone means the reading does not differ.
const VariantNone VariantType = 0

// Substantive reports whether the textual or musical bit is set.
func (t VariantType) Substantive() bool {
	return t&(VariantTextual|VariantMusical) != 0
}

func (t VariantType) String() string {
	if t == VariantNone {
		return "none"
	}
	var parts []string
	if t&VariantTextual != 0 {
		parts = append(parts, "textual")
	}
	if t&VariantMusical != 0 {
		parts = append(parts, "musical")
	}
	if t&VariantNonSubstantive != 0 {
		parts = append(parts, "nonsubstantive")
	}
	if t&VariantError != 0 {
		parts = append(parts, "error")
	}
	return strings.Join(parts, "|")
}

// MarshalText renders the type bits as String does.
func (t VariantType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// VariantReading is one alternative event sequence for a marked segment,
// shared by a set of versions.
type VariantReading struct {
	versions []*VariantVersion
	events   []*Event
	types    VariantType

	// Error marks the reading as a scribal error.
	Error bool
}

// NewVariantReading creates an empty reading for the given versions.
func NewVariantReading(versions ...*VariantVersion) *VariantReading {
	r := &VariantReading{}
	for _, v := range versions {
		r.AddVersion(v)
	}
	return r
}

// Versions returns the versions sharing this reading.
func (r *VariantReading) Versions() []*VariantVersion {
	return slices.Clone(r.versions)
}

// NumVersions returns the number of versions sharing this reading.
func (r *VariantReading) NumVersions() int {
	return len(r.versions)
}

// HasVersion reports whether v follows this reading.
func (r *VariantReading) HasVersion(v *VariantVersion) bool {
	return slices.Contains(r.versions, v)
}

// AddVersion adds v to the reading's version set.
func (r *VariantReading) AddVersion(v *VariantVersion) {
	if v == nil || r.HasVersion(v) {
		return
	}
	r.versions = append(r.versions, v)
}

// DeleteVersion removes v and returns the number of versions left. A reading
// left with none must be detached from its marker by the caller.
func (r *VariantReading) DeleteVersion(v *VariantVersion) int {
	if i := slices.Index(r.versions, v); i >= 0 {
		r.versions = slices.Delete(r.versions, i, i+1)
	}
	return len(r.versions)
}

// Events returns the reading's events. The slice is a copy; the events are not.
func (r *VariantReading) Events() []*Event {
	return slices.Clone(r.events)
}

// Len returns the number of events in the reading.
func (r *VariantReading) Len() int {
	return len(r.events)
}

// Event returns the event at offset i.
func (r *VariantReading) Event(i int) *Event {
	return r.events[i]
}

// AddEvent appends e to the reading.
func (r *VariantReading) AddEvent(e *Event) {
	e.DefaultListPlace = -1
	r.events = append(r.events, e)
}

// InsertEvent inserts e at offset i.
func (r *VariantReading) InsertEvent(i int, e *Event) {
	e.DefaultListPlace = -1
	r.events = slices.Insert(r.events, i, e)
}

// DeleteEvent removes and returns the event at offset i.
func (r *VariantReading) DeleteEvent(i int) *Event {
	e := r.events[i]
	r.events = slices.Delete(r.events, i, i+1)
	return e
}

func (r *VariantReading) setEvents(events []*Event) {
	for _, e := range events {
		e.DefaultListPlace = -1
	}
	r.events = events
}

// MusicTime totals the durations of the reading's events.
func (r *VariantReading) MusicTime() Proportion {
	return SumMusicTime(r.events)
}

// Equals compares the reading's events against list[start:end].
func (r *VariantReading) Equals(list []*Event, start, end int) bool {
	if start < 0 || end > len(list) || start > end {
		return false
	}
	return EventsEqual(r.events, list[start:end])
}

// EqualReading reports whether two readings carry the same content.
func (r *VariantReading) EqualReading(o *VariantReading) bool {
	return r.Error == o.Error && EventsEqual(r.events, o.events)
}

// Clone deep-copies the reading, including its version set.
func (r *VariantReading) Clone() *VariantReading {
	c := &VariantReading{
		versions: slices.Clone(r.versions),
		types:    r.types,
		Error:    r.Error,
	}
	c.setEvents(CloneEvents(r.events))
	return c
}

// SeparateVersion removes v from r and returns a deep copy of r that
// belongs to v alone.
func (r *VariantReading) SeparateVersion(v *VariantVersion) *VariantReading {
	c := &VariantReading{types: r.types, Error: r.Error}
	c.AddVersion(v)
	c.setEvents(CloneEvents(r.events))
	r.DeleteVersion(v)
	return c
}

// Types returns the classification computed by the last CalcVariantTypes.
func (r *VariantReading) Types() VariantType {
	return r.types
}

// CalcVariantTypes classifies the reading against the default segment.
func (r *VariantReading) CalcVariantTypes(defaultEvents []*Event) VariantType {
	t := VariantNone
	if !slices.Equal(musicalKeys(r.events), musicalKeys(defaultEvents)) {
		t |= VariantMusical
	}
	if !slices.Equal(textualKeys(r.events), textualKeys(defaultEvents)) {
		t |= VariantTextual
	}
	if t == VariantNone && !EventsEqual(r.events, defaultEvents) {
		t |= VariantNonSubstantive
	}
	if r.Error {
		t |= VariantError
	}
	r.types = t
	return t
}

func musicalKeys(events []*Event) []string {
	var keys []string
	for _, e := range events {
		switch b := e.Body.(type) {
		case *Note:
			keys = append(keys, b.musicKey())
		case *Rest, *Clef, *Mensuration, *ColorChange, *Dot, *Lacuna, *ProportionChange, *MultiEvent:
			keys = append(keys, b.key())
		}
	}
	return keys
}

func textualKeys(events []*Event) []string {
	var keys []string
	for _, e := range events {
		switch b := e.Body.(type) {
		case *Note:
			if b.Syllable != "" {
				keys = append(keys, b.Syllable)
			}
		case *OriginalText:
			keys = append(keys, b.Text)
		}
	}
	return keys
}
