package music

import "slices"

// paramState is the running parameter state threaded through a voice.
type paramState struct {
	ctx  Context
	base Coloration
}

// VoiceEventList is the ordered event sequence of one voice in one section.
// A default list owns the DefaultListPlace of its events. A materialized
// list is a per-version view that shares event pointers with the default
// list and never renumbers them.
type VoiceEventList struct {
	voice        int
	section      *MusicSection
	events       []*Event
	chant        bool
	materialized bool
	state        paramState
}

// NewVoiceEventList creates a list holding only its SectionEnd sentinel.
func NewVoiceEventList(voice int) *VoiceEventList {
	l := &VoiceEventList{voice: voice}
	l.state = l.initialState(nil)
	end := NewEvent(&SectionEnd{})
	end.Context = l.state.ctx
	l.events = []*Event{end}
	l.renumber(0)
	return l
}

// NewChantEventList creates a plainchant list, which ignores mensuration.
func NewChantEventList(voice int) *VoiceEventList {
	l := NewVoiceEventList(voice)
	l.chant = true
	return l
}

// Voice returns the 0-based voice number.
func (l *VoiceEventList) Voice() int { return l.voice }

// Section returns the owning section, if attached.
func (l *VoiceEventList) Section() *MusicSection { return l.section }

// Chant reports whether the list holds plainchant.
func (l *VoiceEventList) Chant() bool { return l.chant }

// Materialized reports whether the list is a per-version view.
func (l *VoiceEventList) Materialized() bool { return l.materialized }

// Len returns the number of events including the SectionEnd sentinel.
func (l *VoiceEventList) Len() int { return len(l.events) }

// Event returns the event at index i, or nil when out of range.
func (l *VoiceEventList) Event(i int) *Event {
	if i < 0 || i >= len(l.events) {
		return nil
	}
	return l.events[i]
}

// Events returns a copy of the event slice.
func (l *VoiceEventList) Events() []*Event {
	return slices.Clone(l.events)
}

// AddEvent appends e before the SectionEnd sentinel and applies the running
// parameter state to it.
func (l *VoiceEventList) AddEvent(e *Event) {
	pos := len(l.events) - 1
	applyParams(e, &l.state, l.chant)
	l.events = slices.Insert(l.events, pos, e)
	l.renumber(pos)
}

// InsertEvent inserts e at index i, taking its parameters from the event
// before it. Later events keep stale parameters until RecalcEventParams.
func (l *VoiceEventList) InsertEvent(i int, e *Event) {
	if i < 0 {
		i = 0
	}
	if i > len(l.events)-1 {
		i = len(l.events) - 1
	}
	st := l.stateBefore(i)
	applyParams(e, &st, l.chant)
	l.events = slices.Insert(l.events, i, e)
	l.renumber(i)
}

// DeleteEvent removes and returns the event at index i.
func (l *VoiceEventList) DeleteEvent(i int) *Event {
	e := l.events[i]
	l.events = slices.Delete(l.events, i, i+1)
	l.renumber(i)
	if !l.materialized {
		e.DefaultListPlace = -1
	}
	return e
}

// replaceRange swaps events[start:end] for repl.
func (l *VoiceEventList) replaceRange(start, end int, repl []*Event) {
	l.events = slices.Replace(l.events, start, end, repl...)
	l.renumber(start)
}

// renumber is the single place where default-list indices are maintained.
// Every structural mutator calls it with the first index that moved.
func (l *VoiceEventList) renumber(from int) {
	if l.materialized {
		return
	}
	for j := from; j < len(l.events); j++ {
		l.events[j].DefaultListPlace = j
	}
}

// NextEventOfType scans from start, inclusive, in direction dir (+1 or -1)
// and returns the index of the first event of the given kind, or -1.
func (l *VoiceEventList) NextEventOfType(kind Kind, start, dir int) int {
	if dir == 0 {
		dir = 1
	}
	if dir < 0 && start >= len(l.events) {
		start = len(l.events) - 1
	}
	for i := start; i >= 0 && i < len(l.events); i += dir {
		if l.events[i].Kind() == kind {
			return i
		}
	}
	return -1
}

// lastMarkerAt scans backward from start, inclusive, for either sentinel.
func (l *VoiceEventList) lastMarkerAt(start int) int {
	b := l.NextEventOfType(KindVariantBegin, start, -1)
	e := l.NextEventOfType(KindVariantEnd, start, -1)
	return max(b, e)
}

// EnclosingMarker reports the sentinel indices around insertion position
// pos, when pos lies inside a marked segment (begin < pos <= end).
func (l *VoiceEventList) EnclosingMarker(pos int) (begin, end int, ok bool) {
	i := l.lastMarkerAt(pos - 1)
	if i < 0 || l.events[i].Kind() != KindVariantBegin {
		return -1, -1, false
	}
	end = l.MatchingEnd(i)
	if end < pos {
		return -1, -1, false
	}
	return i, end, true
}

// markerAround reports the sentinels around the event at index i. Sentinels
// themselves are not inside their own segment.
func (l *VoiceEventList) markerAround(i int) (begin, end int, ok bool) {
	if e := l.Event(i); e == nil || e.IsMarker() {
		return -1, -1, false
	}
	begin, end, ok = l.EnclosingMarker(i)
	if !ok || i >= end {
		return -1, -1, false
	}
	return begin, end, true
}

// MatchingEnd returns the index of the End sentinel paired with the Begin
// at index begin, or -1.
func (l *VoiceEventList) MatchingEnd(begin int) int {
	e := l.Event(begin)
	if e == nil {
		return -1
	}
	m := e.Marker()
	for i := begin + 1; i < len(l.events); i++ {
		if b, ok := l.events[i].Body.(*VariantEnd); ok && b.Marker == m {
			return i
		}
	}
	return -1
}

// MatchingBegin returns the index of the Begin sentinel paired with the End
// at index end, or -1.
func (l *VoiceEventList) MatchingBegin(end int) int {
	e := l.Event(end)
	if e == nil {
		return -1
	}
	m := e.Marker()
	for i := end - 1; i >= 0; i-- {
		if b, ok := l.events[i].Body.(*VariantBegin); ok && b.Marker == m {
			return i
		}
	}
	return -1
}

// Segment returns the events strictly between the Begin at index begin and
// its End.
func (l *VoiceEventList) Segment(begin int) []*Event {
	end := l.MatchingEnd(begin)
	if end < 0 {
		return nil
	}
	return slices.Clone(l.events[begin+1 : end])
}

// FindMarker returns the index of m's Begin sentinel, or -1.
func (l *VoiceEventList) FindMarker(m *VariantMarker) int {
	for i, e := range l.events {
		if b, ok := e.Body.(*VariantBegin); ok && b.Marker == m {
			return i
		}
	}
	return -1
}

// CalcIndexWithinReading translates a list index inside a marked segment to
// a 0-based offset from the segment start, or -1 outside any segment.
func (l *VoiceEventList) CalcIndexWithinReading(i int) int {
	begin, _, ok := l.EnclosingMarker(i)
	if !ok {
		return -1
	}
	return i - begin - 1
}

// AddVariantBlock appends a marked segment whose default events are
// defaultEvents, attaching readings to the new marker. Used by loaders.
func (l *VoiceEventList) AddVariantBlock(defaultEvents []*Event, readings []*VariantReading) *VariantMarker {
	begin, end, m := NewMarkerPair()
	l.AddEvent(begin)
	st := l.state
	for _, e := range defaultEvents {
		l.AddEvent(e)
	}
	l.AddEvent(end)
	for _, r := range readings {
		rs := st
		for _, e := range r.events {
			e.DefaultListPlace = -1
			applyParams(e, &rs, l.chant)
		}
		m.AddReading(r)
	}
	m.setDefaultLength(SumMusicTime(defaultEvents))
	return m
}

// RecalcEventParams recomputes the parameters of every event in order,
// seeded from prev's final state (or the section defaults when prev is nil).
// Reading events are recomputed from the state at their Begin sentinel, and
// every marker's default length and classification are refreshed. Running it
// twice yields the same result. Materialized views are left untouched; their
// shared events take their parameters from the default timeline.
func (l *VoiceEventList) RecalcEventParams(prev *VoiceEventList) {
	if l.materialized {
		return
	}
	st := l.initialState(prev)
	begin := -1
	for i, e := range l.events {
		switch b := e.Body.(type) {
		case *VariantBegin:
			begin = i
			for _, r := range b.Marker.readings {
				rs := st
				for _, re := range r.events {
					applyParams(re, &rs, l.chant)
				}
			}
		case *VariantEnd:
			if begin >= 0 {
				seg := l.events[begin+1 : i]
				b.Marker.setDefaultLength(SumMusicTime(seg))
				b.Marker.CalcVariantTypes(seg)
			}
			begin = -1
		}
		applyParams(e, &st, l.chant)
	}
	l.state = st
}

func (l *VoiceEventList) baseColoration() Coloration {
	if l.section != nil && !l.section.BaseColoration.IsZero() {
		return l.section.BaseColoration
	}
	return DefaultColoration
}

func (l *VoiceEventList) initialState(prev *VoiceEventList) paramState {
	base := l.baseColoration()
	st := paramState{base: base}
	if prev != nil {
		st.ctx = prev.state.ctx
	}
	st.ctx.Coloration = base
	return st
}

func (l *VoiceEventList) stateBefore(i int) paramState {
	if i > 0 && i <= len(l.events) {
		return paramState{ctx: l.events[i-1].Context, base: l.baseColoration()}
	}
	return l.initialState(nil)
}

// applyParams updates st with the effect of e and stamps e with the result.
func applyParams(e *Event, st *paramState, chant bool) {
	switch b := e.Body.(type) {
	case *Clef:
		switch {
		case b.IsSignature():
			st.ctx.KeySig += signatureValue(b)
		default:
			st.ctx.Clef = b
			st.ctx.KeySig = 0
		}
	case *Mensuration:
		if !chant {
			st.ctx.Mensuration = b
		}
	case *ColorChange:
		st.ctx.Coloration = b.Coloration
	case *ProportionChange:
		st.ctx.Proportion = b.Value
	case *MultiEvent:
		longest := Zero
		for _, sub := range b.Events {
			applyParams(sub, st, chant)
			if longest.Less(sub.MusicTime) {
				longest = sub.MusicTime
			}
		}
		e.Context = st.ctx
		e.Colored = st.ctx.Coloration != st.base
		e.MusicTime = longest
		return
	}
	e.Context = st.ctx
	e.Colored = st.ctx.Coloration != st.base
	e.MusicTime = eventTime(e, st.ctx, chant)
}

func signatureValue(c *Clef) int {
	switch c.Type {
	case ClefBmol:
		return -1
	case ClefDiesis:
		return 1
	}
	return 0
}

func eventTime(e *Event, ctx Context, chant bool) Proportion {
	var t NoteType
	switch b := e.Body.(type) {
	case *Note:
		t = b.Type
	case *Rest:
		t = b.Type
	case *Lacuna:
		return b.Length
	default:
		return Zero
	}
	if chant {
		return noteValue(t, nil, false)
	}
	v := noteValue(t, ctx.Mensuration, e.Colored)
	if !ctx.Proportion.IsZero() {
		v = v.Div(ctx.Proportion).Reduce()
	}
	return v
}
