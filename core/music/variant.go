package music

import (
	"slices"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// variantLists resolves the default and materialized lists for a
// version-level edit.
func (p *Piece) variantLists(op string, v *VariantVersion, vmd *Piece, snum, vnum int) (dl, vl *VoiceEventList) {
	switch {
	case v == nil:
		logging.Diagnostic(op, "no version given")
		return nil, nil
	case vmd == nil || vmd.version != v:
		logging.Diagnostic(op, "materialized view does not belong to version", "version", v.ID)
		return nil, nil
	}
	dl = p.voiceList(op, snum, vnum)
	if dl == nil {
		return nil, nil
	}
	vl = vmd.VoiceList(snum, vnum)
	if vl == nil {
		logging.Diagnostic(op, "voice is missing from version", "version", v.ID, "voice", vnum)
		return nil, nil
	}
	return dl, vl
}

// ownReading returns a reading at m that belongs to v alone, splitting a
// shared reading or copying the default segment as needed. The events of vl
// between begin and end are replaced by the returned reading's events.
// created reports whether v had no reading before.
func (p *Piece) ownReading(v *VariantVersion, m *VariantMarker, dl, vl *VoiceEventList, begin, end int) (r *VariantReading, created bool) {
	r = m.ReadingFor(v)
	switch {
	case r == nil:
		db := vl.Event(begin).DefaultListPlace
		r = NewVariantReading(v)
		r.setEvents(CloneEvents(dl.Segment(db)))
		m.AddReading(r)
		created = true
	case r.NumVersions() > 1:
		r = r.SeparateVersion(v)
		m.AddReading(r)
	default:
		return r, false
	}
	vl.replaceRange(begin+1, end, slices.Clone(r.events))
	return r, created
}

// defaultIndexAt maps insertion position vi of a materialized list, outside
// any marked segment, to the corresponding position in the default list.
func defaultIndexAt(vl *VoiceEventList, vi int) int {
	if vi == 0 {
		return 0
	}
	return vl.Event(vi-1).DefaultListPlace + 1
}

// AddVariantEvent inserts e at position vi of version v's timeline only.
// vmd must be v's materialized view; it is updated in place so successive
// edits can keep using it.
func (p *Piece) AddVariantEvent(v *VariantVersion, vmd *Piece, snum, vnum, vi int, e *Event) EditResult {
	const op = "add_variant_event"
	dl, vl := p.variantLists(op, v, vmd, snum, vnum)
	if dl == nil {
		return NoAction
	}
	if e == nil || e.IsMarker() || e.Kind() == KindSectionEnd {
		logging.Diagnostic(op, "sentinel events cannot be inserted directly", "section", snum, "voice", vnum)
		return NoAction
	}
	if vi < 0 || vi > vl.Len()-1 {
		logging.Diagnostic(op, "index out of range", "section", snum, "voice", vnum, "index", vi)
		return NoAction
	}

	var res EditResult
	if begin, end, ok := vl.EnclosingMarker(vi); ok {
		r, created := p.ownReading(v, vl.Event(begin).Marker(), dl, vl, begin, end)
		r.InsertEvent(vi-begin-1, e)
		vl.InsertEvent(vi, e)
		res = Middle
		if created {
			res = NewReading
		}
	} else {
		di := defaultIndexAt(vl, vi)
		mb, me, m := NewMarkerPair()
		r := NewVariantReading(v)
		r.AddEvent(e)
		m.AddReading(r)
		dl.InsertEvent(di, mb)
		dl.InsertEvent(di+1, me)
		vl.InsertEvent(vi, mb)
		vl.InsertEvent(vi+1, e)
		vl.InsertEvent(vi+2, me)
		res = NewVariant
	}
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, res.String(), "version", v.ID, "section", snum, "voice", vnum, "index", vi)
	return res
}

// AddEventInVersion is AddVariantEvent against a freshly materialized view.
func (p *Piece) AddEventInVersion(v *VariantVersion, snum, vnum, vi int, e *Event) EditResult {
	if v == nil {
		logging.Diagnostic("add_event_in_version", "no version given")
		return NoAction
	}
	return p.AddVariantEvent(v, v.ConstructMusicData(p), snum, vnum, vi, e)
}

// DeleteVariantEvent removes the event at position vi from version v's
// timeline only. Readings and markers left empty are kept until the next
// consolidation.
func (p *Piece) DeleteVariantEvent(v *VariantVersion, vmd *Piece, snum, vnum, vi int) (*Event, EditResult) {
	const op = "delete_variant_event"
	dl, vl := p.variantLists(op, v, vmd, snum, vnum)
	if dl == nil {
		return nil, NoAction
	}
	ev := vl.Event(vi)
	switch {
	case ev == nil:
		logging.Diagnostic(op, "index out of range", "section", snum, "voice", vnum, "index", vi)
		return nil, NoAction
	case ev.IsMarker():
		logging.Diagnostic(op, "variant markers cannot be deleted directly", "section", snum, "voice", vnum, "index", vi)
		return nil, NoAction
	case ev.Kind() == KindSectionEnd:
		logging.Diagnostic(op, "section end cannot be deleted", "section", snum, "voice", vnum)
		return nil, NoAction
	}

	var (
		removed *Event
		res     EditResult
	)
	if begin, end, ok := vl.markerAround(vi); ok {
		r, created := p.ownReading(v, vl.Event(begin).Marker(), dl, vl, begin, end)
		removed = r.DeleteEvent(vi - begin - 1)
		vl.DeleteEvent(vi)
		res = Middle
		if created {
			res = NewReading
		}
	} else {
		di := ev.DefaultListPlace
		mb, me, m := NewMarkerPair()
		m.AddReading(NewVariantReading(v))
		dl.InsertEvent(di, mb)
		dl.InsertEvent(di+2, me)
		removed = vl.DeleteEvent(vi)
		vl.InsertEvent(vi, mb)
		vl.InsertEvent(vi+1, me)
		res = NewVariant
	}
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, res.String(), "version", v.ID, "section", snum, "voice", vnum, "index", vi)
	return removed, res
}

// DeleteEventInVersion is DeleteVariantEvent against a freshly materialized view.
func (p *Piece) DeleteEventInVersion(v *VariantVersion, snum, vnum, vi int) (*Event, EditResult) {
	if v == nil {
		logging.Diagnostic("delete_event_in_version", "no version given")
		return nil, NoAction
	}
	return p.DeleteVariantEvent(v, v.ConstructMusicData(p), snum, vnum, vi)
}

// DuplicateEventInVariant gives version v a private copy of the event at
// position vi and returns the reading holding it.
func (p *Piece) DuplicateEventInVariant(v *VariantVersion, vmd *Piece, snum, vnum, vi int) (*VariantReading, error) {
	return p.DuplicateEventsInVariant(v, vmd, snum, vnum, vi, vi)
}

// DuplicateEventsInVariant gives version v private copies of the events at
// positions first through last of its timeline, leaving every other version
// untouched. A range that crosses a marker boundary or contains a marker
// would require merging readings and is not supported.
func (p *Piece) DuplicateEventsInVariant(v *VariantVersion, vmd *Piece, snum, vnum, first, last int) (*VariantReading, error) {
	const op = "duplicate_events_in_variant"
	dl, vl := p.variantLists(op, v, vmd, snum, vnum)
	if dl == nil {
		return nil, errors.NewValidation(Location{Section: snum, Voice: vnum, Index: first}.String(), "no editable voice for version")
	}
	if first < 0 || first > last || last >= vl.Len()-1 {
		logging.Diagnostic(op, "range out of bounds", "first", first, "last", last)
		return nil, errors.NewValidation(Location{Section: snum, Voice: vnum, Index: first}.String(), "range out of bounds")
	}
	for i := first; i <= last; i++ {
		if vl.Event(i).IsMarker() {
			return nil, unsupportedCombine(op, "range contains a variant marker")
		}
	}

	fb, fe, fok := vl.markerAround(first)
	lb, _, lok := vl.markerAround(last)
	if fok != lok || (fok && fb != lb) {
		return nil, unsupportedCombine(op, "range straddles a variant marker")
	}

	var r *VariantReading
	if fok {
		r, _ = p.ownReading(v, vl.Event(fb).Marker(), dl, vl, fb, fe)
	} else {
		d1 := vl.Event(first).DefaultListPlace
		d2 := vl.Event(last).DefaultListPlace
		if d2-d1 != last-first {
			return nil, unsupportedCombine(op, "range is not contiguous in the default timeline")
		}
		mb, me, m := NewMarkerPair()
		r = NewVariantReading(v)
		r.setEvents(CloneEvents(dl.events[d1 : d2+1]))
		m.AddReading(r)
		dl.InsertEvent(d1, mb)
		dl.InsertEvent(d2+2, me)
		repl := append([]*Event{mb}, r.events...)
		vl.replaceRange(first, last+1, append(repl, me))
	}
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, Applied.String(), "version", v.ID, "section", snum, "voice", vnum, "first", first, "last", last)
	return r, nil
}

func unsupportedCombine(op, reason string) error {
	logging.Diagnostic(op, "combining readings is not implemented", "reason", reason)
	return errors.NewUnsupported("combine readings", reason)
}

// CreateSeparateReadingForVersion splits v out of its reading at m into a
// deep copy of its own. A reading already private to v is returned as is.
func (p *Piece) CreateSeparateReadingForVersion(v *VariantVersion, m *VariantMarker) *VariantReading {
	r := m.ReadingFor(v)
	if r == nil {
		logging.Diagnostic("create_separate_reading", "version follows the default segment", "version", v.ID)
		return nil
	}
	if r.NumVersions() == 1 {
		return r
	}
	sep := r.SeparateVersion(v)
	m.AddReading(sep)
	return sep
}

// CombineReadingWithNext merges the marked segment starting at begin with
// the next marked segment of the same list. Every version's reading of the
// merged segment is its reading (or the default) of the first segment, the
// events in between, then its reading (or the default) of the second.
func (p *Piece) CombineReadingWithNext(snum, vnum, begin int) EditResult {
	const op = "combine_reading_with_next"
	dl := p.voiceList(op, snum, vnum)
	if dl == nil {
		return NoAction
	}
	if e := dl.Event(begin); e == nil || e.Kind() != KindVariantBegin {
		logging.Diagnostic(op, "index is not a variant begin", "section", snum, "voice", vnum, "index", begin)
		return NoAction
	}
	end1 := dl.MatchingEnd(begin)
	begin2 := dl.NextEventOfType(KindVariantBegin, end1+1, 1)
	if end1 < 0 || begin2 < 0 {
		logging.Diagnostic(op, "no following variant in section", "section", snum, "voice", vnum, "index", begin)
		return NoAction
	}
	end2 := dl.MatchingEnd(begin2)
	if end2 < 0 {
		logging.Diagnostic(op, "variant begin has no end", "section", snum, "voice", vnum, "index", begin2)
		return NoAction
	}
	m1, m2 := dl.events[begin].Marker(), dl.events[begin2].Marker()
	def1 := dl.events[begin+1 : end1]
	between := dl.events[end1+1 : begin2]
	def2 := dl.events[begin2+1 : end2]

	var merged []*VariantReading
	for _, v := range markerVersions(p.versions, m1, m2) {
		r1, r2 := m1.ReadingFor(v), m2.ReadingFor(v)
		if r1 == nil && r2 == nil {
			continue
		}
		nr := &VariantReading{}
		nr.setEvents(slices.Concat(
			CloneEvents(readingOr(r1, def1)),
			CloneEvents(between),
			CloneEvents(readingOr(r2, def2)),
		))
		nr.Error = (r1 != nil && r1.Error) || (r2 != nil && r2.Error)
		if i := slices.IndexFunc(merged, nr.EqualReading); i >= 0 {
			merged[i].AddVersion(v)
			continue
		}
		nr.AddVersion(v)
		merged = append(merged, nr)
	}

	dl.events[end2].Body.(*VariantEnd).Marker = m1
	dl.DeleteEvent(begin2)
	dl.DeleteEvent(end1)
	m1.readings = merged
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, Applied.String(), "section", snum, "voice", vnum, "index", begin)
	return Applied
}

func readingOr(r *VariantReading, def []*Event) []*Event {
	if r == nil {
		return def
	}
	return r.events
}

// markerVersions returns the registered versions followed by any version
// found in the markers' readings but not registered.
func markerVersions(registered []*VariantVersion, markers ...*VariantMarker) []*VariantVersion {
	out := slices.Clone(registered)
	for _, m := range markers {
		for _, r := range m.readings {
			for _, v := range r.versions {
				if !slices.Contains(out, v) {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// findMarker locates the Begin sentinel of m in the default timeline.
func (p *Piece) findMarker(m *VariantMarker) (Location, bool) {
	for si, s := range p.sections {
		for vi, l := range s.voices {
			if l == nil {
				continue
			}
			if i := l.FindMarker(m); i >= 0 {
				return Location{Section: si, Voice: vi, Index: i}, true
			}
		}
	}
	return Location{}, false
}

// DeleteReading detaches r from m. The marker stays even when it is left
// without readings.
func (p *Piece) DeleteReading(m *VariantMarker, r *VariantReading) EditResult {
	const op = "delete_reading"
	loc, ok := p.findMarker(m)
	if !ok {
		logging.Diagnostic(op, "marker is not part of the piece")
		return NoAction
	}
	if !m.RemoveReading(r) {
		logging.Diagnostic(op, "reading is not attached to marker", "location", loc.String())
		return NoAction
	}
	p.recalcFrom(loc.Section, loc.Voice)
	logging.EditApplied(op, Applied.String(), "location", loc.String())
	return Applied
}

// DeleteVariantMarker removes the marker pair whose Begin is at index begin,
// dropping its readings and keeping the default segment.
func (p *Piece) DeleteVariantMarker(snum, vnum, begin int) EditResult {
	const op = "delete_variant_marker"
	dl := p.voiceList(op, snum, vnum)
	if dl == nil {
		return NoAction
	}
	if e := dl.Event(begin); e == nil || e.Kind() != KindVariantBegin {
		logging.Diagnostic(op, "index is not a variant begin", "section", snum, "voice", vnum, "index", begin)
		return NoAction
	}
	end := dl.MatchingEnd(begin)
	if end < 0 {
		logging.Diagnostic(op, "variant begin has no end", "section", snum, "voice", vnum, "index", begin)
		return NoAction
	}
	dl.DeleteEvent(end)
	dl.DeleteEvent(begin)
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, Applied.String(), "section", snum, "voice", vnum, "index", begin)
	return Applied
}

// DeleteVersion unregisters v and removes it from every reading. Readings
// left without versions are detached; markers left without readings remain
// until consolidation.
func (p *Piece) DeleteVersion(v *VariantVersion) error {
	i := slices.Index(p.versions, v)
	if i < 0 {
		return errors.NewNotFound("version", v.String())
	}
	p.versions = slices.Delete(p.versions, i, i+1)
	p.eachMarker(func(_ Location, _ *VoiceEventList, m *VariantMarker) {
		m.ReleaseVersion(v)
	})
	p.RecalcAllEventParams()
	return nil
}

// eachMarker calls fn for every Begin sentinel of the default timeline.
// fn must not change the structure of the list.
func (p *Piece) eachMarker(fn func(loc Location, l *VoiceEventList, m *VariantMarker)) {
	for si, s := range p.sections {
		for vi, l := range s.voices {
			if l == nil {
				continue
			}
			for i, e := range l.events {
				if b, ok := e.Body.(*VariantBegin); ok {
					fn(Location{Section: si, Voice: vi, Index: i}, l, b.Marker)
				}
			}
		}
	}
}
