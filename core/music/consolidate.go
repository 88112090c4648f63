package music

import (
	"slices"

	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// consolidateMarker drops readings equal to the default segment, merges
// readings equal to each other and removes the marker pair once it has no
// readings left. Readings flagged as errors are kept even when their events
// match the default, since the flag is itself editorial content.
func consolidateMarker(l *VoiceEventList, begin int) (changed, removed bool) {
	m := l.events[begin].Marker()
	end := l.MatchingEnd(begin)
	if end < 0 {
		return false, false
	}
	def := l.events[begin+1 : end]

	for _, r := range slices.Clone(m.readings) {
		if !r.Error && EventsEqual(r.events, def) {
			m.RemoveReading(r)
			changed = true
		}
	}
	for i := 0; i < len(m.readings); i++ {
		for j := i + 1; j < len(m.readings); {
			if !m.readings[i].EqualReading(m.readings[j]) {
				j++
				continue
			}
			for _, v := range m.readings[j].versions {
				m.readings[i].AddVersion(v)
			}
			m.readings = slices.Delete(m.readings, j, j+1)
			changed = true
		}
	}
	if len(m.readings) == 0 {
		l.DeleteEvent(end)
		l.DeleteEvent(begin)
		return true, true
	}
	return changed, false
}

// ConsolidateReadings consolidates the marker whose Begin or End sentinel is
// at loc and reports whether anything changed.
func (p *Piece) ConsolidateReadings(loc Location) bool {
	const op = "consolidate_readings"
	l := p.voiceList(op, loc.Section, loc.Voice)
	if l == nil {
		return false
	}
	begin := loc.Index
	switch e := l.Event(begin); {
	case e == nil || !e.IsMarker():
		logging.Diagnostic(op, "no variant marker at location", "location", loc.String())
		return false
	case e.Kind() == KindVariantEnd:
		begin = l.MatchingBegin(begin)
	}
	if begin < 0 {
		return false
	}
	changed, removed := consolidateMarker(l, begin)
	if changed {
		p.recalcFrom(loc.Section, loc.Voice)
		logging.EditApplied(op, Applied.String(), "location", loc.String(), "marker_removed", removed)
	}
	return changed
}

// ConsolidateAllReadings consolidates every marker of the piece and returns
// the number of markers that changed. A second pass returns 0.
func (p *Piece) ConsolidateAllReadings() int {
	if p.Materialized() {
		logging.Diagnostic("consolidate_all_readings", "materialized view is read-only", "version", p.version.ID)
		return 0
	}
	n := 0
	for _, s := range p.sections {
		for _, l := range s.voices {
			if l == nil {
				continue
			}
			for i := 0; i < len(l.events); {
				if l.events[i].Kind() != KindVariantBegin {
					i++
					continue
				}
				changed, removed := consolidateMarker(l, i)
				if changed {
					n++
				}
				if !removed {
					i++
				}
			}
		}
	}
	if n > 0 {
		p.RecalcAllEventParams()
		logging.EditApplied("consolidate_all_readings", Applied.String(), "markers", n)
	}
	return n
}
