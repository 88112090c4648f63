package music

import (
	"slices"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// SetVersionAsDefault makes v's readings the default timeline. At every
// marker where v has a reading, the old default segment becomes a reading of
// the versions that followed it and v's reading takes its place.
func (p *Piece) SetVersionAsDefault(v *VariantVersion) error {
	if err := p.checkSwap(v); err != nil {
		return err
	}
	n := p.swapDefault(v, func(*VariantReading, []*Event) bool { return true })
	for _, x := range p.versions {
		x.Default = x == v
	}
	p.RecalcAllEventParams()
	logging.EditApplied("set_version_as_default", Applied.String(), "version", v.ID, "markers", n)
	return nil
}

// SetVersionTextAsDefault swaps in v's readings only where they differ from
// the default in text alone, leaving musical variants in place.
func (p *Piece) SetVersionTextAsDefault(v *VariantVersion) error {
	if err := p.checkSwap(v); err != nil {
		return err
	}
	n := p.swapDefault(v, func(r *VariantReading, def []*Event) bool {
		t := r.CalcVariantTypes(def)
		return t&VariantTextual != 0 && t&VariantMusical == 0
	})
	p.RecalcAllEventParams()
	logging.EditApplied("set_version_text_as_default", Applied.String(), "version", v.ID, "markers", n)
	return nil
}

func (p *Piece) checkSwap(v *VariantVersion) error {
	if p.Materialized() {
		return errors.NewUnsupported("default swap", "materialized view is read-only")
	}
	if v == nil || !slices.Contains(p.versions, v) {
		return errors.NewNotFound("version", v.String())
	}
	return nil
}

// swapDefault exchanges the default segment with v's reading at every marker
// accepted by want and returns the number of markers changed.
func (p *Piece) swapDefault(v *VariantVersion, want func(r *VariantReading, def []*Event) bool) int {
	n := 0
	for si, s := range p.sections {
		for vi, l := range s.voices {
			if l == nil {
				continue
			}
			for i := 0; i < len(l.events); i++ {
				if l.events[i].Kind() != KindVariantBegin {
					continue
				}
				m := l.events[i].Marker()
				end := l.MatchingEnd(i)
				r := m.ReadingFor(v)
				if end < 0 || r == nil || !want(r, l.events[i+1:end]) {
					continue
				}
				def := slices.Clone(l.events[i+1 : end])
				if followers := m.DefaultVersions(markerVersions(p.versions, m)); len(followers) > 0 {
					old := NewVariantReading(followers...)
					old.setEvents(def)
					m.AddReading(old)
				}
				m.RemoveReading(r)
				events := slices.Clone(r.events)
				if r.Error {
					// The default segment has no reading flag; the
					// promoted events carry it instead.
					for _, e := range events {
						e.Error = true
					}
					logging.Diagnostic("set_default", "error reading promoted to the default",
						"version", v.ID, "location", Location{Section: si, Voice: vi, Index: i}.String(), "events", len(events))
				}
				l.replaceRange(i+1, end, events)
				n++
			}
		}
	}
	return n
}
