package music

// ReadingView is one entry of the serializer contract for a marker. The
// first entry of MarkerReadings is the default segment, with Default set and
// no versions.
type ReadingView struct {
	Default  bool
	Versions []*VariantVersion
	Error    bool
	Events   []*Event
}

// VersionIDs returns the IDs of the versions sharing the reading, or
// DEFAULT for the default segment.
func (rv ReadingView) VersionIDs() []string {
	if rv.Default {
		return []string{DefaultVersionID}
	}
	return versionIDs(rv.Versions)
}

// MarkerView describes one marker of the default timeline.
type MarkerView struct {
	Location Location
	Marker   *VariantMarker
	Readings []ReadingView
}

// MarkerReadings returns the default segment followed by every reading of m.
func MarkerReadings(m *VariantMarker, defaultEvents []*Event) []ReadingView {
	out := make([]ReadingView, 0, len(m.readings)+1)
	out = append(out, ReadingView{Default: true, Events: defaultEvents})
	for _, r := range m.readings {
		out = append(out, ReadingView{
			Versions: r.Versions(),
			Error:    r.Error,
			Events:   r.Events(),
		})
	}
	return out
}

// MarkerView returns the marker whose Begin sentinel is at loc.
func (p *Piece) MarkerView(loc Location) (MarkerView, bool) {
	l := p.VoiceList(loc.Section, loc.Voice)
	if l == nil {
		return MarkerView{}, false
	}
	e := l.Event(loc.Index)
	if e == nil || e.Kind() != KindVariantBegin {
		return MarkerView{}, false
	}
	return MarkerView{
		Location: loc,
		Marker:   e.Marker(),
		Readings: MarkerReadings(e.Marker(), l.Segment(loc.Index)),
	}, true
}

// Markers enumerates every marker of the default timeline in section,
// voice, position order.
func (p *Piece) Markers() []MarkerView {
	var out []MarkerView
	p.eachMarker(func(loc Location, l *VoiceEventList, m *VariantMarker) {
		out = append(out, MarkerView{
			Location: loc,
			Marker:   m,
			Readings: MarkerReadings(m, l.Segment(loc.Index)),
		})
	})
	return out
}

// Readings enumerates every attached reading of the piece.
func (p *Piece) Readings() []*VariantReading {
	var out []*VariantReading
	p.eachMarker(func(_ Location, _ *VoiceEventList, m *VariantMarker) {
		out = append(out, m.readings...)
	})
	return out
}
