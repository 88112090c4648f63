package music

import "slices"

// VariantMarker is the state shared by a Begin/End sentinel pair: the
// readings active for the bracketed default segment and the segment's
// cached length. Both sentinels point at the same marker, so the length is
// never copied between them.
type VariantMarker struct {
	readings      []*VariantReading
	defaultLength Proportion
	types         VariantType
}

// NewMarkerPair creates a marker and its Begin and End sentinels.
func NewMarkerPair() (begin, end *Event, m *VariantMarker) {
	m = &VariantMarker{}
	return NewEvent(&VariantBegin{Marker: m}), NewEvent(&VariantEnd{Marker: m}), m
}

// Readings returns the attached readings in order.
func (m *VariantMarker) Readings() []*VariantReading {
	return slices.Clone(m.readings)
}

// NumReadings returns the number of attached readings.
func (m *VariantMarker) NumReadings() int {
	return len(m.readings)
}

// AddReading attaches r. Versions of r are removed from sibling readings so
// that every version keeps at most one reading; siblings left without
// versions are detached.
func (m *VariantMarker) AddReading(r *VariantReading) {
	for _, v := range r.versions {
		m.releaseVersion(v, r)
	}
	if !slices.Contains(m.readings, r) {
		m.readings = append(m.readings, r)
	}
}

// RemoveReading detaches r and reports whether it was attached.
func (m *VariantMarker) RemoveReading(r *VariantReading) bool {
	i := slices.Index(m.readings, r)
	if i < 0 {
		return false
	}
	m.readings = slices.Delete(m.readings, i, i+1)
	return true
}

// AssignVersion moves v into r, which must be attached to m.
func (m *VariantMarker) AssignVersion(r *VariantReading, v *VariantVersion) {
	m.releaseVersion(v, r)
	r.AddVersion(v)
}

// ReleaseVersion makes v follow the default segment at this marker. A
// reading left without versions is detached and returned.
func (m *VariantMarker) ReleaseVersion(v *VariantVersion) *VariantReading {
	return m.releaseVersion(v, nil)
}

func (m *VariantMarker) releaseVersion(v *VariantVersion, keep *VariantReading) *VariantReading {
	var orphan *VariantReading
	for _, r := range slices.Clone(m.readings) {
		if r == keep || !r.HasVersion(v) {
			continue
		}
		if r.DeleteVersion(v) == 0 {
			m.RemoveReading(r)
			orphan = r
		}
	}
	return orphan
}

// ReadingFor returns v's reading, or nil when v follows the default segment.
func (m *VariantMarker) ReadingFor(v *VariantVersion) *VariantReading {
	for _, r := range m.readings {
		if r.HasVersion(v) {
			return r
		}
	}
	return nil
}

// DefaultVersions returns the versions in all that have no explicit reading.
func (m *VariantMarker) DefaultVersions(all []*VariantVersion) []*VariantVersion {
	var out []*VariantVersion
	for _, v := range all {
		if m.ReadingFor(v) == nil {
			out = append(out, v)
		}
	}
	return out
}

// DefaultLength returns the cached musical length of the default segment.
func (m *VariantMarker) DefaultLength() Proportion {
	return m.defaultLength
}

func (m *VariantMarker) setDefaultLength(p Proportion) {
	m.defaultLength = p.Reduce()
}

// Types returns the classification computed by the last CalcVariantTypes.
func (m *VariantMarker) Types() VariantType {
	return m.types
}

// CalcVariantTypes recomputes every reading's classification against the
// default segment and combines them. Markers without substantive difference
// are flagged non-substantive.
func (m *VariantMarker) CalcVariantTypes(defaultEvents []*Event) VariantType {
	t := VariantNone
	for _, r := range m.readings {
		t |= r.CalcVariantTypes(defaultEvents)
	}
	if !t.Substantive() {
		t |= VariantNonSubstantive
	}
	m.types = t
	return t
}
