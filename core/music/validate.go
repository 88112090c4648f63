package music

import (
	"fmt"
	"slices"

	"github.com/FocuswithJustin/Mensura/core/errors"
)

// Validate checks the structural invariants of the piece and returns every
// violation found: SectionEnd termination, marker pairing, the version
// partition at each marker, cached default lengths and list places.
func (p *Piece) Validate() []error {
	var errs []error
	for vi, v := range p.versions {
		if v.ID == "" {
			errs = append(errs, errors.NewValidation(fmt.Sprintf("versions[%d]", vi), "ID is required"))
		}
		if slices.IndexFunc(p.versions[:vi], func(o *VariantVersion) bool { return o.ID == v.ID }) >= 0 {
			errs = append(errs, errors.NewValidation(fmt.Sprintf("versions[%d]", vi), fmt.Sprintf("duplicate ID %q", v.ID)))
		}
	}
	for si, s := range p.sections {
		for vnum, l := range s.voices {
			if l == nil {
				continue
			}
			path := fmt.Sprintf("sections[%d].voices[%d]", si, vnum)
			errs = append(errs, validateList(path, l)...)
		}
	}
	return errs
}

func validateList(path string, l *VoiceEventList) []error {
	var errs []error
	n := len(l.events)
	if n == 0 || l.events[n-1].Kind() != KindSectionEnd {
		errs = append(errs, errors.NewValidation(path, "list does not end with a section end"))
	}

	open := -1
	for i, e := range l.events {
		ep := fmt.Sprintf("%s.events[%d]", path, i)
		if !l.materialized && e.DefaultListPlace != i {
			errs = append(errs, errors.NewValidation(ep, fmt.Sprintf("default list place is %d", e.DefaultListPlace)))
		}
		switch b := e.Body.(type) {
		case *SectionEnd:
			if i != n-1 {
				errs = append(errs, errors.NewValidation(ep, "section end before end of list"))
			}
		case *VariantBegin:
			if open >= 0 {
				errs = append(errs, errors.NewValidation(ep, "variant begin inside another marked segment"))
			}
			open = i
			errs = append(errs, validateMarker(ep, b.Marker)...)
		case *VariantEnd:
			if open < 0 || l.events[open].Marker() != b.Marker {
				errs = append(errs, errors.NewValidation(ep, "variant end without matching begin"))
				open = -1
				continue
			}
			if !l.materialized {
				want := SumMusicTime(l.events[open+1 : i])
				if !b.Marker.DefaultLength().Equal(want) {
					errs = append(errs, errors.NewValidation(ep,
						fmt.Sprintf("cached default length %s, segment length %s", b.Marker.DefaultLength(), want)))
				}
			}
			open = -1
		}
	}
	if open >= 0 {
		errs = append(errs, errors.NewValidation(fmt.Sprintf("%s.events[%d]", path, open), "variant begin without end"))
	}
	return errs
}

func validateMarker(path string, m *VariantMarker) []error {
	var errs []error
	seen := make(map[*VariantVersion]int)
	for ri, r := range m.readings {
		rp := fmt.Sprintf("%s.readings[%d]", path, ri)
		if len(r.versions) == 0 {
			errs = append(errs, errors.NewValidation(rp, "attached reading has no versions"))
		}
		for _, v := range r.versions {
			if prev, ok := seen[v]; ok {
				errs = append(errs, errors.NewValidation(rp,
					fmt.Sprintf("version %s also in reading %d", v.ID, prev)))
				continue
			}
			seen[v] = ri
		}
		for ei, e := range r.events {
			if e.DefaultListPlace != -1 {
				errs = append(errs, errors.NewValidation(fmt.Sprintf("%s.events[%d]", rp, ei), "reading event has a default list place"))
			}
			if e.IsMarker() || e.Kind() == KindSectionEnd {
				errs = append(errs, errors.NewValidation(fmt.Sprintf("%s.events[%d]", rp, ei), "sentinel inside reading"))
			}
		}
	}
	return errs
}
