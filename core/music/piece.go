package music

import (
	"fmt"
	"slices"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// EditResult classifies the outcome of an edit operation.
type EditResult int

// Edit results. NoAction means the edit was refused and nothing changed.
const (
	NoAction EditResult = iota
	// Applied is returned by default-level edits.
	Applied
	// Middle means the edit went into the version's existing reading.
	Middle
	// NewReading means a reading was attached to an existing marker pair.
	NewReading
	// NewVariant means a new marker pair was created.
	NewVariant
)

func (r EditResult) String() string {
	switch r {
	case NoAction:
		return "noaction"
	case Applied:
		return "applied"
	case Middle:
		return "middle"
	case NewReading:
		return "newreading"
	case NewVariant:
		return "newvariant"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Meta holds descriptive information about the piece.
type Meta struct {
	Title    string
	Composer string
	Editor   string
	Notes    string
}

// Voice is the metadata of one voice part.
type Voice struct {
	Name      string
	Editorial bool
}

// Location addresses one event: section, voice and list index.
type Location struct {
	Section int `json:"section"`
	Voice   int `json:"voice"`
	Index   int `json:"index"`
}

func (l Location) String() string {
	return fmt.Sprintf("sections[%d].voices[%d].events[%d]", l.Section, l.Voice, l.Index)
}

// Piece is the top-level aggregate. The default piece is the canonical
// timeline; a materialized piece is a disposable per-version view built by
// ConstructMusicData.
type Piece struct {
	Meta Meta

	voices   []*Voice
	sections []*MusicSection
	versions []*VariantVersion

	// version is set on materialized views only.
	version *VariantVersion
}

// NewPiece creates an empty piece.
func NewPiece(meta Meta) *Piece {
	return &Piece{Meta: meta}
}

// Materialized reports whether p is a per-version view.
func (p *Piece) Materialized() bool { return p.version != nil }

// MaterializedVersion returns the version a view was built for.
func (p *Piece) MaterializedVersion() *VariantVersion { return p.version }

// AddVoice appends voice metadata and returns its 0-based number.
func (p *Piece) AddVoice(v *Voice) int {
	p.voices = append(p.voices, v)
	return len(p.voices) - 1
}

// Voices returns the voice metadata.
func (p *Piece) Voices() []*Voice { return slices.Clone(p.voices) }

// NumVoices returns the number of declared voices.
func (p *Piece) NumVoices() int { return len(p.voices) }

// AddVersion registers a variant version.
func (p *Piece) AddVersion(v *VariantVersion) error {
	if v == nil || v.ID == "" {
		return errors.NewValidation("versions", "version ID is required")
	}
	if v.ID == DefaultVersionID {
		return errors.NewValidation("versions", "DEFAULT is reserved")
	}
	if p.Version(v.ID) != nil {
		return errors.Wrapf(errors.ErrAlreadyExists, "version %s", v.ID)
	}
	p.versions = append(p.versions, v)
	return nil
}

// EnsureVersion returns the version with the given ID, synthesizing an
// implicit one for undeclared IDs found in legacy files.
func (p *Piece) EnsureVersion(id string) *VariantVersion {
	if v := p.Version(id); v != nil {
		return v
	}
	v := &VariantVersion{ID: id}
	p.versions = append(p.versions, v)
	return v
}

// Version returns the version with the given ID, or nil. DEFAULT is not a
// version and also yields nil.
func (p *Piece) Version(id string) *VariantVersion {
	for _, v := range p.versions {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// Versions returns the registered versions in declaration order.
func (p *Piece) Versions() []*VariantVersion { return slices.Clone(p.versions) }

// DefaultVersion returns the version flagged as default, if any.
func (p *Piece) DefaultVersion() *VariantVersion {
	for _, v := range p.versions {
		if v.Default {
			return v
		}
	}
	return nil
}

// NumSections returns the number of sections.
func (p *Piece) NumSections() int { return len(p.sections) }

// Section returns section snum, or nil.
func (p *Piece) Section(snum int) *MusicSection {
	if snum < 0 || snum >= len(p.sections) {
		return nil
	}
	return p.sections[snum]
}

// Sections returns the sections in order.
func (p *Piece) Sections() []*MusicSection { return slices.Clone(p.sections) }

// AddSection appends s and computes its parameters.
func (p *Piece) AddSection(s *MusicSection) {
	p.sections = append(p.sections, s)
	p.recalcSection(len(p.sections) - 1)
}

// InsertSection inserts s at index snum and recalculates the score from there.
func (p *Piece) InsertSection(snum int, s *MusicSection) EditResult {
	if snum < 0 || snum > len(p.sections) {
		logging.Diagnostic("insert_section", "section index out of range", "section", snum)
		return NoAction
	}
	p.sections = slices.Insert(p.sections, snum, s)
	p.RecalcAllEventParams()
	return Applied
}

// DeleteSection removes section snum and recalculates the whole score.
func (p *Piece) DeleteSection(snum int) EditResult {
	if p.Section(snum) == nil {
		logging.Diagnostic("delete_section", "section index out of range", "section", snum)
		return NoAction
	}
	p.sections = slices.Delete(p.sections, snum, snum+1)
	p.RecalcAllEventParams()
	return Applied
}

// VoiceList returns the event list of voice vnum in section snum, or nil.
func (p *Piece) VoiceList(snum, vnum int) *VoiceEventList {
	s := p.Section(snum)
	if s == nil {
		return nil
	}
	return s.Voice(vnum)
}

// voiceList is VoiceList with a diagnostic for the failure cases.
func (p *Piece) voiceList(op string, snum, vnum int) *VoiceEventList {
	s := p.Section(snum)
	switch {
	case p.Materialized():
		logging.Diagnostic(op, "materialized view is read-only", "version", p.version.ID)
		return nil
	case s == nil:
		logging.Diagnostic(op, "section index out of range", "section", snum)
		return nil
	case s.Type == SectionText:
		logging.Diagnostic(op, "text section has no voices", "section", snum)
		return nil
	}
	l := s.Voice(vnum)
	if l == nil {
		logging.Diagnostic(op, "voice has no data in section", "section", snum, "voice", vnum)
	}
	return l
}

// GetEvent returns the event at loc, or nil.
func (p *Piece) GetEvent(loc Location) *Event {
	l := p.VoiceList(loc.Section, loc.Voice)
	if l == nil {
		return nil
	}
	return l.Event(loc.Index)
}

// FindEvent locates e by identity. Events inside variant readings are not
// part of any list and are not found.
func (p *Piece) FindEvent(e *Event) (Location, bool) {
	for si, s := range p.sections {
		for vi, l := range s.voices {
			if l == nil {
				continue
			}
			if i := slices.Index(l.events, e); i >= 0 {
				return Location{Section: si, Voice: vi, Index: i}, true
			}
		}
	}
	return Location{}, false
}

// previousVoiceList returns the nearest list of voice vnum before section
// snum, used to seed parameter propagation.
func (p *Piece) previousVoiceList(snum, vnum int) *VoiceEventList {
	for s := snum - 1; s >= 0; s-- {
		if l := p.sections[s].Voice(vnum); l != nil {
			return l
		}
	}
	return nil
}

// recalcFrom re-propagates parameters of voice vnum from section snum to the
// end of the piece.
func (p *Piece) recalcFrom(snum, vnum int) {
	if p.Materialized() {
		return
	}
	seed := p.previousVoiceList(snum, vnum)
	for s := snum; s < len(p.sections); s++ {
		l := p.sections[s].Voice(vnum)
		if l == nil {
			continue
		}
		l.RecalcEventParams(seed)
		seed = l
	}
}

func (p *Piece) recalcSection(snum int) {
	s := p.sections[snum]
	for vnum := range s.voices {
		if l := s.voices[vnum]; l != nil {
			l.RecalcEventParams(p.previousVoiceList(snum, vnum))
		}
	}
}

// RecalcAllEventParams recomputes parameters for every voice of the piece.
func (p *Piece) RecalcAllEventParams() {
	if p.Materialized() {
		return
	}
	for vnum := 0; vnum < p.maxVoices(); vnum++ {
		p.recalcFrom(0, vnum)
	}
}

func (p *Piece) maxVoices() int {
	n := len(p.voices)
	for _, s := range p.sections {
		n = max(n, len(s.voices))
	}
	return n
}

// AddEvent inserts e into the default timeline at index i and re-propagates
// parameters through every later section of the voice.
func (p *Piece) AddEvent(snum, vnum, i int, e *Event) EditResult {
	const op = "add_event"
	l := p.voiceList(op, snum, vnum)
	if l == nil {
		return NoAction
	}
	if e == nil || e.IsMarker() || e.Kind() == KindSectionEnd {
		logging.Diagnostic(op, "sentinel events cannot be inserted directly", "section", snum, "voice", vnum)
		return NoAction
	}
	if i < 0 || i > l.Len()-1 {
		logging.Diagnostic(op, "index out of range", "section", snum, "voice", vnum, "index", i)
		return NoAction
	}
	l.InsertEvent(i, e)
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, Applied.String(), "section", snum, "voice", vnum, "index", i)
	return Applied
}

// DeleteEvent removes the event at index i from the default timeline and
// returns it. Sentinels cannot be deleted this way.
func (p *Piece) DeleteEvent(snum, vnum, i int) (*Event, EditResult) {
	const op = "delete_event"
	l := p.voiceList(op, snum, vnum)
	if l == nil {
		return nil, NoAction
	}
	e := l.Event(i)
	switch {
	case e == nil:
		logging.Diagnostic(op, "index out of range", "section", snum, "voice", vnum, "index", i)
		return nil, NoAction
	case e.IsMarker():
		logging.Diagnostic(op, "variant markers cannot be deleted directly", "section", snum, "voice", vnum, "index", i)
		return nil, NoAction
	case e.Kind() == KindSectionEnd:
		logging.Diagnostic(op, "section end cannot be deleted", "section", snum, "voice", vnum)
		return nil, NoAction
	}
	removed := l.DeleteEvent(i)
	p.recalcFrom(snum, vnum)
	logging.EditApplied(op, Applied.String(), "section", snum, "voice", vnum, "index", i)
	return removed, Applied
}
