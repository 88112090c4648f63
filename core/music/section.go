package music

import (
	"fmt"
	"slices"
)

// SectionType is the kind of a music section.
type SectionType int

// Section types.
const (
	SectionMensural SectionType = iota
	SectionPlainchant
	SectionText
)

func (t SectionType) String() string {
	switch t {
	case SectionMensural:
		return "mensural"
	case SectionPlainchant:
		return "plainchant"
	case SectionText:
		return "text"
	}
	return fmt.Sprintf("section(%d)", int(t))
}

// ParseSectionType parses "mensural", "plainchant" or "text".
func ParseSectionType(s string) (SectionType, error) {
	for _, t := range []SectionType{SectionMensural, SectionPlainchant, SectionText} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown section type %q", s)
}

// Tacet is an instruction that a voice is silent for a section.
type Tacet struct {
	Voice int
	Text  string
}

// MusicSection is a contiguous structural unit of the piece.
type MusicSection struct {
	Type           SectionType
	Tacets         []Tacet
	BaseColoration Coloration

	// Text holds the content of text sections.
	Text string

	voices []*VoiceEventList
}

// NewMusicSection creates a section with room for numVoices voices.
func NewMusicSection(t SectionType, numVoices int) *MusicSection {
	s := &MusicSection{Type: t, BaseColoration: DefaultColoration}
	if t != SectionText {
		s.voices = make([]*VoiceEventList, numVoices)
	}
	return s
}

// NumVoices returns the number of voice slots.
func (s *MusicSection) NumVoices() int {
	return len(s.voices)
}

// Voice returns the list for voice vnum, or nil when the voice is absent.
func (s *MusicSection) Voice(vnum int) *VoiceEventList {
	if vnum < 0 || vnum >= len(s.voices) {
		return nil
	}
	return s.voices[vnum]
}

// SetVoice attaches l as voice vnum, growing the slot array as needed.
// Text sections carry no voices.
func (s *MusicSection) SetVoice(vnum int, l *VoiceEventList) error {
	if s.Type == SectionText {
		return fmt.Errorf("text section has no voices")
	}
	if vnum < 0 {
		return fmt.Errorf("invalid voice number %d", vnum)
	}
	for len(s.voices) <= vnum {
		s.voices = append(s.voices, nil)
	}
	if l != nil {
		l.voice = vnum
		l.section = s
		l.chant = s.Type == SectionPlainchant
	}
	s.voices[vnum] = l
	return nil
}

// EnsureVoice returns voice vnum, creating an empty list when absent.
func (s *MusicSection) EnsureVoice(vnum int) (*VoiceEventList, error) {
	if l := s.Voice(vnum); l != nil {
		return l, nil
	}
	l := NewVoiceEventList(vnum)
	if err := s.SetVoice(vnum, l); err != nil {
		return nil, err
	}
	l.state = l.initialState(nil)
	return l, nil
}

// VoiceLists returns the voice slots; absent voices are nil.
func (s *MusicSection) VoiceLists() []*VoiceEventList {
	return slices.Clone(s.voices)
}

// IsTacet reports whether a tacet instruction names voice vnum.
func (s *MusicSection) IsTacet(vnum int) bool {
	return slices.ContainsFunc(s.Tacets, func(t Tacet) bool { return t.Voice == vnum })
}
