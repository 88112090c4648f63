package music

import (
	"fmt"
	"strconv"
	"strings"
)

// NoteType is a mensural note value.
type NoteType int

// Note values from longest to shortest.
const (
	Maxima NoteType = iota
	Longa
	Brevis
	Semibrevis
	Minima
	Semiminima
	Fusa
	Semifusa
)

var noteTypeNames = []string{"Maxima", "Longa", "Brevis", "Semibrevis", "Minima", "Semiminima", "Fusa", "Semifusa"}
var noteTypeAbbrevs = []string{"Mx", "L", "B", "SB", "M", "SM", "F", "SF"}

func (t NoteType) String() string {
	if t < Maxima || t > Semifusa {
		return fmt.Sprintf("notetype(%d)", int(t))
	}
	return noteTypeNames[t]
}

// Abbrev returns the short name used by the text notation.
func (t NoteType) Abbrev() string {
	if t < Maxima || t > Semifusa {
		return "?"
	}
	return noteTypeAbbrevs[t]
}

// ParseNoteType accepts either the full name or the abbreviation.
func ParseNoteType(s string) (NoteType, error) {
	for i := range noteTypeNames {
		if strings.EqualFold(s, noteTypeNames[i]) || s == noteTypeAbbrevs[i] {
			return NoteType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown note type %q", s)
}

// Pitch is a letter name and octave number (C4 is middle C).
type Pitch struct {
	Letter byte
	Octave int
}

func (p Pitch) String() string {
	return fmt.Sprintf("%c%d", p.Letter, p.Octave)
}

// ParsePitch parses strings such as "G3".
func ParsePitch(s string) (Pitch, error) {
	if len(s) < 2 {
		return Pitch{}, fmt.Errorf("invalid pitch %q", s)
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'g' {
		letter -= 'a' - 'A'
	}
	if letter < 'A' || letter > 'G' {
		return Pitch{}, fmt.Errorf("invalid pitch letter in %q", s)
	}
	oct, err := strconv.Atoi(s[1:])
	if err != nil {
		return Pitch{}, fmt.Errorf("invalid pitch octave in %q", s)
	}
	return Pitch{Letter: letter, Octave: oct}, nil
}

// Note is a pitched sounding event.
type Note struct {
	Type       NoteType
	Pitch      Pitch
	Accidental int // -1 flat, 1 sharp, 0 none
	Syllable   string
}

func (*Note) Kind() Kind { return KindNote }
func (n *Note) clone() Body {
	c := *n
	return &c
}
func (n *Note) key() string {
	k := n.musicKey()
	if n.Syllable != "" {
		k += fmt.Sprintf(" %q", n.Syllable)
	}
	return k
}
func (n *Note) musicKey() string {
	return fmt.Sprintf("note %s %s %d", n.Pitch, n.Type.Abbrev(), n.Accidental)
}

// Rest is a silent timed event.
type Rest struct {
	Type NoteType
}

func (*Rest) Kind() Kind { return KindRest }
func (r *Rest) clone() Body {
	c := *r
	return &c
}
func (r *Rest) key() string { return "rest " + r.Type.Abbrev() }

// ClefType names a clef shape; Bmol, Bqua and Diesis act as signatures.
type ClefType int

// Clef shapes.
const (
	ClefC ClefType = iota
	ClefF
	ClefG
	ClefFrnd
	ClefFsqr
	ClefBmol
	ClefBqua
	ClefDiesis
)

var clefTypeNames = []string{"C", "F", "G", "Frnd", "Fsqr", "Bmol", "Bqua", "Diesis"}

func (c ClefType) String() string {
	if c < ClefC || c > ClefDiesis {
		return fmt.Sprintf("clef(%d)", int(c))
	}
	return clefTypeNames[c]
}

// ParseClefType parses a clef shape name.
func ParseClefType(s string) (ClefType, error) {
	for i, n := range clefTypeNames {
		if strings.EqualFold(s, n) {
			return ClefType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown clef type %q", s)
}

// Clef is a principal clef or, with Signature set, a key-signature sign.
type Clef struct {
	Type      ClefType
	Line      int
	Signature bool
}

func (*Clef) Kind() Kind { return KindClef }
func (c *Clef) clone() Body {
	d := *c
	return &d
}
func (c *Clef) key() string {
	k := fmt.Sprintf("clef %s %d", c.Type, c.Line)
	if c.Signature {
		k += " sig"
	}
	return k
}

// IsSignature reports whether the clef only contributes to the key signature.
func (c *Clef) IsSignature() bool {
	return c.Signature || c.Type == ClefBmol || c.Type == ClefBqua || c.Type == ClefDiesis
}

// MensurationSign is the circle or semicircle of a mensuration sign.
type MensurationSign int

// Mensuration signs.
const (
	MensC MensurationSign = iota
	MensO
)

func (s MensurationSign) String() string {
	if s == MensO {
		return "O"
	}
	return "C"
}

// Mensuration is a mensuration sign. O means perfect tempus, a dot means
// major prolation.
type Mensuration struct {
	Sign   MensurationSign
	Dot    bool
	Stroke bool
	Number int
	// PerfectModus marks modus cum tempore signs.
	PerfectModus bool
}

func (*Mensuration) Kind() Kind { return KindMensuration }
func (m *Mensuration) clone() Body {
	c := *m
	return &c
}
func (m *Mensuration) key() string {
	return fmt.Sprintf("mens %s %t %t %d %t", m.Sign, m.Dot, m.Stroke, m.Number, m.PerfectModus)
}

// Modus returns 3 for perfect modus, else 2.
func (m *Mensuration) Modus() int {
	if m != nil && m.PerfectModus {
		return 3
	}
	return 2
}

// Tempus returns 3 for perfect tempus, else 2.
func (m *Mensuration) Tempus() int {
	if m != nil && m.Sign == MensO {
		return 3
	}
	return 2
}

// Prolatio returns 3 for major prolation, else 2.
func (m *Mensuration) Prolatio() int {
	if m != nil && m.Dot {
		return 3
	}
	return 2
}

// Coloration describes note color and fill.
type Coloration struct {
	Color string
	Fill  string
}

// DefaultColoration is black full notation.
var DefaultColoration = Coloration{Color: "Black", Fill: "Full"}

// IsZero reports whether the coloration is unset.
func (c Coloration) IsZero() bool { return c.Color == "" && c.Fill == "" }

func (c Coloration) String() string { return c.Color + "/" + c.Fill }

// ColorChange switches the coloration in effect.
type ColorChange struct {
	Coloration Coloration
}

func (*ColorChange) Kind() Kind { return KindColorChange }
func (c *ColorChange) clone() Body {
	d := *c
	return &d
}
func (c *ColorChange) key() string { return "color " + c.Coloration.String() }

// Dot is a dot of division or addition.
type Dot struct{}

func (*Dot) Kind() Kind  { return KindDot }
func (*Dot) clone() Body { return &Dot{} }
func (*Dot) key() string { return "dot" }

// Barline is a barline with a number of strokes.
type Barline struct {
	Lines  int
	Repeat bool
}

func (*Barline) Kind() Kind { return KindBarline }
func (b *Barline) clone() Body {
	c := *b
	return &c
}
func (b *Barline) key() string { return fmt.Sprintf("bar %d %t", b.Lines, b.Repeat) }

// Annotation is editorial text placed on the staff.
type Annotation struct {
	Text string
}

func (*Annotation) Kind() Kind { return KindAnnotation }
func (a *Annotation) clone() Body {
	c := *a
	return &c
}
func (a *Annotation) key() string { return fmt.Sprintf("ann %q", a.Text) }

// OriginalText is text underlay as found in the source.
type OriginalText struct {
	Text string
}

func (*OriginalText) Kind() Kind { return KindOriginalText }
func (t *OriginalText) clone() Body {
	c := *t
	return &c
}
func (t *OriginalText) key() string { return fmt.Sprintf("text %q", t.Text) }

// Lacuna is a gap in the source of known length.
type Lacuna struct {
	Length Proportion
}

func (*Lacuna) Kind() Kind { return KindLacuna }
func (l *Lacuna) clone() Body {
	c := *l
	return &c
}
func (l *Lacuna) key() string { return "lacuna " + l.Length.Reduce().String() }

// ProportionChange sets the proportion in effect; durations are divided by it.
type ProportionChange struct {
	Value Proportion
}

func (*ProportionChange) Kind() Kind { return KindProportion }
func (p *ProportionChange) clone() Body {
	c := *p
	return &c
}
func (p *ProportionChange) key() string { return "prop " + p.Value.Reduce().String() }

// Custos is a direct at the end of a staff line.
type Custos struct {
	Pitch Pitch
}

func (*Custos) Kind() Kind { return KindCustos }
func (c *Custos) clone() Body {
	d := *c
	return &d
}
func (c *Custos) key() string { return "custos " + c.Pitch.String() }

// LineEnd marks a staff or page break in the source.
type LineEnd struct {
	PageEnd bool
}

func (*LineEnd) Kind() Kind { return KindLineEnd }
func (l *LineEnd) clone() Body {
	c := *l
	return &c
}
func (l *LineEnd) key() string { return fmt.Sprintf("lineend %t", l.PageEnd) }

// MultiEvent groups simultaneous events; its duration is the longest member.
type MultiEvent struct {
	Events []*Event
}

func (*MultiEvent) Kind() Kind { return KindMultiEvent }
func (m *MultiEvent) clone() Body {
	return &MultiEvent{Events: CloneEvents(m.Events)}
}
func (m *MultiEvent) key() string {
	parts := make([]string, len(m.Events))
	for i, e := range m.Events {
		parts[i] = e.Key()
	}
	return "multi(" + strings.Join(parts, ", ") + ")"
}

// VariantBegin opens a marked segment.
type VariantBegin struct {
	Marker *VariantMarker
}

func (*VariantBegin) Kind() Kind    { return KindVariantBegin }
func (b *VariantBegin) clone() Body { return &VariantBegin{Marker: b.Marker} }
func (*VariantBegin) key() string   { return "vbegin" }

// VariantEnd closes a marked segment.
type VariantEnd struct {
	Marker *VariantMarker
}

func (*VariantEnd) Kind() Kind    { return KindVariantEnd }
func (b *VariantEnd) clone() Body { return &VariantEnd{Marker: b.Marker} }
func (*VariantEnd) key() string   { return "vend" }

// SectionEnd terminates every voice list.
type SectionEnd struct{}

func (*SectionEnd) Kind() Kind  { return KindSectionEnd }
func (*SectionEnd) clone() Body { return &SectionEnd{} }
func (*SectionEnd) key() string { return "end" }

// noteValue returns the duration in minims of a note value under m.
// Colored perfect values lose a third; a nil mensuration is all imperfect.
func noteValue(t NoteType, m *Mensuration, colored bool) Proportion {
	mo, tp, pr := m.Modus(), m.Tempus(), m.Prolatio()
	var v Proportion
	perfect := false
	switch t {
	case Maxima:
		v = Whole(2 * mo * tp * pr)
	case Longa:
		v = Whole(mo * tp * pr)
		perfect = mo == 3
	case Brevis:
		v = Whole(tp * pr)
		perfect = tp == 3
	case Semibrevis:
		v = Whole(pr)
		perfect = pr == 3
	case Minima:
		v = Whole(1)
	case Semiminima:
		v = NewProportion(1, 2)
	case Fusa:
		v = NewProportion(1, 4)
	case Semifusa:
		v = NewProportion(1, 8)
	}
	if colored && perfect {
		v = v.Mul(NewProportion(2, 3)).Reduce()
	}
	return v
}
