package notation

import (
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
)

// Format is the format name used in parse errors.
const Format = "mns"

// readAll is injectable for testing read failures.
var readAll = io.ReadAll

// Parse reads a piece in text notation. name is used in error messages.
func Parse(name string, r io.Reader) (*music.Piece, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return ParseString(name, string(data))
}

// ParseString parses a piece from a string.
func ParseString(name, src string) (*music.Piece, error) {
	f, err := fileParser.ParseString(name, src)
	if err != nil {
		return nil, parseError(name, err)
	}
	b := &builder{name: name}
	return b.build(f)
}

// ParseEvent parses a single event such as `note SB G3 "Ky"`. Variant
// blocks are rejected; they only exist inside a piece.
func ParseEvent(src string) (*music.Event, error) {
	ev, err := eventParser.ParseString("", src)
	if err != nil {
		return nil, parseError("", err)
	}
	if ev.Body.Variant != nil {
		return nil, errors.NewParse(Format, "", ev.Pos.Line, "variant block outside a piece")
	}
	b := &builder{}
	return b.event(ev)
}

func parseError(name string, err error) error {
	var perr participle.Error
	if stderrors.As(err, &perr) {
		pe := errors.NewParse(Format, name, perr.Position().Line, perr.Message())
		pe.Err = err
		return pe
	}
	pe := errors.NewParse(Format, name, 0, err.Error())
	pe.Err = err
	return pe
}

// builder turns the grammar tree into a piece.
type builder struct {
	name  string
	piece *music.Piece
}

func (b *builder) errorf(line int, format string, args ...any) error {
	return errors.NewParse(Format, b.name, line, fmt.Sprintf(format, args...))
}

func (b *builder) build(f *mnsFile) (*music.Piece, error) {
	var meta music.Meta
	for _, m := range f.Meta {
		switch {
		case m.Title != nil:
			meta.Title = *m.Title
		case m.Composer != nil:
			meta.Composer = *m.Composer
		case m.Editor != nil:
			meta.Editor = *m.Editor
		case m.Notes != nil:
			meta.Notes = *m.Notes
		}
	}
	p := music.NewPiece(meta)
	b.piece = p
	for _, v := range f.Voices {
		p.AddVoice(&music.Voice{Name: v.Name, Editorial: v.Editorial})
	}
	for _, v := range f.Versions {
		vv := &music.VariantVersion{ID: v.ID}
		for _, a := range v.Attrs {
			switch {
			case a.Source != nil:
				vv.SourceName = *a.Source
			case a.SourceID != nil:
				vv.SourceID = *a.SourceID
			case a.Editor != nil:
				vv.Editor = *a.Editor
			case a.Desc != nil:
				vv.Description = *a.Desc
			case a.Missing != nil:
				for _, n := range a.Missing {
					vv.MissingVoices = append(vv.MissingVoices, n-1)
				}
			case a.Default:
				vv.Default = true
			}
		}
		if err := p.AddVersion(vv); err != nil {
			return nil, b.errorf(v.Pos.Line, "%v", err)
		}
	}
	for _, s := range f.Sections {
		sec, err := b.section(s)
		if err != nil {
			return nil, err
		}
		p.AddSection(sec)
	}
	return p, nil
}

func (b *builder) section(s *mnsSection) (*music.MusicSection, error) {
	t, err := music.ParseSectionType(s.Type)
	if err != nil {
		return nil, b.errorf(s.Pos.Line, "%v", err)
	}
	sec := music.NewMusicSection(t, b.piece.NumVoices())
	if s.Text != nil {
		sec.Text = *s.Text
	}
	if s.Base != nil {
		sec.BaseColoration = music.Coloration{Color: s.Base.Color, Fill: s.Base.Fill}
	}
	for _, tc := range s.Tacets {
		sec.Tacets = append(sec.Tacets, music.Tacet{Voice: tc.Voice - 1, Text: tc.Text})
	}
	for _, vb := range s.Voices {
		if vb.Voice < 1 {
			return nil, b.errorf(vb.Pos.Line, "voice numbers start at 1, got %d", vb.Voice)
		}
		if vb.Voice > b.piece.NumVoices() {
			return nil, b.errorf(vb.Pos.Line, "voice %d is not declared", vb.Voice)
		}
		l, err := sec.EnsureVoice(vb.Voice - 1)
		if err != nil {
			return nil, b.errorf(vb.Pos.Line, "voice %d: %v", vb.Voice, err)
		}
		for _, ev := range vb.Events {
			if ev.Body.Variant != nil {
				if err := b.variant(l, ev); err != nil {
					return nil, err
				}
				continue
			}
			e, err := b.event(ev)
			if err != nil {
				return nil, err
			}
			l.AddEvent(e)
		}
	}
	return sec, nil
}

func (b *builder) variant(l *music.VoiceEventList, ev *mnsEvent) error {
	var (
		defaults []*music.Event
		readings []*music.VariantReading
	)
	for _, rd := range ev.Body.Variant.Readings {
		events, err := b.events(rd.Events)
		if err != nil {
			return err
		}
		if slices.Contains(rd.Versions, music.DefaultVersionID) {
			// Versions listed beside DEFAULT follow the default segment.
			defaults = events
			for _, id := range rd.Versions {
				if id != music.DefaultVersionID {
					b.piece.EnsureVersion(id)
				}
			}
			continue
		}
		r := music.NewVariantReading()
		r.Error = rd.Error
		for _, e := range events {
			r.AddEvent(e)
		}
		for _, id := range rd.Versions {
			r.AddVersion(b.piece.EnsureVersion(id))
		}
		readings = append(readings, r)
	}
	l.AddVariantBlock(defaults, readings)
	return nil
}

func (b *builder) events(evs []*mnsEvent) ([]*music.Event, error) {
	out := make([]*music.Event, 0, len(evs))
	for _, ev := range evs {
		e, err := b.event(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *builder) event(ev *mnsEvent) (*music.Event, error) {
	body, err := b.body(ev)
	if err != nil {
		return nil, err
	}
	e := music.NewEvent(body)
	e.Editorial = ev.Editorial
	e.Error = ev.Error
	if ev.Comment != nil {
		e.Commentary = *ev.Comment
	}
	return e, nil
}

func (b *builder) body(ev *mnsEvent) (music.Body, error) {
	line := ev.Pos.Line
	x := ev.Body
	switch {
	case x.Note != nil:
		t, err := music.ParseNoteType(x.Note.Type)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		p, err := music.ParsePitch(x.Note.Pitch)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		n := &music.Note{Type: t, Pitch: p}
		switch x.Note.Accidental {
		case "flat":
			n.Accidental = -1
		case "sharp":
			n.Accidental = 1
		}
		if x.Note.Syllable != nil {
			n.Syllable = *x.Note.Syllable
		}
		return n, nil
	case x.Rest != nil:
		t, err := music.ParseNoteType(*x.Rest)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		return &music.Rest{Type: t}, nil
	case x.Clef != nil:
		return b.clef(line, x.Clef)
	case x.Mens != nil:
		m, err := ParseMensuration(*x.Mens)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		return m, nil
	case x.Color != nil:
		return &music.ColorChange{Coloration: music.Coloration{Color: x.Color.Color, Fill: x.Color.Fill}}, nil
	case x.Dot:
		return &music.Dot{}, nil
	case x.Bar != nil:
		lines := x.Bar.Lines
		if lines == 0 {
			lines = 1
		}
		return &music.Barline{Lines: lines, Repeat: x.Bar.Repeat}, nil
	case x.Ann != nil:
		return &music.Annotation{Text: *x.Ann}, nil
	case x.Text != nil:
		return &music.OriginalText{Text: *x.Text}, nil
	case x.Lacuna != nil:
		p, err := music.ParseProportion(*x.Lacuna)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		return &music.Lacuna{Length: p}, nil
	case x.Prop != nil:
		p, err := music.ParseProportion(*x.Prop)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		return &music.ProportionChange{Value: p}, nil
	case x.Custos != nil:
		p, err := music.ParsePitch(*x.Custos)
		if err != nil {
			return nil, b.errorf(line, "%v", err)
		}
		return &music.Custos{Pitch: p}, nil
	case x.LineEnd != nil:
		return &music.LineEnd{PageEnd: x.LineEnd.Page}, nil
	case x.Multi != nil:
		m := &music.MultiEvent{}
		for _, sub := range x.Multi {
			if sub.Body.Variant != nil || sub.Body.Multi != nil {
				return nil, b.errorf(sub.Pos.Line, "multi-events hold simple events only")
			}
			e, err := b.event(sub)
			if err != nil {
				return nil, err
			}
			m.Events = append(m.Events, e)
		}
		return m, nil
	case x.Variant != nil:
		return nil, b.errorf(line, "nested variant block")
	}
	return nil, b.errorf(line, "empty event")
}

func (b *builder) clef(line int, c *mnsClef) (music.Body, error) {
	i := strings.IndexAny(c.Shape, "0123456789")
	if i <= 0 {
		return nil, b.errorf(line, "clef %q needs a shape and a staff line", c.Shape)
	}
	t, err := music.ParseClefType(c.Shape[:i])
	if err != nil {
		return nil, b.errorf(line, "%v", err)
	}
	n, err := strconv.Atoi(c.Shape[i:])
	if err != nil {
		return nil, b.errorf(line, "invalid clef line in %q", c.Shape)
	}
	return &music.Clef{Type: t, Line: n, Signature: c.Signature}, nil
}

// ParseMensuration parses a mensuration code: the sign O or C followed by
// optional flags d (dot), s (stroke), m (perfect modus) and a number.
func ParseMensuration(code string) (*music.Mensuration, error) {
	if code == "" {
		return nil, fmt.Errorf("empty mensuration")
	}
	m := &music.Mensuration{}
	switch code[0] {
	case 'O':
		m.Sign = music.MensO
	case 'C':
		m.Sign = music.MensC
	default:
		return nil, fmt.Errorf("unknown mensuration sign in %q", code)
	}
	rest := code[1:]
	for rest != "" && !isDigit(rest[0]) {
		switch rest[0] {
		case 'd':
			m.Dot = true
		case 's':
			m.Stroke = true
		case 'm':
			m.PerfectModus = true
		default:
			return nil, fmt.Errorf("unknown mensuration flag %q in %q", rest[0], code)
		}
		rest = rest[1:]
	}
	if rest != "" {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid mensuration number in %q", code)
		}
		m.Number = n
	}
	return m, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
