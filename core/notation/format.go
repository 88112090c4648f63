package notation

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
)

// Write renders p in text notation. Parse(Write(p)) yields a piece with
// the same Digest.
func Write(w io.Writer, p *music.Piece) error {
	if _, err := io.WriteString(w, FormatPiece(p)); err != nil {
		return errors.NewIO("write", "", err)
	}
	return nil
}

// FormatPiece renders p in text notation. The apparatus is consolidated
// first, so p loses redundant readings and markers without readings.
func FormatPiece(p *music.Piece) string {
	if !p.Materialized() {
		p.ConsolidateAllReadings()
	}
	var sb strings.Builder
	writeHeader(&sb, p)
	for _, s := range p.Sections() {
		writeSection(&sb, s)
	}
	return sb.String()
}

// FormatEvent renders a single event on one line.
func FormatEvent(e *music.Event) string {
	var sb strings.Builder
	writeEvent(&sb, e)
	return sb.String()
}

func writeHeader(sb *strings.Builder, p *music.Piece) {
	meta := []struct{ key, val string }{
		{"piece", p.Meta.Title},
		{"composer", p.Meta.Composer},
		{"editor", p.Meta.Editor},
		{"notes", p.Meta.Notes},
	}
	for _, m := range meta {
		if m.val != "" {
			fmt.Fprintf(sb, "%s %s\n", m.key, strconv.Quote(m.val))
		}
	}
	for _, v := range p.Voices() {
		fmt.Fprintf(sb, "voice %s", strconv.Quote(v.Name))
		if v.Editorial {
			sb.WriteString(" editorial")
		}
		sb.WriteByte('\n')
	}
	for _, v := range p.Versions() {
		writeVersion(sb, v)
	}
}

func writeVersion(sb *strings.Builder, v *music.VariantVersion) {
	sb.WriteString("version " + v.ID)
	attrs := []struct{ key, val string }{
		{"source", v.SourceName},
		{"sourceid", v.SourceID},
		{"editor", v.Editor},
		{"desc", v.Description},
	}
	for _, a := range attrs {
		if a.val != "" {
			fmt.Fprintf(sb, " %s %s", a.key, strconv.Quote(a.val))
		}
	}
	if len(v.MissingVoices) > 0 {
		nums := make([]string, len(v.MissingVoices))
		for i, n := range v.MissingVoices {
			nums[i] = strconv.Itoa(n + 1)
		}
		sb.WriteString(" missing " + strings.Join(nums, ","))
	}
	if v.Default {
		sb.WriteString(" default")
	}
	sb.WriteByte('\n')
}

func writeSection(sb *strings.Builder, s *music.MusicSection) {
	sb.WriteString("section " + s.Type.String())
	if s.Type == music.SectionText {
		sb.WriteString(" " + strconv.Quote(s.Text))
	}
	if s.BaseColoration != music.DefaultColoration && !s.BaseColoration.IsZero() {
		fmt.Fprintf(sb, " base %s %s", s.BaseColoration.Color, s.BaseColoration.Fill)
	}
	for _, t := range s.Tacets {
		fmt.Fprintf(sb, " tacet %d", t.Voice+1)
		if t.Text != "" {
			sb.WriteString(" " + strconv.Quote(t.Text))
		}
	}
	sb.WriteByte('\n')
	for vnum, l := range s.VoiceLists() {
		if l == nil {
			continue
		}
		fmt.Fprintf(sb, "voice %d {\n", vnum+1)
		writeList(sb, l)
		sb.WriteString("}\n")
	}
}

func writeList(sb *strings.Builder, l *music.VoiceEventList) {
	for i := 0; i < l.Len(); i++ {
		e := l.Event(i)
		switch b := e.Body.(type) {
		case *music.SectionEnd:
			continue
		case *music.VariantBegin:
			end := l.MatchingEnd(i)
			if end < 0 {
				continue
			}
			sb.WriteString("  ")
			writeVariant(sb, b.Marker, l.Segment(i))
			sb.WriteByte('\n')
			i = end
			continue
		case *music.VariantEnd:
			continue
		}
		sb.WriteString("  ")
		writeEvent(sb, e)
		sb.WriteByte('\n')
	}
}

func writeVariant(sb *strings.Builder, m *music.VariantMarker, segment []*music.Event) {
	sb.WriteString("var { ")
	for i, rv := range music.MarkerReadings(m, segment) {
		if !rv.Default && len(rv.Versions) == 0 {
			// Detached readings have no owner to name.
			continue
		}
		if i > 0 {
			sb.WriteString(" ; ")
		}
		sb.WriteString(strings.Join(rv.VersionIDs(), ", "))
		if rv.Error {
			sb.WriteByte('!')
		}
		sb.WriteByte(':')
		for _, e := range rv.Events {
			sb.WriteByte(' ')
			writeEvent(sb, e)
		}
	}
	sb.WriteString(" }")
}

func writeEvent(sb *strings.Builder, e *music.Event) {
	if e.Editorial {
		sb.WriteString("ed ")
	}
	if e.Error {
		sb.WriteString("err ")
	}
	writeBody(sb, e.Body)
	if e.Commentary != "" {
		sb.WriteString(" comment " + strconv.Quote(e.Commentary))
	}
}

func writeBody(sb *strings.Builder, body music.Body) {
	switch b := body.(type) {
	case *music.Note:
		fmt.Fprintf(sb, "note %s %s", b.Type.Abbrev(), b.Pitch)
		switch {
		case b.Accidental < 0:
			sb.WriteString(" flat")
		case b.Accidental > 0:
			sb.WriteString(" sharp")
		}
		if b.Syllable != "" {
			sb.WriteString(" " + strconv.Quote(b.Syllable))
		}
	case *music.Rest:
		sb.WriteString("rest " + b.Type.Abbrev())
	case *music.Clef:
		fmt.Fprintf(sb, "clef %s%d", b.Type, b.Line)
		if b.Signature {
			sb.WriteString(" sig")
		}
	case *music.Mensuration:
		sb.WriteString("mens " + MensurationCode(b))
	case *music.ColorChange:
		fmt.Fprintf(sb, "color %s %s", b.Coloration.Color, b.Coloration.Fill)
	case *music.Dot:
		sb.WriteString("dot")
	case *music.Barline:
		sb.WriteString("bar")
		if b.Lines > 1 {
			fmt.Fprintf(sb, " %d", b.Lines)
		}
		if b.Repeat {
			sb.WriteString(" repeat")
		}
	case *music.Annotation:
		sb.WriteString("ann " + strconv.Quote(b.Text))
	case *music.OriginalText:
		sb.WriteString("text " + strconv.Quote(b.Text))
	case *music.Lacuna:
		sb.WriteString("lacuna " + b.Length.Reduce().String())
	case *music.ProportionChange:
		sb.WriteString("prop " + b.Value.String())
	case *music.Custos:
		sb.WriteString("custos " + b.Pitch.String())
	case *music.LineEnd:
		sb.WriteString("lineend")
		if b.PageEnd {
			sb.WriteString(" page")
		}
	case *music.MultiEvent:
		sb.WriteString("multi {")
		for _, e := range b.Events {
			sb.WriteByte(' ')
			writeEvent(sb, e)
		}
		sb.WriteString(" }")
	default:
		fmt.Fprintf(sb, "ann %s", strconv.Quote("unsupported "+body.Kind().String()))
	}
}

// MensurationCode is the inverse of ParseMensuration.
func MensurationCode(m *music.Mensuration) string {
	code := m.Sign.String()
	if m.Dot {
		code += "d"
	}
	if m.Stroke {
		code += "s"
	}
	if m.PerfectModus {
		code += "m"
	}
	if m.Number > 0 {
		code += strconv.Itoa(m.Number)
	}
	return code
}
