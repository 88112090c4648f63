// Package cmme reads and writes the subset of CMME XML that carries the
// variant model: general data with variant versions, voices, mensural,
// plainchant and text sections, event lists and variant readings.
//
// A document looks like:
//
//	<Piece CMMEversion="0.98">
//	  <GeneralData>
//	    <Title>Kyrie</Title>
//	    <VariantVersion><ID>A</ID><SourceName>Vat35</SourceName></VariantVersion>
//	  </GeneralData>
//	  <Voices><Voice><Name>Cantus</Name></Voice></Voices>
//	  <MusicSection>
//	    <MensuralMusic>
//	      <Voice><VoiceNum>1</VoiceNum><EventList>
//	        <Note><Type>Semibrevis</Type><LetterName>G</LetterName><OctaveNum>3</OctaveNum></Note>
//	        <VariantReadings>
//	          <Reading><VariantVersionID>DEFAULT</VariantVersionID><Music>...</Music></Reading>
//	          <Reading><VariantVersionID>A</VariantVersionID><Error/><Music>...</Music></Reading>
//	        </VariantReadings>
//	      </EventList></Voice>
//	    </MensuralMusic>
//	  </MusicSection>
//	</Piece>
//
// Voice numbers are 1-based in the document.
package cmme

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
)

// Format is the format name used in parse errors.
const Format = "CMME"

var (
	exprRoot     = xpath.MustCompile("/Piece")
	exprVersions = xpath.MustCompile("GeneralData/VariantVersion")
	exprVoices   = xpath.MustCompile("Voices/Voice")
	exprSections = xpath.MustCompile("MusicSection")
	exprTacets   = xpath.MustCompile("Tacet")
	exprVoice    = xpath.MustCompile("Voice")
	exprIDs      = xpath.MustCompile("VariantVersionID")
	exprReadings = xpath.MustCompile("Reading")
	exprCount    = xpath.MustCompile("count(//EventList/*[not(self::VariantReadings)]) + count(//Music/*) + " +
		"count(//MultiEvent/*[not(self::Editorial or self::Error or self::Commentary)])")
)

// Read parses a CMME document. name is used in error messages.
func Read(name string, r io.Reader) (*music.Piece, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &errors.ParseError{Format: Format, Path: name, Message: err.Error(), Err: err}
	}
	root := xmlquery.QuerySelector(doc, exprRoot)
	if root == nil {
		return nil, errors.NewParse(Format, name, 0, "missing Piece element")
	}
	rd := &reader{name: name}
	return rd.build(root)
}

// ReadBytes parses a CMME document held in memory.
func ReadBytes(name string, data []byte) (*music.Piece, error) {
	return Read(name, strings.NewReader(string(data)))
}

// CountEvents returns the number of events in a CMME document, counting
// reading and multi-event members, without building a piece.
func CountEvents(r io.Reader) (int, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return 0, &errors.ParseError{Format: Format, Message: err.Error(), Err: err}
	}
	v := exprCount.Evaluate(xmlquery.CreateXPathNavigator(doc))
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("count returned %T", v)
	}
	return int(n), nil
}

type reader struct {
	name  string
	piece *music.Piece
}

func (rd *reader) errorf(format string, args ...any) error {
	return errors.NewParse(Format, rd.name, 0, fmt.Sprintf(format, args...))
}

// childText returns the trimmed text of the first child element named
// name, or "".
func childText(n *xmlquery.Node, name string) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return strings.TrimSpace(c.InnerText())
		}
	}
	return ""
}

func hasChild(n *xmlquery.Node, name string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return true
		}
	}
	return false
}

func childElements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func firstChild(n *xmlquery.Node, name string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

func (rd *reader) intText(n *xmlquery.Node, name string, def int) (int, error) {
	s := childText(n, name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, rd.errorf("%s: invalid %s %q", n.Data, name, s)
	}
	return v, nil
}

func (rd *reader) build(root *xmlquery.Node) (*music.Piece, error) {
	var meta music.Meta
	if gd := firstChild(root, "GeneralData"); gd != nil {
		meta = music.Meta{
			Title:    childText(gd, "Title"),
			Composer: childText(gd, "Composer"),
			Editor:   childText(gd, "Editor"),
			Notes:    childText(gd, "Notes"),
		}
	}
	p := music.NewPiece(meta)
	rd.piece = p

	for _, vn := range xmlquery.QuerySelectorAll(root, exprVersions) {
		v := &music.VariantVersion{
			ID:          childText(vn, "ID"),
			SourceName:  childText(vn, "SourceName"),
			SourceID:    childText(vn, "SourceID"),
			Editor:      childText(vn, "Editor"),
			Description: childText(vn, "Description"),
			Default:     hasChild(vn, "Default"),
		}
		for _, f := range strings.Fields(childText(vn, "MissingVoices")) {
			n, err := strconv.Atoi(f)
			if err != nil || n < 1 {
				return nil, rd.errorf("version %s: invalid missing voice %q", v.ID, f)
			}
			v.MissingVoices = append(v.MissingVoices, n-1)
		}
		if err := p.AddVersion(v); err != nil {
			return nil, rd.errorf("%v", err)
		}
	}

	for _, vn := range xmlquery.QuerySelectorAll(root, exprVoices) {
		p.AddVoice(&music.Voice{Name: childText(vn, "Name"), Editorial: hasChild(vn, "Editorial")})
	}

	for i, sn := range xmlquery.QuerySelectorAll(root, exprSections) {
		s, err := rd.section(sn)
		if err != nil {
			return nil, errors.Wrapf(err, "section %d", i+1)
		}
		p.AddSection(s)
	}
	return p, nil
}

func (rd *reader) section(sn *xmlquery.Node) (*music.MusicSection, error) {
	kids := childElements(sn)
	if len(kids) != 1 {
		return nil, rd.errorf("MusicSection must hold exactly one section element")
	}
	body := kids[0]
	var t music.SectionType
	switch body.Data {
	case "MensuralMusic":
		t = music.SectionMensural
	case "Plainchant":
		t = music.SectionPlainchant
	case "TextSection":
		s := music.NewMusicSection(music.SectionText, 0)
		s.Text = childText(body, "Text")
		return s, nil
	default:
		return nil, rd.errorf("unknown section type %s", body.Data)
	}

	s := music.NewMusicSection(t, rd.piece.NumVoices())
	if bc := firstChild(body, "BaseColoration"); bc != nil {
		s.BaseColoration = music.Coloration{Color: childText(bc, "PrimaryColor"), Fill: childText(bc, "PrimaryFill")}
	}
	for _, tn := range xmlquery.QuerySelectorAll(body, exprTacets) {
		vnum, err := rd.intText(tn, "VoiceNum", 0)
		if err != nil {
			return nil, err
		}
		s.Tacets = append(s.Tacets, music.Tacet{Voice: vnum - 1, Text: childText(tn, "Text")})
	}
	for _, vn := range xmlquery.QuerySelectorAll(body, exprVoice) {
		vnum, err := rd.intText(vn, "VoiceNum", 0)
		if err != nil {
			return nil, err
		}
		if vnum < 1 || vnum > rd.piece.NumVoices() {
			return nil, rd.errorf("voice %d is not declared", vnum)
		}
		l, err := s.EnsureVoice(vnum - 1)
		if err != nil {
			return nil, rd.errorf("voice %d: %v", vnum, err)
		}
		el := firstChild(vn, "EventList")
		if el == nil {
			continue
		}
		if err := rd.eventList(l, el); err != nil {
			return nil, errors.Wrapf(err, "voice %d", vnum)
		}
	}
	return s, nil
}

func (rd *reader) eventList(l *music.VoiceEventList, el *xmlquery.Node) error {
	for _, n := range childElements(el) {
		if n.Data == "VariantReadings" {
			if err := rd.variant(l, n); err != nil {
				return err
			}
			continue
		}
		e, err := rd.event(n)
		if err != nil {
			return err
		}
		l.AddEvent(e)
	}
	return nil
}

func (rd *reader) variant(l *music.VoiceEventList, vn *xmlquery.Node) error {
	var (
		defaults []*music.Event
		readings []*music.VariantReading
	)
	for _, rn := range xmlquery.QuerySelectorAll(vn, exprReadings) {
		var events []*music.Event
		if m := firstChild(rn, "Music"); m != nil {
			var err error
			if events, err = rd.events(m); err != nil {
				return err
			}
		}
		var ids []string
		isDefault := false
		for _, idn := range xmlquery.QuerySelectorAll(rn, exprIDs) {
			id := strings.TrimSpace(idn.InnerText())
			if id == music.DefaultVersionID {
				isDefault = true
				continue
			}
			ids = append(ids, id)
		}
		if isDefault {
			defaults = events
			for _, id := range ids {
				rd.piece.EnsureVersion(id)
			}
			continue
		}
		if len(ids) == 0 {
			return rd.errorf("reading without versions")
		}
		r := music.NewVariantReading()
		r.Error = hasChild(rn, "Error")
		for _, e := range events {
			r.AddEvent(e)
		}
		for _, id := range ids {
			r.AddVersion(rd.piece.EnsureVersion(id))
		}
		readings = append(readings, r)
	}
	l.AddVariantBlock(defaults, readings)
	return nil
}

func (rd *reader) events(parent *xmlquery.Node) ([]*music.Event, error) {
	var out []*music.Event
	for _, n := range childElements(parent) {
		e, err := rd.event(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (rd *reader) event(n *xmlquery.Node) (*music.Event, error) {
	body, err := rd.body(n)
	if err != nil {
		return nil, err
	}
	e := music.NewEvent(body)
	e.Editorial = hasChild(n, "Editorial")
	e.Error = hasChild(n, "Error")
	e.Commentary = childText(n, "Commentary")
	return e, nil
}

func (rd *reader) pitch(n *xmlquery.Node) (music.Pitch, error) {
	p, err := music.ParsePitch(childText(n, "LetterName") + childText(n, "OctaveNum"))
	if err != nil {
		return music.Pitch{}, rd.errorf("%s: %v", n.Data, err)
	}
	return p, nil
}

func (rd *reader) noteType(n *xmlquery.Node) (music.NoteType, error) {
	t, err := music.ParseNoteType(childText(n, "Type"))
	if err != nil {
		return 0, rd.errorf("%s: %v", n.Data, err)
	}
	return t, nil
}

func (rd *reader) ratio(n *xmlquery.Node) (music.Proportion, error) {
	num, err := rd.intText(n, "Num", 1)
	if err != nil {
		return music.Zero, err
	}
	den, err := rd.intText(n, "Den", 1)
	if err != nil {
		return music.Zero, err
	}
	if den == 0 {
		return music.Zero, rd.errorf("%s: zero denominator", n.Data)
	}
	return music.NewProportion(num, den), nil
}

func (rd *reader) body(n *xmlquery.Node) (music.Body, error) {
	switch n.Data {
	case "Note":
		t, err := rd.noteType(n)
		if err != nil {
			return nil, err
		}
		p, err := rd.pitch(n)
		if err != nil {
			return nil, err
		}
		acc, err := rd.intText(n, "Accidental", 0)
		if err != nil {
			return nil, err
		}
		return &music.Note{Type: t, Pitch: p, Accidental: acc, Syllable: childText(n, "Syllable")}, nil
	case "Rest":
		t, err := rd.noteType(n)
		if err != nil {
			return nil, err
		}
		return &music.Rest{Type: t}, nil
	case "Clef":
		t, err := music.ParseClefType(childText(n, "Appearance"))
		if err != nil {
			return nil, rd.errorf("Clef: %v", err)
		}
		line, err := rd.intText(n, "StaffLoc", 0)
		if err != nil {
			return nil, err
		}
		return &music.Clef{Type: t, Line: line, Signature: hasChild(n, "Signature")}, nil
	case "Mensuration":
		m := &music.Mensuration{
			Dot:          hasChild(n, "Dot"),
			Stroke:       hasChild(n, "Stroke"),
			PerfectModus: hasChild(n, "ModusCumTempore"),
		}
		switch childText(n, "MainSymbol") {
		case "O":
			m.Sign = music.MensO
		case "C":
			m.Sign = music.MensC
		default:
			return nil, rd.errorf("Mensuration: unknown sign %q", childText(n, "MainSymbol"))
		}
		num, err := rd.intText(n, "Number", 0)
		if err != nil {
			return nil, err
		}
		m.Number = num
		return m, nil
	case "ColorChange":
		return &music.ColorChange{Coloration: music.Coloration{Color: childText(n, "PrimaryColor"), Fill: childText(n, "PrimaryFill")}}, nil
	case "Dot":
		return &music.Dot{}, nil
	case "Barline":
		lines, err := rd.intText(n, "NumLines", 1)
		if err != nil {
			return nil, err
		}
		return &music.Barline{Lines: lines, Repeat: hasChild(n, "RepeatSign")}, nil
	case "Annotation":
		return &music.Annotation{Text: childText(n, "Text")}, nil
	case "OriginalText":
		return &music.OriginalText{Text: childText(n, "Phrase")}, nil
	case "Lacuna":
		ln := firstChild(n, "Length")
		if ln == nil {
			return nil, rd.errorf("Lacuna without Length")
		}
		p, err := rd.ratio(ln)
		if err != nil {
			return nil, err
		}
		return &music.Lacuna{Length: p}, nil
	case "Proportion":
		p, err := rd.ratio(n)
		if err != nil {
			return nil, err
		}
		return &music.ProportionChange{Value: p}, nil
	case "Custos":
		p, err := rd.pitch(n)
		if err != nil {
			return nil, err
		}
		return &music.Custos{Pitch: p}, nil
	case "LineEnd":
		return &music.LineEnd{PageEnd: hasChild(n, "PageEnd")}, nil
	case "MultiEvent":
		m := &music.MultiEvent{}
		for _, c := range childElements(n) {
			if isEnvelope(c.Data) {
				continue
			}
			if c.Data == "MultiEvent" || c.Data == "VariantReadings" {
				return nil, rd.errorf("MultiEvent holds simple events only")
			}
			e, err := rd.event(c)
			if err != nil {
				return nil, err
			}
			m.Events = append(m.Events, e)
		}
		return m, nil
	case "VariantReadings":
		return nil, rd.errorf("nested VariantReadings")
	}
	return nil, rd.errorf("unknown event %s", n.Data)
}

// isEnvelope reports whether an element carries event flags rather than a
// member event.
func isEnvelope(name string) bool {
	return name == "Editorial" || name == "Error" || name == "Commentary"
}
