package cmme

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
)

// Version is written to the CMMEversion attribute.
const Version = "0.98"

// Write renders p as a CMME document.
func Write(w io.Writer, p *music.Piece) error {
	data := Marshal(p)
	if _, err := w.Write(data); err != nil {
		return errors.NewIO("write", "", err)
	}
	return nil
}

// Marshal renders p as an indented CMME document.
func Marshal(p *music.Piece) []byte {
	doc := Build(p)
	var buf bytes.Buffer
	formatNode(&buf, doc, 0, "  ")
	return buf.Bytes()
}

// Build returns the document tree for p. The apparatus is consolidated
// first, so p loses redundant readings and markers without readings.
func Build(p *music.Piece) *xmlquery.Node {
	if !p.Materialized() {
		p.ConsolidateAllReadings()
	}
	doc := &xmlquery.Node{Type: xmlquery.DocumentNode}
	decl := &xmlquery.Node{Type: xmlquery.DeclarationNode, Data: "xml"}
	xmlquery.AddAttr(decl, "version", "1.0")
	xmlquery.AddAttr(decl, "encoding", "UTF-8")
	xmlquery.AddChild(doc, decl)

	root := element(doc, "Piece")
	xmlquery.AddAttr(root, "CMMEversion", Version)

	gd := element(root, "GeneralData")
	textElement(gd, "Title", p.Meta.Title)
	optText(gd, "Composer", p.Meta.Composer)
	optText(gd, "Editor", p.Meta.Editor)
	optText(gd, "Notes", p.Meta.Notes)
	for _, v := range p.Versions() {
		buildVersion(gd, v)
	}

	voices := element(root, "Voices")
	textElement(voices, "NumVoices", strconv.Itoa(p.NumVoices()))
	for _, v := range p.Voices() {
		vn := element(voices, "Voice")
		textElement(vn, "Name", v.Name)
		flag(vn, "Editorial", v.Editorial)
	}

	for _, s := range p.Sections() {
		buildSection(element(root, "MusicSection"), s)
	}
	return doc
}

func element(parent *xmlquery.Node, name string) *xmlquery.Node {
	n := &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
	xmlquery.AddChild(parent, n)
	return n
}

func textElement(parent *xmlquery.Node, name, text string) *xmlquery.Node {
	n := element(parent, name)
	if text != "" {
		xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	}
	return n
}

func optText(parent *xmlquery.Node, name, text string) {
	if text != "" {
		textElement(parent, name, text)
	}
}

func flag(parent *xmlquery.Node, name string, set bool) {
	if set {
		element(parent, name)
	}
}

func buildVersion(parent *xmlquery.Node, v *music.VariantVersion) {
	n := element(parent, "VariantVersion")
	textElement(n, "ID", v.ID)
	optText(n, "SourceName", v.SourceName)
	optText(n, "SourceID", v.SourceID)
	optText(n, "Editor", v.Editor)
	optText(n, "Description", v.Description)
	if len(v.MissingVoices) > 0 {
		nums := make([]string, len(v.MissingVoices))
		for i, m := range v.MissingVoices {
			nums[i] = strconv.Itoa(m + 1)
		}
		textElement(n, "MissingVoices", strings.Join(nums, " "))
	}
	flag(n, "Default", v.Default)
}

func buildSection(parent *xmlquery.Node, s *music.MusicSection) {
	var body *xmlquery.Node
	switch s.Type {
	case music.SectionText:
		body = element(parent, "TextSection")
		textElement(body, "Text", s.Text)
		return
	case music.SectionPlainchant:
		body = element(parent, "Plainchant")
	default:
		body = element(parent, "MensuralMusic")
	}
	if !s.BaseColoration.IsZero() && s.BaseColoration != music.DefaultColoration {
		bc := element(body, "BaseColoration")
		textElement(bc, "PrimaryColor", s.BaseColoration.Color)
		textElement(bc, "PrimaryFill", s.BaseColoration.Fill)
	}
	for _, t := range s.Tacets {
		tn := element(body, "Tacet")
		textElement(tn, "VoiceNum", strconv.Itoa(t.Voice+1))
		optText(tn, "Text", t.Text)
	}
	for vnum, l := range s.VoiceLists() {
		if l == nil {
			continue
		}
		vn := element(body, "Voice")
		textElement(vn, "VoiceNum", strconv.Itoa(vnum+1))
		buildList(element(vn, "EventList"), l)
	}
}

func buildList(parent *xmlquery.Node, l *music.VoiceEventList) {
	for i := 0; i < l.Len(); i++ {
		e := l.Event(i)
		switch b := e.Body.(type) {
		case *music.SectionEnd, *music.VariantEnd:
			continue
		case *music.VariantBegin:
			end := l.MatchingEnd(i)
			if end < 0 {
				continue
			}
			buildVariant(parent, b.Marker, l.Segment(i))
			i = end
			continue
		}
		buildEvent(parent, e)
	}
}

func buildVariant(parent *xmlquery.Node, m *music.VariantMarker, segment []*music.Event) {
	vr := element(parent, "VariantReadings")
	for _, rv := range music.MarkerReadings(m, segment) {
		if !rv.Default && len(rv.Versions) == 0 {
			continue
		}
		rn := element(vr, "Reading")
		for _, id := range rv.VersionIDs() {
			textElement(rn, "VariantVersionID", id)
		}
		flag(rn, "Error", rv.Error)
		mn := element(rn, "Music")
		for _, e := range rv.Events {
			buildEvent(mn, e)
		}
	}
}

func buildPitch(n *xmlquery.Node, p music.Pitch) {
	textElement(n, "LetterName", string(p.Letter))
	textElement(n, "OctaveNum", strconv.Itoa(p.Octave))
}

func buildRatio(n *xmlquery.Node, p music.Proportion) {
	textElement(n, "Num", strconv.Itoa(p.Num()))
	textElement(n, "Den", strconv.Itoa(p.Den()))
}

func buildEvent(parent *xmlquery.Node, e *music.Event) {
	var n *xmlquery.Node
	switch b := e.Body.(type) {
	case *music.Note:
		n = element(parent, "Note")
		textElement(n, "Type", b.Type.String())
		buildPitch(n, b.Pitch)
		if b.Accidental != 0 {
			textElement(n, "Accidental", strconv.Itoa(b.Accidental))
		}
		optText(n, "Syllable", b.Syllable)
	case *music.Rest:
		n = element(parent, "Rest")
		textElement(n, "Type", b.Type.String())
	case *music.Clef:
		n = element(parent, "Clef")
		textElement(n, "Appearance", b.Type.String())
		textElement(n, "StaffLoc", strconv.Itoa(b.Line))
		flag(n, "Signature", b.Signature)
	case *music.Mensuration:
		n = element(parent, "Mensuration")
		textElement(n, "MainSymbol", b.Sign.String())
		flag(n, "Dot", b.Dot)
		flag(n, "Stroke", b.Stroke)
		if b.Number > 0 {
			textElement(n, "Number", strconv.Itoa(b.Number))
		}
		flag(n, "ModusCumTempore", b.PerfectModus)
	case *music.ColorChange:
		n = element(parent, "ColorChange")
		textElement(n, "PrimaryColor", b.Coloration.Color)
		textElement(n, "PrimaryFill", b.Coloration.Fill)
	case *music.Dot:
		n = element(parent, "Dot")
	case *music.Barline:
		n = element(parent, "Barline")
		textElement(n, "NumLines", strconv.Itoa(b.Lines))
		flag(n, "RepeatSign", b.Repeat)
	case *music.Annotation:
		n = element(parent, "Annotation")
		textElement(n, "Text", b.Text)
	case *music.OriginalText:
		n = element(parent, "OriginalText")
		textElement(n, "Phrase", b.Text)
	case *music.Lacuna:
		n = element(parent, "Lacuna")
		buildRatio(element(n, "Length"), b.Length)
	case *music.ProportionChange:
		n = element(parent, "Proportion")
		buildRatio(n, b.Value)
	case *music.Custos:
		n = element(parent, "Custos")
		buildPitch(n, b.Pitch)
	case *music.LineEnd:
		n = element(parent, "LineEnd")
		flag(n, "PageEnd", b.PageEnd)
	case *music.MultiEvent:
		n = element(parent, "MultiEvent")
		for _, sub := range b.Events {
			buildEvent(n, sub)
		}
	default:
		return
	}
	flag(n, "Editorial", e.Editorial)
	flag(n, "Error", e.Error)
	optText(n, "Commentary", e.Commentary)
}

// formatNode writes n indented by depth. Elements holding only text stay on
// one line.
func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			formatNode(w, c, depth, indent)
		}
	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, a := range n.Attr {
			w.WriteString(" " + a.Name.Local + `="`)
			xml.EscapeText(w, []byte(a.Value))
			w.WriteString(`"`)
		}
		w.WriteString("?>\n")
	case xmlquery.ElementNode:
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			w.WriteString(" " + a.Name.Local + `="`)
			xml.EscapeText(w, []byte(a.Value))
			w.WriteString(`"`)
		}
		if n.FirstChild == nil {
			w.WriteString("/>\n")
			return
		}
		if n.FirstChild.Type == xmlquery.TextNode && n.FirstChild.NextSibling == nil {
			w.WriteString(">")
			xml.EscapeText(w, []byte(n.FirstChild.Data))
			w.WriteString("</" + n.Data + ">\n")
			return
		}
		w.WriteString(">\n")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			formatNode(w, c, depth+1, indent)
		}
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("</" + n.Data + ">\n")
	case xmlquery.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			w.WriteString(strings.Repeat(indent, depth))
			xml.EscapeText(w, []byte(n.Data))
			w.WriteString("\n")
		}
	}
}
