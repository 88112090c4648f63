package music

import (
	"testing"
)

func note(t NoteType, pitch string) *Event {
	p, err := ParsePitch(pitch)
	if err != nil {
		panic(err)
	}
	return NewEvent(&Note{Type: t, Pitch: p})
}

func sung(t NoteType, pitch, syl string) *Event {
	e := note(t, pitch)
	e.Body.(*Note).Syllable = syl
	return e
}

func keys(events []*Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Key()
	}
	return out
}

func equalKeys(t *testing.T, what string, got []*Event, want []*Event) {
	t.Helper()
	g, w := keys(got), keys(want)
	if len(g) != len(w) {
		t.Fatalf("%s: got %d events %v, want %d %v", what, len(g), g, len(w), w)
	}
	for i := range g {
		if g[i] != w[i] {
			t.Fatalf("%s[%d] = %s, want %s", what, i, g[i], w[i])
		}
	}
}

// fixture is a one-voice, one-section piece with two versions:
//
//	0 clef C4, 1 mens O, 2 G3 SB, 3 A3 SB, 4 B3 SB, 5 C4 SB, 6 end
type fixture struct {
	p    *Piece
	a, b *VariantVersion
	list *VoiceEventList
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := NewPiece(Meta{Title: "Kyrie", Composer: "Anonymous"})
	p.AddVoice(&Voice{Name: "Cantus"})
	a := &VariantVersion{ID: "A", SourceName: "Vat35"}
	b := &VariantVersion{ID: "B", SourceName: "Trent89"}
	for _, v := range []*VariantVersion{a, b} {
		if err := p.AddVersion(v); err != nil {
			t.Fatalf("AddVersion(%s) failed: %v", v.ID, err)
		}
	}
	s := NewMusicSection(SectionMensural, 1)
	l, err := s.EnsureVoice(0)
	if err != nil {
		t.Fatalf("EnsureVoice failed: %v", err)
	}
	l.AddEvent(NewEvent(&Clef{Type: ClefC, Line: 4}))
	l.AddEvent(NewEvent(&Mensuration{Sign: MensO}))
	for _, pitch := range []string{"G3", "A3", "B3", "C4"} {
		l.AddEvent(note(Semibrevis, pitch))
	}
	p.AddSection(s)
	return &fixture{p: p, a: a, b: b, list: l}
}

func assertValid(t *testing.T, p *Piece) {
	t.Helper()
	for _, err := range p.Validate() {
		t.Errorf("Validate: %v", err)
	}
}
