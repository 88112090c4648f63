package music

import (
	"testing"

	"github.com/FocuswithJustin/Mensura/core/errors"
)

func TestSetVersionAsDefault(t *testing.T) {
	f := newFixture(t)
	x := note(Minima, "F3")
	f.p.AddEventInVersion(f.a, 0, 0, 3, x)
	m := f.list.Event(3).Marker()

	if err := f.p.SetVersionAsDefault(f.a); err != nil {
		t.Fatalf("SetVersionAsDefault failed: %v", err)
	}
	if f.list.Event(4) != x {
		t.Fatalf("default segment should hold A's event, got %v", f.list.Event(4))
	}
	if m.ReadingFor(f.a) != nil {
		t.Error("A should now follow the default")
	}
	rb := m.ReadingFor(f.b)
	if rb == nil || rb.Len() != 0 {
		t.Errorf("B reading = %v, want the old empty default", rb)
	}
	if !f.a.Default || f.b.Default {
		t.Error("Default flags not updated")
	}
	if f.p.DefaultVersion() != f.a {
		t.Error("DefaultVersion should be A")
	}
	assertValid(t, f.p)

	b := f.b.ConstructMusicData(f.p).VoiceList(0, 0)
	if b.Len() != 9 || b.Event(4).Kind() != KindVariantEnd {
		t.Error("B's timeline should be unchanged by the swap")
	}
}

func TestSetVersionAsDefaultKeepsErrorFlag(t *testing.T) {
	f := newFixture(t)
	ra := NewVariantReading(f.a)
	ra.Error = true
	ra.AddEvent(note(Minima, "F3"))
	ra.AddEvent(note(Minima, "G3"))
	m := f.list.AddVariantBlock([]*Event{note(Semibrevis, "E3")}, []*VariantReading{ra})
	f.p.RecalcAllEventParams()

	if err := f.p.SetVersionAsDefault(f.a); err != nil {
		t.Fatalf("SetVersionAsDefault failed: %v", err)
	}
	seg := f.list.Segment(f.list.FindMarker(m))
	if len(seg) != 2 {
		t.Fatalf("default segment = %v", seg)
	}
	for i, e := range seg {
		if !e.Error {
			t.Errorf("promoted event %d lost the error flag", i)
		}
	}
	if rb := m.ReadingFor(f.b); rb == nil || rb.Error || rb.Len() != 1 {
		t.Errorf("B reading = %v, want the old default without the flag", rb)
	}
	assertValid(t, f.p)
}

func TestSetVersionTextAsDefault(t *testing.T) {
	f := newFixture(t)
	textual := NewVariantReading(f.a)
	textual.AddEvent(sung(Semibrevis, "E3", "e"))
	musical := NewVariantReading(f.a)
	musical.AddEvent(note(Brevis, "F3"))
	m1 := f.list.AddVariantBlock([]*Event{sung(Semibrevis, "E3", "ky")}, []*VariantReading{textual})
	m2 := f.list.AddVariantBlock([]*Event{note(Semibrevis, "F3")}, []*VariantReading{musical})
	f.p.RecalcAllEventParams()

	if err := f.p.SetVersionTextAsDefault(f.a); err != nil {
		t.Fatalf("SetVersionTextAsDefault failed: %v", err)
	}
	seg := f.list.Segment(f.list.FindMarker(m1))
	if len(seg) != 1 || seg[0].Body.(*Note).Syllable != "e" {
		t.Errorf("textual variant should become default, got %v", seg)
	}
	if m1.ReadingFor(f.b) == nil {
		t.Error("B should keep the old text as its reading")
	}
	if m2.ReadingFor(f.a) != musical {
		t.Error("musical variant should stay a reading")
	}
	if f.a.Default {
		t.Error("text swap should not flag A as default")
	}
	assertValid(t, f.p)
}

func TestSetVersionAsDefaultUnknown(t *testing.T) {
	f := newFixture(t)
	err := f.p.SetVersionAsDefault(&VariantVersion{ID: "Z"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	vmd := f.a.ConstructMusicData(f.p)
	if err := vmd.SetVersionAsDefault(f.a); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("err on view = %v, want unsupported", err)
	}
}
