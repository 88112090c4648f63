package music

import (
	"testing"

	"github.com/FocuswithJustin/Mensura/core/errors"
)

func TestAddEventPropagatesAcrossSections(t *testing.T) {
	f := newFixture(t)
	s2 := NewMusicSection(SectionMensural, 1)
	l2, _ := s2.EnsureVoice(0)
	later := note(Semibrevis, "D4")
	l2.AddEvent(later)
	f.p.AddSection(s2)

	if c := later.Context.Clef; c == nil || c.Type != ClefC {
		t.Fatalf("later section clef = %v, want C", c)
	}

	clef := NewEvent(&Clef{Type: ClefF, Line: 4})
	if res := f.p.AddEvent(0, 0, 3, clef); res != Applied {
		t.Fatalf("AddEvent = %v, want applied", res)
	}
	if c := later.Context.Clef; c == nil || c.Type != ClefF {
		t.Errorf("later section clef = %v, want F", c)
	}
	if got := f.list.Event(3); got != clef {
		t.Errorf("event 3 = %v, want inserted clef", got)
	}
	if c := f.list.Event(2).Context.Clef; c.Type != ClefC {
		t.Errorf("event before insertion clef = %v, want C", c)
	}
	assertValid(t, f.p)

	if _, res := f.p.DeleteEvent(0, 0, 3); res != Applied {
		t.Fatalf("DeleteEvent = %v, want applied", res)
	}
	if c := later.Context.Clef; c.Type != ClefC {
		t.Errorf("after delete, later clef = %v, want C", c)
	}
	assertValid(t, f.p)
}

func TestDefaultEditsRefuseSentinels(t *testing.T) {
	f := newFixture(t)
	f.p.AddEventInVersion(f.a, 0, 0, 3, note(Minima, "F3"))
	begin := f.list.NextEventOfType(KindVariantBegin, 0, 1)
	if begin < 0 {
		t.Fatal("expected a marker")
	}
	before := f.p.Digest()

	tests := []struct {
		name string
		run  func() EditResult
	}{
		{"delete begin", func() EditResult { _, r := f.p.DeleteEvent(0, 0, begin); return r }},
		{"delete end", func() EditResult { _, r := f.p.DeleteEvent(0, 0, begin+1); return r }},
		{"delete section end", func() EditResult { _, r := f.p.DeleteEvent(0, 0, f.list.Len()-1); return r }},
		{"insert marker", func() EditResult { b, _, _ := NewMarkerPair(); return f.p.AddEvent(0, 0, 1, b) }},
		{"bad section", func() EditResult { return f.p.AddEvent(4, 0, 0, note(Minima, "C4")) }},
		{"bad voice", func() EditResult { return f.p.AddEvent(0, 3, 0, note(Minima, "C4")) }},
		{"bad index", func() EditResult { return f.p.AddEvent(0, 0, 99, note(Minima, "C4")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := tt.run(); res != NoAction {
				t.Errorf("result = %v, want noaction", res)
			}
		})
	}
	if f.p.Digest() != before {
		t.Error("refused edits changed the piece")
	}
}

func TestAddVariantEventNewVariant(t *testing.T) {
	f := newFixture(t)
	x := note(Minima, "F3")
	if res := f.p.AddEventInVersion(f.a, 0, 0, 3, x); res != NewVariant {
		t.Fatalf("AddEventInVersion = %v, want newvariant", res)
	}
	begin := f.list.Event(3)
	if begin.Kind() != KindVariantBegin || f.list.Event(4).Kind() != KindVariantEnd {
		t.Fatalf("expected marker pair at 3-4, got %v %v", begin, f.list.Event(4))
	}
	m := begin.Marker()
	if m.ReadingFor(f.b) != nil {
		t.Error("B should follow the default")
	}
	r := m.ReadingFor(f.a)
	if r == nil || r.Len() != 1 || r.Event(0) != x {
		t.Fatalf("A reading = %v, want [x]", r)
	}
	if x.DefaultListPlace != -1 {
		t.Errorf("reading event place = %d, want -1", x.DefaultListPlace)
	}
	if f.list.Len() != 9 {
		t.Errorf("default list Len = %d, want 9", f.list.Len())
	}
	assertValid(t, f.p)
}

func TestAddVariantEventMiddleAndNewReading(t *testing.T) {
	f := newFixture(t)
	vmd := f.a.ConstructMusicData(f.p)
	x, y := note(Minima, "F3"), note(Minima, "E3")
	if res := f.p.AddVariantEvent(f.a, vmd, 0, 0, 3, x); res != NewVariant {
		t.Fatalf("first edit = %v, want newvariant", res)
	}
	// vmd: 3 begin, 4 x, 5 end
	if res := f.p.AddVariantEvent(f.a, vmd, 0, 0, 5, y); res != Middle {
		t.Fatalf("second edit = %v, want middle", res)
	}
	m := f.list.Event(3).Marker()
	equalKeys(t, "A reading", m.ReadingFor(f.a).Events(), []*Event{x, y})

	bvmd := f.b.ConstructMusicData(f.p)
	z := note(Fusa, "D3")
	if res := f.p.AddVariantEvent(f.b, bvmd, 0, 0, 4, z); res != NewReading {
		t.Fatalf("B edit = %v, want newreading", res)
	}
	if m.NumReadings() != 2 {
		t.Errorf("NumReadings = %d, want 2", m.NumReadings())
	}
	equalKeys(t, "B reading", m.ReadingFor(f.b).Events(), []*Event{z})
	assertValid(t, f.p)
}

func TestAddVariantEventSplitsSharedReading(t *testing.T) {
	f := newFixture(t)
	x := note(Minima, "F3")
	r := NewVariantReading(f.a, f.b)
	r.AddEvent(x)
	l := f.list
	// wrap A3 in a marker whose single reading is shared by A and B
	mb, me, m := NewMarkerPair()
	l.InsertEvent(3, mb)
	l.InsertEvent(5, me)
	m.AddReading(r)
	f.p.RecalcAllEventParams()

	vmd := f.a.ConstructMusicData(f.p)
	y := note(Minima, "G3")
	if res := f.p.AddVariantEvent(f.a, vmd, 0, 0, 5, y); res != Middle {
		t.Fatalf("AddVariantEvent = %v, want middle", res)
	}
	ra, rb := m.ReadingFor(f.a), m.ReadingFor(f.b)
	if ra == rb {
		t.Fatal("A and B should no longer share a reading")
	}
	equalKeys(t, "A reading", ra.Events(), []*Event{x, y})
	equalKeys(t, "B reading", rb.Events(), []*Event{x})
	if ra.Event(0) == rb.Event(0) {
		t.Error("split reading should hold copies")
	}
	equalKeys(t, "A timeline", vmd.VoiceList(0, 0).Events()[4:6], []*Event{x, y})
	if vmd.VoiceList(0, 0).Event(4) != ra.Event(0) {
		t.Error("materialized view should point at the split reading")
	}
	assertValid(t, f.p)
}

func TestDeleteVariantEvent(t *testing.T) {
	f := newFixture(t)
	a3 := f.list.Event(3)
	removed, res := f.p.DeleteEventInVersion(f.a, 0, 0, 3)
	if res != NewVariant || removed != a3 {
		t.Fatalf("DeleteEventInVersion = (%v, %v), want (A3, newvariant)", removed, res)
	}
	// default: 3 begin, 4 A3, 5 end
	if f.list.Event(4) != a3 {
		t.Fatalf("default list should keep A3, got %v", f.list.Event(4))
	}
	m := f.list.Event(3).Marker()
	if r := m.ReadingFor(f.a); r == nil || r.Len() != 0 {
		t.Fatalf("A reading = %v, want empty", r)
	}
	if !m.DefaultLength().Equal(Whole(2)) {
		t.Errorf("DefaultLength = %s, want 2", m.DefaultLength())
	}

	// B deletes inside the marker and gets its own empty reading.
	removed, res = f.p.DeleteEventInVersion(f.b, 0, 0, 4)
	if res != NewReading {
		t.Fatalf("B delete = %v, want newreading", res)
	}
	if removed == a3 || !removed.Equal(a3) {
		t.Error("B should delete its own copy of A3")
	}
	if m.NumReadings() != 2 {
		t.Errorf("empty readings must be kept, NumReadings = %d", m.NumReadings())
	}
	if f.list.Event(4) != a3 {
		t.Error("default segment changed")
	}
	assertValid(t, f.p)
}

func TestDeleteVariantEventMiddle(t *testing.T) {
	f := newFixture(t)
	vmd := f.a.ConstructMusicData(f.p)
	x := note(Minima, "F3")
	f.p.AddVariantEvent(f.a, vmd, 0, 0, 3, x)
	removed, res := f.p.DeleteVariantEvent(f.a, vmd, 0, 0, 4)
	if res != Middle || removed != x {
		t.Fatalf("DeleteVariantEvent = (%v, %v), want (x, middle)", removed, res)
	}
	m := f.list.Event(3).Marker()
	if r := m.ReadingFor(f.a); r == nil || r.Len() != 0 {
		t.Error("emptied reading should remain attached")
	}
	if _, res := f.p.DeleteVariantEvent(f.a, vmd, 0, 0, 3); res != NoAction {
		t.Errorf("deleting a marker = %v, want noaction", res)
	}
}

func TestVariantEditRejectsForeignView(t *testing.T) {
	f := newFixture(t)
	vmd := f.b.ConstructMusicData(f.p)
	if res := f.p.AddVariantEvent(f.a, vmd, 0, 0, 3, note(Minima, "C4")); res != NoAction {
		t.Errorf("result = %v, want noaction", res)
	}
}

func TestMissingVoiceIsNotEditable(t *testing.T) {
	f := newFixture(t)
	f.a.MissingVoices = []int{0}
	if res := f.p.AddEventInVersion(f.a, 0, 0, 3, note(Minima, "C4")); res != NoAction {
		t.Errorf("result = %v, want noaction", res)
	}
}

func TestDuplicateEventsInVariant(t *testing.T) {
	f := newFixture(t)
	g3, a3 := f.list.Event(2), f.list.Event(3)
	vmd := f.a.ConstructMusicData(f.p)
	r, err := f.p.DuplicateEventsInVariant(f.a, vmd, 0, 0, 2, 3)
	if err != nil {
		t.Fatalf("DuplicateEventsInVariant failed: %v", err)
	}
	equalKeys(t, "copies", r.Events(), []*Event{g3, a3})
	if r.Event(0) == g3 || r.Event(1) == a3 {
		t.Error("duplicates should be copies")
	}
	// default: 2 begin, 3 G3, 4 A3, 5 end
	if f.list.Event(2).Kind() != KindVariantBegin || f.list.Event(5).Kind() != KindVariantEnd {
		t.Fatal("expected marker pair around duplicated range")
	}
	if f.list.Event(3) != g3 || f.list.Event(4) != a3 {
		t.Error("default events should be untouched")
	}
	if f.list.Event(2).Marker().ReadingFor(f.b) != nil {
		t.Error("B should follow the default")
	}

	// a second duplicate of one event inside the marker returns the same reading.
	again, err := f.p.DuplicateEventInVariant(f.a, vmd, 0, 0, 3)
	if err != nil || again != r {
		t.Errorf("DuplicateEventInVariant = (%v, %v), want existing reading", again, err)
	}
	assertValid(t, f.p)
}

func TestDuplicateEventsAcrossMarkerUnsupported(t *testing.T) {
	f := newFixture(t)
	vmd := f.a.ConstructMusicData(f.p)
	f.p.AddVariantEvent(f.a, vmd, 0, 0, 3, note(Minima, "F3"))
	// vmd: 2 G3, 3 begin, 4 F3, 5 end, 6 A3
	before := f.p.Digest()
	tests := []struct {
		name        string
		first, last int
	}{
		{"contains marker", 2, 6},
		{"straddles begin", 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := f.p.DuplicateEventsInVariant(f.a, vmd, 0, 0, tt.first, tt.last)
			if r != nil || !errors.Is(err, errors.ErrUnsupported) {
				t.Errorf("got (%v, %v), want unsupported", r, err)
			}
		})
	}
	if f.p.Digest() != before {
		t.Error("unsupported duplicate changed the piece")
	}
}

func TestCreateSeparateReadingForVersion(t *testing.T) {
	f := newFixture(t)
	y := note(Minima, "F3")
	shared := NewVariantReading(f.a, f.b)
	shared.AddEvent(y)
	m := f.list.AddVariantBlock(nil, []*VariantReading{shared})

	sep := f.p.CreateSeparateReadingForVersion(f.a, m)
	if sep == nil || sep == shared {
		t.Fatal("expected a new reading")
	}
	if m.ReadingFor(f.a) != sep || m.ReadingFor(f.b) != shared {
		t.Error("A should own the copy and B the original")
	}
	if sep.Event(0) == y || !sep.Event(0).Equal(y) {
		t.Error("copy should be structurally equal but distinct")
	}
	if m.NumReadings() != 2 {
		t.Errorf("NumReadings = %d, want 2", m.NumReadings())
	}
	if again := f.p.CreateSeparateReadingForVersion(f.a, m); again != sep {
		t.Error("a private reading should be returned unchanged")
	}
}

func TestCombineReadingWithNext(t *testing.T) {
	p := NewPiece(Meta{Title: "Gloria"})
	p.AddVoice(&Voice{Name: "Tenor"})
	a, b := &VariantVersion{ID: "A"}, &VariantVersion{ID: "B"}
	p.AddVersion(a)
	p.AddVersion(b)
	s := NewMusicSection(SectionMensural, 1)
	l, _ := s.EnsureVoice(0)

	n1, n2, n3, n4 := note(Semibrevis, "C4"), note(Semibrevis, "D4"), note(Semibrevis, "E4"), note(Semibrevis, "F4")
	x, y := note(Minima, "G4"), note(Minima, "A4")
	ra := NewVariantReading(a)
	ra.AddEvent(x)
	rb := NewVariantReading(b)
	rb.AddEvent(y)

	l.AddEvent(n1)
	l.AddVariantBlock([]*Event{n2}, []*VariantReading{ra})
	l.AddEvent(n3)
	l.AddVariantBlock([]*Event{n4}, []*VariantReading{rb})
	p.AddSection(s)
	// 0 C4, 1 begin, 2 D4, 3 end, 4 E4, 5 begin, 6 F4, 7 end, 8 section end

	if res := p.CombineReadingWithNext(0, 0, 1); res != Applied {
		t.Fatalf("CombineReadingWithNext = %v, want applied", res)
	}
	if l.Len() != 7 {
		t.Fatalf("Len = %d, want 7", l.Len())
	}
	equalKeys(t, "default segment", l.Segment(1), []*Event{n2, n3, n4})
	m := l.Event(1).Marker()
	if l.Event(5).Marker() != m {
		t.Error("end sentinel should point at the merged marker")
	}
	equalKeys(t, "A", m.ReadingFor(a).Events(), []*Event{x, n3, n4})
	equalKeys(t, "B", m.ReadingFor(b).Events(), []*Event{n2, n3, y})
	if !m.DefaultLength().Equal(Whole(6)) {
		t.Errorf("DefaultLength = %s, want 6", m.DefaultLength())
	}
	assertValid(t, p)

	if res := p.CombineReadingWithNext(0, 0, 1); res != NoAction {
		t.Errorf("combining the last marker = %v, want noaction", res)
	}
}

func TestCombineReadingWithNextMergesEqualReadings(t *testing.T) {
	p := NewPiece(Meta{})
	p.AddVoice(&Voice{})
	a, b := &VariantVersion{ID: "A"}, &VariantVersion{ID: "B"}
	p.AddVersion(a)
	p.AddVersion(b)
	s := NewMusicSection(SectionMensural, 1)
	l, _ := s.EnsureVoice(0)

	r1 := NewVariantReading(a, b)
	r1.AddEvent(note(Minima, "G4"))
	r2 := NewVariantReading(a, b)
	r2.AddEvent(note(Minima, "A4"))
	l.AddVariantBlock([]*Event{note(Semibrevis, "D4")}, []*VariantReading{r1})
	l.AddVariantBlock([]*Event{note(Semibrevis, "F4")}, []*VariantReading{r2})
	p.AddSection(s)

	if res := p.CombineReadingWithNext(0, 0, 0); res != Applied {
		t.Fatalf("CombineReadingWithNext = %v, want applied", res)
	}
	m := l.Event(0).Marker()
	if m.NumReadings() != 1 {
		t.Fatalf("NumReadings = %d, want 1", m.NumReadings())
	}
	if r := m.Readings()[0]; r.NumVersions() != 2 {
		t.Errorf("merged reading versions = %v, want A and B", versionIDs(r.Versions()))
	}
}

func TestDeleteVersion(t *testing.T) {
	f := newFixture(t)
	f.p.AddEventInVersion(f.a, 0, 0, 3, note(Minima, "F3"))
	m := f.list.Event(3).Marker()
	if err := f.p.DeleteVersion(f.a); err != nil {
		t.Fatalf("DeleteVersion failed: %v", err)
	}
	if m.NumReadings() != 0 {
		t.Errorf("orphaned reading should be detached, NumReadings = %d", m.NumReadings())
	}
	if f.p.Version("A") != nil {
		t.Error("version A should be unregistered")
	}
	if err := f.p.DeleteVersion(f.a); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second DeleteVersion = %v, want not found", err)
	}
}

func TestDeleteVariantMarker(t *testing.T) {
	f := newFixture(t)
	a3 := f.list.Event(3)
	f.p.DeleteEventInVersion(f.a, 0, 0, 3)
	if res := f.p.DeleteVariantMarker(0, 0, 3); res != Applied {
		t.Fatalf("DeleteVariantMarker = %v, want applied", res)
	}
	if f.list.Event(3) != a3 || f.list.Len() != 7 {
		t.Error("default sequence should be restored")
	}
	if res := f.p.DeleteVariantMarker(0, 0, 3); res != NoAction {
		t.Errorf("no marker = %v, want noaction", res)
	}
	assertValid(t, f.p)
}
