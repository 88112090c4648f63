package music

import "testing"

func TestVoiceEventListAddEvent(t *testing.T) {
	l := NewVoiceEventList(0)
	if l.Len() != 1 || l.Event(0).Kind() != KindSectionEnd {
		t.Fatalf("new list should hold only a section end, got %d events", l.Len())
	}
	l.AddEvent(NewEvent(&Clef{Type: ClefC, Line: 4}))
	l.AddEvent(note(Brevis, "D4"))
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if l.Event(2).Kind() != KindSectionEnd {
		t.Error("section end should stay last")
	}
	for i := 0; i < l.Len(); i++ {
		if got := l.Event(i).DefaultListPlace; got != i {
			t.Errorf("event %d has place %d", i, got)
		}
	}
	if c := l.Event(1).Context.Clef; c == nil || c.Type != ClefC {
		t.Errorf("note context clef = %v, want C", c)
	}
	if l.Event(5) != nil || l.Event(-1) != nil {
		t.Error("out of range Event should be nil")
	}
}

func TestVoiceEventListDeleteRenumbers(t *testing.T) {
	f := newFixture(t)
	removed := f.list.DeleteEvent(2)
	if removed.DefaultListPlace != -1 {
		t.Errorf("removed event place = %d, want -1", removed.DefaultListPlace)
	}
	for i, e := range f.list.Events() {
		if e.DefaultListPlace != i {
			t.Errorf("event %d has place %d", i, e.DefaultListPlace)
		}
	}
}

func TestMusicTime(t *testing.T) {
	tests := []struct {
		name  string
		mens  *Mensuration
		color bool
		typ   NoteType
		want  Proportion
	}{
		{"imperfect breve", &Mensuration{Sign: MensC}, false, Brevis, Whole(4)},
		{"perfect breve", &Mensuration{Sign: MensO}, false, Brevis, Whole(6)},
		{"colored perfect breve", &Mensuration{Sign: MensO}, true, Brevis, Whole(4)},
		{"major prolation semibreve", &Mensuration{Sign: MensC, Dot: true}, false, Semibrevis, Whole(3)},
		{"perfect modus long", &Mensuration{Sign: MensO, PerfectModus: true}, false, Longa, Whole(18)},
		{"minim", &Mensuration{Sign: MensO, Dot: true}, false, Minima, Whole(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewVoiceEventList(0)
			l.AddEvent(NewEvent(tt.mens))
			if tt.color {
				l.AddEvent(NewEvent(&ColorChange{Coloration: Coloration{Color: "Red", Fill: "Full"}}))
			}
			n := note(tt.typ, "C4")
			l.AddEvent(n)
			if !n.MusicTime.Equal(tt.want) {
				t.Errorf("MusicTime = %s, want %s", n.MusicTime, tt.want)
			}
			if n.Colored != tt.color {
				t.Errorf("Colored = %v, want %v", n.Colored, tt.color)
			}
		})
	}
}

func TestMusicTimeProportion(t *testing.T) {
	l := NewVoiceEventList(0)
	l.AddEvent(NewEvent(&Mensuration{Sign: MensC}))
	l.AddEvent(NewEvent(&ProportionChange{Value: NewProportion(3, 1)}))
	n := note(Brevis, "C4")
	l.AddEvent(n)
	if want := NewProportion(4, 3); !n.MusicTime.Equal(want) {
		t.Errorf("MusicTime = %s, want %s", n.MusicTime, want)
	}
}

func TestChantIgnoresMensuration(t *testing.T) {
	l := NewChantEventList(0)
	l.AddEvent(NewEvent(&Mensuration{Sign: MensO}))
	n := note(Brevis, "C4")
	l.AddEvent(n)
	if !n.MusicTime.Equal(Whole(4)) {
		t.Errorf("MusicTime = %s, want 4", n.MusicTime)
	}
	if n.Context.Mensuration != nil {
		t.Error("chant events should carry no mensuration")
	}
}

func TestKeySignature(t *testing.T) {
	l := NewVoiceEventList(0)
	l.AddEvent(NewEvent(&Clef{Type: ClefC, Line: 3}))
	l.AddEvent(NewEvent(&Clef{Type: ClefBmol, Line: 3}))
	l.AddEvent(NewEvent(&Clef{Type: ClefBmol, Line: 6}))
	n1 := note(Semibrevis, "B3")
	l.AddEvent(n1)
	l.AddEvent(NewEvent(&Clef{Type: ClefF, Line: 4}))
	n2 := note(Semibrevis, "B2")
	l.AddEvent(n2)
	if n1.Context.KeySig != -2 {
		t.Errorf("KeySig before clef change = %d, want -2", n1.Context.KeySig)
	}
	if n2.Context.KeySig != 0 {
		t.Errorf("KeySig after principal clef = %d, want 0", n2.Context.KeySig)
	}
}

func TestNextEventOfType(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		kind  Kind
		start int
		dir   int
		want  int
	}{
		{"forward inclusive", KindNote, 2, 1, 2},
		{"forward", KindNote, 0, 1, 2},
		{"backward inclusive", KindMensuration, 1, -1, 1},
		{"backward", KindClef, 5, -1, 0},
		{"missing", KindBarline, 0, 1, -1},
		{"backward past end clamps", KindSectionEnd, 99, -1, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.list.NextEventOfType(tt.kind, tt.start, tt.dir); got != tt.want {
				t.Errorf("NextEventOfType = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnclosingMarker(t *testing.T) {
	l := NewVoiceEventList(0)
	l.AddEvent(note(Semibrevis, "C4"))
	l.AddVariantBlock([]*Event{note(Semibrevis, "D4"), note(Semibrevis, "E4")}, nil)
	l.AddEvent(note(Semibrevis, "F4"))
	// 0 C4, 1 begin, 2 D4, 3 E4, 4 end, 5 F4, 6 section end
	tests := []struct {
		pos  int
		ok   bool
		idx  int
		desc string
	}{
		{1, false, -1, "before begin"},
		{2, true, 0, "first in segment"},
		{3, true, 1, "second in segment"},
		{4, true, 2, "before end"},
		{5, false, -1, "after end"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			b, e, ok := l.EnclosingMarker(tt.pos)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (b != 1 || e != 4) {
				t.Errorf("marker = (%d, %d), want (1, 4)", b, e)
			}
			if got := l.CalcIndexWithinReading(tt.pos); got != tt.idx {
				t.Errorf("CalcIndexWithinReading = %d, want %d", got, tt.idx)
			}
		})
	}
}

func TestRecalcEventParamsIdempotent(t *testing.T) {
	f := newFixture(t)
	before := f.p.Canonical()
	times := make([]Proportion, f.list.Len())
	for i, e := range f.list.Events() {
		times[i] = e.MusicTime
	}
	f.list.RecalcEventParams(nil)
	f.list.RecalcEventParams(nil)
	if after := f.p.Canonical(); after != before {
		t.Errorf("recalc changed piece:\n%s\nvs\n%s", before, after)
	}
	for i, e := range f.list.Events() {
		if !e.MusicTime.Equal(times[i]) {
			t.Errorf("event %d MusicTime %s, was %s", i, e.MusicTime, times[i])
		}
	}
}

func TestMarkerDefaultLengthShared(t *testing.T) {
	l := NewVoiceEventList(0)
	l.AddEvent(NewEvent(&Mensuration{Sign: MensC}))
	m := l.AddVariantBlock([]*Event{note(Brevis, "D4"), note(Minima, "E4")}, nil)
	if want := Whole(5); !m.DefaultLength().Equal(want) {
		t.Errorf("DefaultLength = %s, want %s", m.DefaultLength(), want)
	}
	begin := l.FindMarker(m)
	end := l.MatchingEnd(begin)
	if l.Event(begin).Marker() != l.Event(end).Marker() {
		t.Error("begin and end should share one marker")
	}
	if l.MatchingBegin(end) != begin {
		t.Error("MatchingBegin should return the begin index")
	}
}
