package music

import "testing"

func TestConsolidateMergesEqualReadings(t *testing.T) {
	f := newFixture(t)
	ra := NewVariantReading(f.a)
	ra.AddEvent(note(Minima, "F3"))
	rb := NewVariantReading(f.b)
	rb.AddEvent(note(Minima, "F3"))
	m := f.list.AddVariantBlock([]*Event{note(Semibrevis, "E3")}, []*VariantReading{ra, rb})
	f.p.RecalcAllEventParams()
	begin := f.list.FindMarker(m)

	if !f.p.ConsolidateReadings(Location{Section: 0, Voice: 0, Index: begin}) {
		t.Fatal("ConsolidateReadings should report a change")
	}
	if m.NumReadings() != 1 {
		t.Fatalf("NumReadings = %d, want 1", m.NumReadings())
	}
	r := m.Readings()[0]
	if !r.HasVersion(f.a) || !r.HasVersion(f.b) {
		t.Errorf("merged versions = %v, want A and B", versionIDs(r.Versions()))
	}
	if f.p.ConsolidateReadings(Location{Section: 0, Voice: 0, Index: begin}) {
		t.Error("second consolidation should change nothing")
	}
	assertValid(t, f.p)
}

func TestConsolidateAtEndSentinel(t *testing.T) {
	f := newFixture(t)
	ra := NewVariantReading(f.a)
	ra.AddEvent(note(Semibrevis, "E3"))
	m := f.list.AddVariantBlock([]*Event{note(Semibrevis, "E3")}, []*VariantReading{ra})
	f.p.RecalcAllEventParams()
	end := f.list.MatchingEnd(f.list.FindMarker(m))

	if !f.p.ConsolidateReadings(Location{Section: 0, Voice: 0, Index: end}) {
		t.Fatal("reading equal to the default should be dropped")
	}
	if f.list.FindMarker(m) >= 0 {
		t.Error("marker without readings should be removed")
	}
	if f.p.ConsolidateReadings(Location{Section: 0, Voice: 0, Index: 2}) {
		t.Error("consolidating a non-marker should report no change")
	}
}

func TestConsolidateKeepsErrorReadings(t *testing.T) {
	f := newFixture(t)
	ra := NewVariantReading(f.a)
	ra.Error = true
	ra.AddEvent(note(Semibrevis, "E3"))
	m := f.list.AddVariantBlock([]*Event{note(Semibrevis, "E3")}, []*VariantReading{ra})
	f.p.RecalcAllEventParams()

	if n := f.p.ConsolidateAllReadings(); n != 0 {
		t.Errorf("ConsolidateAllReadings = %d, want 0", n)
	}
	if m.NumReadings() != 1 {
		t.Error("error reading should be kept")
	}
}

func TestConsolidateAllRemovesEmptiedMarker(t *testing.T) {
	f := newFixture(t)
	original := f.list.Events()
	f.p.AddEventInVersion(f.a, 0, 0, 3, note(Minima, "F3"))
	f.p.AddEventInVersion(f.b, 0, 0, 5, note(Minima, "D3"))
	for _, mv := range f.p.Markers() {
		for _, r := range mv.Marker.Readings() {
			if res := f.p.DeleteReading(mv.Marker, r); res != Applied {
				t.Fatalf("DeleteReading = %v, want applied", res)
			}
		}
	}
	if len(f.p.Markers()) != 2 {
		t.Fatal("markers should survive until consolidation")
	}

	if n := f.p.ConsolidateAllReadings(); n != 2 {
		t.Errorf("ConsolidateAllReadings = %d, want 2", n)
	}
	if len(f.p.Markers()) != 0 {
		t.Error("emptied markers should be removed")
	}
	equalKeys(t, "default", f.list.Events(), original)
	for i, e := range f.list.Events() {
		if e != original[i] {
			t.Errorf("event %d replaced", i)
		}
	}
	assertValid(t, f.p)
}

func TestConsolidateAllIdempotent(t *testing.T) {
	f := newFixture(t)
	vmd := f.a.ConstructMusicData(f.p)
	f.p.AddVariantEvent(f.a, vmd, 0, 0, 3, note(Minima, "F3"))
	f.p.AddEventInVersion(f.b, 0, 0, 4, note(Minima, "F3"))
	f.p.DuplicateEventInVariant(f.a, f.a.ConstructMusicData(f.p), 0, 0, 7)

	first := f.p.ConsolidateAllReadings()
	if first == 0 {
		t.Fatal("expected the first pass to merge and drop readings")
	}
	once := f.p.Digest()
	if n := f.p.ConsolidateAllReadings(); n != 0 {
		t.Errorf("second pass changed %d markers", n)
	}
	if f.p.Digest() != once {
		t.Error("second consolidation changed the piece")
	}
	assertValid(t, f.p)
}

func TestConsolidateMinimalPieceIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.p.AddEventInVersion(f.a, 0, 0, 3, note(Minima, "F3"))
	f.p.AddEventInVersion(f.b, 0, 0, 4, note(Minima, "E3"))
	before := f.p.Digest()
	if n := f.p.ConsolidateAllReadings(); n != 0 {
		t.Errorf("ConsolidateAllReadings = %d, want 0", n)
	}
	if f.p.Digest() != before {
		t.Error("minimal piece changed")
	}
}

func TestConsolidateComparesReducedProportions(t *testing.T) {
	f := newFixture(t)
	if !NewEvent(&ProportionChange{Value: NewProportion(4, 2)}).Equal(NewEvent(&ProportionChange{Value: NewProportion(2, 1)})) {
		t.Fatal("prop 4/2 should equal prop 2/1")
	}
	ra := NewVariantReading(f.a)
	ra.AddEvent(NewEvent(&ProportionChange{Value: NewProportion(4, 2)}))
	m := f.list.AddVariantBlock([]*Event{NewEvent(&ProportionChange{Value: NewProportion(2, 1)})}, []*VariantReading{ra})
	f.p.RecalcAllEventParams()

	if n := f.p.ConsolidateAllReadings(); n != 1 {
		t.Errorf("ConsolidateAllReadings = %d, want 1", n)
	}
	if f.list.FindMarker(m) >= 0 {
		t.Error("a reading equal to the default up to reduction should be dropped")
	}
	assertValid(t, f.p)
}
