package session

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/notation"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
)

const kyrie = `piece "Kyrie" composer "Anonymous"
voice "Cantus"
version A source "Vat35"
version B source "Trent89"
section mensural
voice 1 {
  clef C4
  note SB G3 "Ky"
  var { DEFAULT: note SB A3 ; A: note M F3 note M G3 }
  note SB B3
}
`

func sequentialIDs(t *testing.T) {
	t.Helper()
	old := newID
	n := 0
	newID = func() string {
		n++
		return fmt.Sprintf("piece-%d", n)
	}
	t.Cleanup(func() { newID = old })
}

func newWorkspace(t *testing.T, src string) (*Workspace, string) {
	t.Helper()
	p, err := notation.ParseString("kyrie.mns", src)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	w := NewWorkspace(time.Minute)
	info, err := w.Create("kyrie.mns", p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return w, info.ID
}

func voiceLen(t *testing.T, w *Workspace, id string) int {
	t.Helper()
	var n int
	if err := w.Read(id, func(p *music.Piece) error {
		n = p.VoiceList(0, 0).Len()
		return nil
	}); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return n
}

func TestCreateAndInfo(t *testing.T) {
	sequentialIDs(t)
	w, id := newWorkspace(t, kyrie)
	if id != "piece-1" {
		t.Errorf("id = %s", id)
	}
	info, err := w.Info(id)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Title != "Kyrie" || info.Versions != 2 || info.Markers != 1 || info.Revision != 0 || info.Digest == "" {
		t.Errorf("info = %+v", info)
	}
	if _, err := w.Info("nope"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Info(nope) err = %v", err)
	}
	if _, err := w.Create("x", nil); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Create(nil) err = %v", err)
	}
}

func TestCreateRejectsViews(t *testing.T) {
	p, _ := notation.ParseString("k.mns", kyrie)
	view, err := p.Materialize("A")
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if _, err := NewWorkspace(time.Minute).Create("view", view); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Create(view) err = %v", err)
	}
}

func TestOpenAndSave(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "kyrie.mns")
	if err := os.WriteFile(src, []byte(kyrie), 0644); err != nil {
		t.Fatal(err)
	}
	w := NewWorkspace(time.Minute)
	info, err := w.Open(src)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if info.Name != src {
		t.Errorf("name = %s", info.Name)
	}

	dst := filepath.Join(dir, "kyrie.cmme")
	if err := w.Save(info.ID, dst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	q, err := pieceio.Load(dst)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if q.Digest() != info.Digest {
		t.Error("saved piece differs from the session")
	}

	if _, err := w.Open(filepath.Join(dir, "missing.mns")); err == nil {
		t.Error("opening a missing file should fail")
	}
}

func TestApplyDefaultEdit(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	var changes []Change
	w.OnChange(func(c Change) { changes = append(changes, c) })

	before, _ := w.Info(id)
	n := voiceLen(t, w, id)
	out, err := w.Apply(id, Edit{Op: OpAddEvent, Index: 1, Event: "mens O"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Result != "applied" || out.Revision != 1 || out.Digest == before.Digest {
		t.Errorf("outcome = %+v", out)
	}
	if got := voiceLen(t, w, id); got != n+1 {
		t.Errorf("voice has %d events, want %d", got, n+1)
	}
	if len(changes) != 1 || changes[0].Type != ChangeEdited || changes[0].Op != OpAddEvent || changes[0].Revision != 1 {
		t.Errorf("changes = %+v", changes)
	}
}

func TestApplyNoAction(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	notified := false
	w.OnChange(func(Change) { notified = true })

	// index 2 is the Begin sentinel of the marker
	out, err := w.Apply(id, Edit{Op: OpDeleteEvent, Index: 2})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Result != "noaction" || out.Revision != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if notified {
		t.Error("a refused edit should not notify")
	}
}

func TestApplyVariantEdit(t *testing.T) {
	w, id := newWorkspace(t, kyrie)

	var first *music.Piece
	var viewLen int
	if err := w.View(id, "B", func(v *music.Piece) error {
		first = v
		viewLen = v.VoiceList(0, 0).Len()
		return nil
	}); err != nil {
		t.Fatalf("View failed: %v", err)
	}
	w.View(id, "B", func(v *music.Piece) error {
		if v != first {
			t.Error("second View should reuse the cached view")
		}
		return nil
	})

	out, err := w.Apply(id, Edit{Op: OpAddVariantEvent, Version: "B", Index: 1, Event: "dot"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Result != "newvariant" {
		t.Fatalf("result = %s", out.Result)
	}

	w.View(id, "B", func(v *music.Piece) error {
		if v == first {
			t.Error("edits should invalidate cached views")
		}
		if got := v.VoiceList(0, 0).Len(); got != viewLen+3 {
			t.Errorf("view of B has %d events, want %d", got, viewLen+3)
		}
		return nil
	})
	w.View(id, "A", func(v *music.Piece) error {
		for _, e := range v.VoiceList(0, 0).Events() {
			if e.Kind() == music.KindDot {
				t.Error("A should not see B's dot")
			}
		}
		return nil
	})

	out, err = w.Apply(id, Edit{Op: OpDeleteVariantEvent, Version: "B", Index: 2})
	if err != nil || out.Result == "noaction" {
		t.Errorf("delete variant event = %+v, %v", out, err)
	}
	out, err = w.Apply(id, Edit{Op: OpConsolidateAll})
	if err != nil || out.Count == 0 {
		t.Errorf("consolidate all = %+v, %v", out, err)
	}
	info, _ := w.Info(id)
	if info.Markers != 1 {
		t.Errorf("markers after consolidation = %d, want 1", info.Markers)
	}
}

func TestApplyReadingOps(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	if out, err := w.Apply(id, Edit{Op: OpAddVersion, Version: "C"}); err != nil || out.Result != "applied" {
		t.Fatalf("add version = %+v, %v", out, err)
	}
	if _, err := w.Apply(id, Edit{Op: OpAddVersion, Version: "C"}); err == nil {
		t.Error("duplicate version should fail")
	}
	if out, err := w.Apply(id, Edit{Op: OpSeparateReading, Version: "A", Index: 2}); err != nil || out.Result != "applied" {
		t.Errorf("separate reading = %+v, %v", out, err)
	}
	if out, err := w.Apply(id, Edit{Op: OpDeleteReading, Version: "A", Index: 2}); err != nil || out.Result == "noaction" {
		t.Errorf("delete reading = %+v, %v", out, err)
	}
	if _, err := w.Apply(id, Edit{Op: OpDeleteReading, Version: "A", Index: 2}); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete reading err = %v", err)
	}
	if out, err := w.Apply(id, Edit{Op: OpDeleteMarker, Index: 2}); err != nil || out.Result == "noaction" {
		t.Errorf("delete marker = %+v, %v", out, err)
	}
	if out, err := w.Apply(id, Edit{Op: OpDeleteVersion, Version: "C"}); err != nil || out.Result != "applied" {
		t.Errorf("delete version = %+v, %v", out, err)
	}
	info, _ := w.Info(id)
	if info.Markers != 0 || info.Versions != 2 {
		t.Errorf("info = %+v", info)
	}
}

func TestApplySetDefault(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	if _, err := w.Apply(id, Edit{Op: OpSetDefault, Version: "A"}); err != nil {
		t.Fatalf("set default failed: %v", err)
	}
	w.Read(id, func(p *music.Piece) error {
		if d := p.DefaultVersion(); d == nil || d.ID != "A" {
			t.Errorf("default version = %v", d)
		}
		return nil
	})
}

func TestApplySections(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	out, err := w.Apply(id, Edit{Op: OpInsertSection, Section: 1, Type: "text"})
	if err != nil || out.Result != "applied" {
		t.Fatalf("insert section = %+v, %v", out, err)
	}
	if info, _ := w.Info(id); info.Sections != 2 {
		t.Errorf("sections = %d", info.Sections)
	}
	if out, err := w.Apply(id, Edit{Op: OpDeleteSection, Section: 1}); err != nil || out.Result != "applied" {
		t.Errorf("delete section = %+v, %v", out, err)
	}
	if _, err := w.Apply(id, Edit{Op: OpInsertSection, Type: "motet"}); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad section type err = %v", err)
	}
}

func TestApplyErrors(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	tests := []struct {
		name string
		id   string
		edit Edit
		want error
	}{
		{"unknown session", "nope", Edit{Op: OpAddEvent, Event: "dot"}, errors.ErrNotFound},
		{"unknown op", id, Edit{Op: "transpose"}, errors.ErrUnsupported},
		{"unknown version", id, Edit{Op: OpAddVariantEvent, Version: "Z", Event: "dot"}, errors.ErrNotFound},
		{"missing version", id, Edit{Op: OpSetDefault}, errors.ErrInvalidInput},
		{"empty event", id, Edit{Op: OpAddEvent}, errors.ErrInvalidInput},
		{"bad event", id, Edit{Op: OpAddEvent, Event: "note XX G3"}, errors.ErrInvalidInput},
		{"no marker", id, Edit{Op: OpSeparateReading, Version: "A", Index: 1}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Apply(tt.id, tt.edit)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if info, _ := w.Info(id); info.Revision != 0 {
		t.Errorf("failed edits bumped the revision to %d", info.Revision)
	}
}

func TestConcurrentEdits(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	n := voiceLen(t, w, id)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Apply(id, Edit{Op: OpAddEvent, Index: 1, Event: "dot"}); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
			w.View(id, "A", func(*music.Piece) error { return nil })
		}()
	}
	wg.Wait()

	info, _ := w.Info(id)
	if info.Revision != workers {
		t.Errorf("revision = %d, want %d", info.Revision, workers)
	}
	if got := voiceLen(t, w, id); got != n+workers {
		t.Errorf("voice has %d events, want %d", got, n+workers)
	}
	w.Read(id, func(p *music.Piece) error {
		for _, err := range p.Validate() {
			t.Errorf("Validate: %v", err)
		}
		return nil
	})
}

func TestListAndClose(t *testing.T) {
	sequentialIDs(t)
	w := NewWorkspace(time.Minute)
	var closed []string
	w.OnChange(func(c Change) {
		if c.Type == ChangeClosed {
			closed = append(closed, c.PieceID)
		}
	})
	for i := 0; i < 3; i++ {
		p, _ := notation.ParseString("k.mns", kyrie)
		if _, err := w.Create(fmt.Sprintf("k%d", i), p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	list := w.List()
	if len(list) != 3 || list[0].ID != "piece-1" || list[2].ID != "piece-3" {
		t.Errorf("list = %+v", list)
	}
	w.View("piece-2", "A", func(*music.Piece) error { return nil })
	if err := w.Close("piece-2"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Len() != 2 || w.views.Len() != 0 {
		t.Errorf("sessions = %d, views = %d", w.Len(), w.views.Len())
	}
	if err := w.Close("piece-2"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Close err = %v", err)
	}
	if len(closed) != 1 || closed[0] != "piece-2" {
		t.Errorf("closed = %v", closed)
	}
}

func TestExport(t *testing.T) {
	w, id := newWorkspace(t, kyrie)
	data, err := w.Export(id, pieceio.FormatMNS)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(data), `piece "Kyrie"`) {
		t.Errorf("export = %s", data)
	}
	if _, err := w.Export(id, "pdf"); !stderrors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Export(pdf) err = %v", err)
	}
}

func TestExportConsolidates(t *testing.T) {
	w, id := newWorkspace(t, `piece "Kyrie"
voice "Cantus"
version A
version B
section mensural
voice 1 {
  clef C4
  var { DEFAULT: note SB A3 ; A: rest M ; B: rest M }
  var { DEFAULT: note SB B3 }
}
`)
	var changes []Change
	w.OnChange(func(c Change) { changes = append(changes, c) })
	if err := w.View(id, "A", func(*music.Piece) error { return nil }); err != nil {
		t.Fatalf("View failed: %v", err)
	}

	data, err := w.Export(id, pieceio.FormatMNS)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n := strings.Count(string(data), "var {"); n != 1 {
		t.Errorf("exported markers = %d, want 1:\n%s", n, data)
	}
	info, _ := w.Info(id)
	if info.Markers != 1 || info.Revision != 1 {
		t.Errorf("info after export = %+v", info)
	}
	if len(changes) != 1 || changes[0].Op != OpConsolidateAll || changes[0].Revision != 1 {
		t.Errorf("changes = %+v", changes)
	}
	if n := w.views.Len(); n != 0 {
		t.Errorf("cached views after export = %d, want 0", n)
	}

	// nothing left to consolidate
	dst := filepath.Join(t.TempDir(), "kyrie.mns")
	if err := w.Save(id, dst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved, _ := os.ReadFile(dst)
	if string(saved) != string(data) {
		t.Errorf("saved %q, exported %q", saved, data)
	}
	if info, _ := w.Info(id); info.Revision != 1 || len(changes) != 1 {
		t.Errorf("second write changed revision %d, changes %d", info.Revision, len(changes))
	}
}
