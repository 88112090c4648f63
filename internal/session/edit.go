package session

import (
	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/notation"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// Edit operations accepted by Apply.
const (
	OpAddEvent           = "add_event"
	OpDeleteEvent        = "delete_event"
	OpAddVariantEvent    = "add_variant_event"
	OpDeleteVariantEvent = "delete_variant_event"
	OpDuplicateEvents    = "duplicate_events"
	OpSeparateReading    = "separate_reading"
	OpCombineReading     = "combine_reading"
	OpDeleteReading      = "delete_reading"
	OpDeleteMarker       = "delete_marker"
	OpAddVersion         = "add_version"
	OpDeleteVersion      = "delete_version"
	OpSetDefault         = "set_default"
	OpSetTextDefault     = "set_text_default"
	OpConsolidate        = "consolidate"
	OpConsolidateAll     = "consolidate_all"
	OpInsertSection      = "insert_section"
	OpDeleteSection      = "delete_section"
)

// Edit is one edit request. Section, Voice and Index address an event in
// the default timeline, or in Version's timeline for the variant
// operations. Event holds one event in text notation.
type Edit struct {
	Op      string `json:"op"`
	Version string `json:"version,omitempty"`
	Section int    `json:"section"`
	Voice   int    `json:"voice"`
	Index   int    `json:"index"`
	Last    int    `json:"last,omitempty"`
	Event   string `json:"event,omitempty"`
	Type    string `json:"type,omitempty"`
	Voices  int    `json:"voices,omitempty"`
}

// Outcome reports what Apply did.
type Outcome struct {
	Op       string `json:"op"`
	Result   string `json:"result"`
	Count    int    `json:"count,omitempty"`
	Revision int    `json:"revision"`
	Digest   string `json:"digest"`
}

// Apply performs e on the session's piece while holding its lock. A refused
// edit returns the NoAction result without an error and leaves the
// revision unchanged.
func (w *Workspace) Apply(id string, e Edit) (Outcome, error) {
	s, err := w.Get(id)
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	out, err := w.apply(s, e)
	if err == nil && out.Result != music.NoAction.String() {
		s.revision++
		w.dropViews(s.id)
	}
	out.Op = e.Op
	out.Revision = s.revision
	out.Digest = s.piece.Digest()
	s.mu.Unlock()

	if err != nil {
		return out, err
	}
	logging.SessionEvent(ChangeEdited, id, "op", e.Op, "result", out.Result, "revision", out.Revision)
	if out.Result != music.NoAction.String() {
		w.notify(Change{Type: ChangeEdited, PieceID: id, Op: e.Op, Result: out.Result, Revision: out.Revision})
	}
	return out, nil
}

// apply dispatches e; the caller holds s.mu.
func (w *Workspace) apply(s *Session, e Edit) (Outcome, error) {
	p := s.piece
	loc := music.Location{Section: e.Section, Voice: e.Voice, Index: e.Index}

	switch e.Op {
	case OpAddEvent:
		ev, err := parseEvent(e.Event)
		if err != nil {
			return Outcome{}, err
		}
		return result(p.AddEvent(e.Section, e.Voice, e.Index, ev)), nil

	case OpDeleteEvent:
		_, res := p.DeleteEvent(e.Section, e.Voice, e.Index)
		return result(res), nil

	case OpAddVariantEvent:
		v, vmd, err := w.versionView(s, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		ev, err := parseEvent(e.Event)
		if err != nil {
			return Outcome{}, err
		}
		return result(p.AddVariantEvent(v, vmd, e.Section, e.Voice, e.Index, ev)), nil

	case OpDeleteVariantEvent:
		v, vmd, err := w.versionView(s, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		_, res := p.DeleteVariantEvent(v, vmd, e.Section, e.Voice, e.Index)
		return result(res), nil

	case OpDuplicateEvents:
		v, vmd, err := w.versionView(s, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		last := e.Last
		if last < e.Index {
			last = e.Index
		}
		r, err := p.DuplicateEventsInVariant(v, vmd, e.Section, e.Voice, e.Index, last)
		if err != nil {
			return Outcome{}, err
		}
		if r == nil {
			return result(music.NoAction), nil
		}
		return Outcome{Result: music.Applied.String(), Count: r.Len()}, nil

	case OpSeparateReading:
		v, err := version(p, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		mv, err := marker(p, loc)
		if err != nil {
			return Outcome{}, err
		}
		if p.CreateSeparateReadingForVersion(v, mv.Marker) == nil {
			return result(music.NoAction), nil
		}
		return result(music.Applied), nil

	case OpCombineReading:
		return result(p.CombineReadingWithNext(e.Section, e.Voice, e.Index)), nil

	case OpDeleteReading:
		v, err := version(p, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		mv, err := marker(p, loc)
		if err != nil {
			return Outcome{}, err
		}
		r := mv.Marker.ReadingFor(v)
		if r == nil {
			return Outcome{}, errors.NewNotFound("reading", e.Version+" at "+loc.String())
		}
		return result(p.DeleteReading(mv.Marker, r)), nil

	case OpDeleteMarker:
		return result(p.DeleteVariantMarker(e.Section, e.Voice, e.Index)), nil

	case OpAddVersion:
		if err := p.AddVersion(&music.VariantVersion{ID: e.Version}); err != nil {
			return Outcome{}, err
		}
		return result(music.Applied), nil

	case OpDeleteVersion:
		v, err := version(p, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		if err := p.DeleteVersion(v); err != nil {
			return Outcome{}, err
		}
		return result(music.Applied), nil

	case OpSetDefault, OpSetTextDefault:
		v, err := version(p, e.Version)
		if err != nil {
			return Outcome{}, err
		}
		set := p.SetVersionAsDefault
		if e.Op == OpSetTextDefault {
			set = p.SetVersionTextAsDefault
		}
		if err := set(v); err != nil {
			return Outcome{}, err
		}
		return result(music.Applied), nil

	case OpConsolidate:
		if !p.ConsolidateReadings(loc) {
			return result(music.NoAction), nil
		}
		return result(music.Applied), nil

	case OpConsolidateAll:
		n := p.ConsolidateAllReadings()
		if n == 0 {
			return result(music.NoAction), nil
		}
		return Outcome{Result: music.Applied.String(), Count: n}, nil

	case OpInsertSection:
		t, err := music.ParseSectionType(e.Type)
		if err != nil {
			return Outcome{}, errors.NewValidation("type", err.Error())
		}
		voices := e.Voices
		if voices <= 0 {
			voices = p.NumVoices()
		}
		return result(p.InsertSection(e.Section, music.NewMusicSection(t, voices))), nil

	case OpDeleteSection:
		return result(p.DeleteSection(e.Section)), nil
	}
	return Outcome{}, errors.NewUnsupported("edit operation", e.Op)
}

func result(r music.EditResult) Outcome {
	return Outcome{Result: r.String()}
}

func parseEvent(src string) (*music.Event, error) {
	if src == "" {
		return nil, errors.NewValidation("event", "must not be empty")
	}
	return notation.ParseEvent(src)
}

func version(p *music.Piece, id string) (*music.VariantVersion, error) {
	if id == "" {
		return nil, errors.NewValidation("version", "must not be empty")
	}
	v := p.Version(id)
	if v == nil {
		return nil, errors.NewNotFound("version", id)
	}
	return v, nil
}

// versionView returns the version and its cached view; the caller holds
// s.mu.
func (w *Workspace) versionView(s *Session, id string) (*music.VariantVersion, *music.Piece, error) {
	v, err := version(s.piece, id)
	if err != nil {
		return nil, nil, err
	}
	vmd, err := w.view(s, id)
	if err != nil {
		return nil, nil, err
	}
	return v, vmd, nil
}

func marker(p *music.Piece, loc music.Location) (music.MarkerView, error) {
	mv, ok := p.MarkerView(loc)
	if !ok {
		return music.MarkerView{}, errors.NewNotFound("variant marker", loc.String())
	}
	return mv, nil
}
