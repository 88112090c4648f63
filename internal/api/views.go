package api

import (
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/notation"
)

// VersionView describes one variant version.
type VersionView struct {
	ID            string `json:"id"`
	SourceName    string `json:"source_name,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
	Editor        string `json:"editor,omitempty"`
	Description   string `json:"description,omitempty"`
	MissingVoices []int  `json:"missing_voices,omitempty"` // 1-based
	Default       bool   `json:"default,omitempty"`
}

// MarkerJSON is a variant marker with its readings.
type MarkerJSON struct {
	Section       int           `json:"section"`
	Voice         int           `json:"voice"`
	Index         int           `json:"index"`
	DefaultLength string        `json:"default_length"`
	Types         string        `json:"types"`
	Readings      []ReadingJSON `json:"readings"`
}

// ReadingJSON is one reading of a marker. The default segment comes first
// with Versions set to DEFAULT.
type ReadingJSON struct {
	Versions []string `json:"versions"`
	Error    bool     `json:"error,omitempty"`
	Events   []string `json:"events"`
}

// EventView is one event of a timeline. Marker sentinels carry a kind only.
type EventView struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
}

// VoiceView is the event list of one voice in one section.
type VoiceView struct {
	Voice  int         `json:"voice"`
	Events []EventView `json:"events"`
}

// SectionView is one section of a timeline.
type SectionView struct {
	Section int         `json:"section"`
	Type    string      `json:"type"`
	Text    string      `json:"text,omitempty"`
	Voices  []VoiceView `json:"voices,omitempty"`
}

// TimelineView is a materialized version view.
type TimelineView struct {
	Version  string        `json:"version"`
	Digest   string        `json:"digest"`
	Sections []SectionView `json:"sections"`
}

func versionViews(p *music.Piece) []VersionView {
	vs := p.Versions()
	out := make([]VersionView, 0, len(vs))
	for _, v := range vs {
		vv := VersionView{
			ID:          v.ID,
			SourceName:  v.SourceName,
			SourceID:    v.SourceID,
			Editor:      v.Editor,
			Description: v.Description,
			Default:     v.Default,
		}
		for _, m := range v.MissingVoices {
			vv.MissingVoices = append(vv.MissingVoices, m+1)
		}
		out = append(out, vv)
	}
	return out
}

func markerViews(p *music.Piece) []MarkerJSON {
	mvs := p.Markers()
	out := make([]MarkerJSON, 0, len(mvs))
	for _, mv := range mvs {
		mj := MarkerJSON{
			Section:       mv.Location.Section,
			Voice:         mv.Location.Voice,
			Index:         mv.Location.Index,
			DefaultLength: mv.Marker.DefaultLength().String(),
			Types:         mv.Marker.Types().String(),
			Readings:      make([]ReadingJSON, 0, len(mv.Readings)),
		}
		for _, rv := range mv.Readings {
			mj.Readings = append(mj.Readings, ReadingJSON{
				Versions: rv.VersionIDs(),
				Error:    rv.Error,
				Events:   eventTexts(rv.Events),
			})
		}
		out = append(out, mj)
	}
	return out
}

func eventTexts(events []*music.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = notation.FormatEvent(e)
	}
	return out
}

func timelineView(id string, view *music.Piece) TimelineView {
	tv := TimelineView{Version: id, Digest: view.Digest()}
	for snum, s := range view.Sections() {
		sv := SectionView{Section: snum, Type: s.Type.String(), Text: s.Text}
		for vnum, l := range s.VoiceLists() {
			if l == nil {
				continue
			}
			vv := VoiceView{Voice: vnum, Events: make([]EventView, 0, l.Len())}
			for i, e := range l.Events() {
				ev := EventView{Index: i, Kind: e.Kind().String()}
				switch e.Kind() {
				case music.KindVariantBegin, music.KindVariantEnd, music.KindSectionEnd:
				default:
					ev.Text = notation.FormatEvent(e)
				}
				vv.Events = append(vv.Events, ev)
			}
			sv.Voices = append(sv.Voices, vv)
		}
		tv.Sections = append(tv.Sections, sv)
	}
	return tv
}
