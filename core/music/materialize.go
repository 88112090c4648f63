package music

import "github.com/FocuswithJustin/Mensura/core/errors"

// ConstructMusicData materializes p for version v: at every marker the
// version's reading replaces the default segment, sentinels are kept, every
// other event is shared by pointer with p, and voices missing from the
// source are dropped. The result is a read-only view; edits made through
// AddVariantEvent and friends are written back into p.
func (v *VariantVersion) ConstructMusicData(p *Piece) *Piece {
	vmd := &Piece{
		Meta:     p.Meta,
		voices:   p.voices,
		versions: p.versions,
		version:  v,
	}
	for _, s := range p.sections {
		ns := &MusicSection{
			Type:           s.Type,
			Tacets:         s.Tacets,
			BaseColoration: s.BaseColoration,
			Text:           s.Text,
			voices:         make([]*VoiceEventList, len(s.voices)),
		}
		for vnum, l := range s.voices {
			if l == nil || v.IsMissingVoice(vnum) {
				continue
			}
			ns.voices[vnum] = l.materialize(v, ns)
		}
		vmd.sections = append(vmd.sections, ns)
	}
	return vmd
}

func (l *VoiceEventList) materialize(v *VariantVersion, s *MusicSection) *VoiceEventList {
	ml := &VoiceEventList{
		voice:        l.voice,
		section:      s,
		chant:        l.chant,
		materialized: true,
		state:        l.state,
		events:       make([]*Event, 0, len(l.events)),
	}
	for i := 0; i < len(l.events); i++ {
		e := l.events[i]
		ml.events = append(ml.events, e)
		b, ok := e.Body.(*VariantBegin)
		if !ok {
			continue
		}
		r := b.Marker.ReadingFor(v)
		if r == nil {
			continue
		}
		end := l.MatchingEnd(i)
		if end < 0 {
			continue
		}
		ml.events = append(ml.events, r.events...)
		ml.events = append(ml.events, l.events[end])
		i = end
	}
	return ml
}

// Materialize builds the view of the version with the given ID. The
// DEFAULT ID yields the default timeline as seen by unlisted versions.
func (p *Piece) Materialize(id string) (*Piece, error) {
	if id == DefaultVersionID {
		return (&VariantVersion{ID: DefaultVersionID}).ConstructMusicData(p), nil
	}
	v := p.Version(id)
	if v == nil {
		return nil, errors.NewNotFound("version", id)
	}
	return v.ConstructMusicData(p), nil
}
