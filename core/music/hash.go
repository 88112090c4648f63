package music

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest returns the BLAKE3 hex digest of a canonical rendering of the
// piece: versions, sections, every default event and every reading. Two
// pieces with equal digests are structurally identical.
func (p *Piece) Digest() string {
	h := blake3.New()
	p.writeCanonical(h)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonical returns the rendering hashed by Digest.
func (p *Piece) Canonical() string {
	var sb strings.Builder
	p.writeCanonical(&sb)
	return sb.String()
}

func (p *Piece) writeCanonical(w io.Writer) {
	fmt.Fprintf(w, "piece %q %q\n", p.Meta.Title, p.Meta.Composer)
	for _, v := range p.versions {
		fmt.Fprintf(w, "version %s default=%t missing=%v\n", v.ID, v.Default, v.MissingVoices)
	}
	for si, s := range p.sections {
		fmt.Fprintf(w, "section %d %s\n", si, s.Type)
		for vnum, l := range s.voices {
			if l == nil {
				continue
			}
			fmt.Fprintf(w, " voice %d\n", vnum)
			for _, e := range l.events {
				fmt.Fprintf(w, "  %s\n", e.Key())
				m, ok := e.Body.(*VariantBegin)
				if !ok {
					continue
				}
				for _, r := range m.Marker.readings {
					fmt.Fprintf(w, "   reading %v error=%t\n", versionIDs(r.versions), r.Error)
					for _, re := range r.events {
						fmt.Fprintf(w, "    %s\n", re.Key())
					}
				}
			}
		}
	}
}
