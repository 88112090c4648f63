package music

import "slices"

// DefaultVersionID is the sentinel version ID meaning "the default reading,
// shared by every version without an explicit reading".
const DefaultVersionID = "DEFAULT"

// VariantVersion identifies one source witness of the piece.
type VariantVersion struct {
	ID          string
	SourceName  string
	SourceID    string
	Editor      string
	Description string

	// MissingVoices lists 0-based voice numbers absent from this source.
	MissingVoices []int

	// Default marks the version whose readings form the default timeline.
	Default bool
}

// IsMissingVoice reports whether voice vnum is absent from the source.
func (v *VariantVersion) IsMissingVoice(vnum int) bool {
	return slices.Contains(v.MissingVoices, vnum)
}

func (v *VariantVersion) String() string {
	if v == nil {
		return DefaultVersionID
	}
	return v.ID
}

func versionIDs(vs []*VariantVersion) []string {
	ids := make([]string, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
	}
	return ids
}
