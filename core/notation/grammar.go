// Package notation reads and writes the compact text notation for pieces.
//
// A file lists piece metadata, voices and versions, then sections:
//
//	piece "Kyrie" composer "Anonymous"
//	voice "Cantus"
//	voice "Tenor"
//	version A source "Vat35" missing 2
//	version B source "Trent89"
//	section mensural
//	voice 1 {
//	  clef C4 mens O note SB G3 "Ky"
//	  var { DEFAULT: note SB A3 ; A, B!: note M F3 note M G3 }
//	}
//
// Voice numbers are 1-based. In a var block the reading listed as DEFAULT
// supplies the default segment; a trailing "!" marks a scribal error.
package notation

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// mnsFile is the participle grammar for a whole piece.
//
//nolint:govet // participle grammar tags are not standard struct tags
type mnsFile struct {
	Meta     []*mnsMeta      `@@*`
	Voices   []*mnsVoiceDecl `("voice" @@)*`
	Versions []*mnsVersion   `("version" @@)*`
	Sections []*mnsSection   `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsMeta struct {
	Title    *string `  "piece" @String`
	Composer *string `| "composer" @String`
	Editor   *string `| "editor" @String`
	Notes    *string `| "notes" @String`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsVoiceDecl struct {
	Name      string `@String`
	Editorial bool   `@"editorial"?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsVersion struct {
	Pos lexer.Position

	ID    string            `@Ident`
	Attrs []*mnsVersionAttr `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsVersionAttr struct {
	Source   *string `  "source" @String`
	SourceID *string `| "sourceid" @String`
	Editor   *string `| "editor" @String`
	Desc     *string `| "desc" @String`
	Missing  []int   `| "missing" @Int ("," @Int)*`
	Default  bool    `| @"default"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsSection struct {
	Pos lexer.Position

	Type   string           `"section" @("mensural" | "plainchant" | "text")`
	Text   *string          `@String?`
	Base   *mnsColor        `("base" @@)?`
	Tacets []*mnsTacet      `("tacet" @@)*`
	Voices []*mnsVoiceBlock `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsTacet struct {
	Voice int    `@Int`
	Text  string `@String?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsVoiceBlock struct {
	Pos lexer.Position

	Voice  int         `"voice" @Int "{"`
	Events []*mnsEvent `@@* "}"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsEvent struct {
	Pos lexer.Position

	Editorial bool     `@"ed"?`
	Error     bool     `@"err"?`
	Body      *mnsBody `@@`
	Comment   *string  `("comment" @String)?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsBody struct {
	Note    *mnsNote    `  "note" @@`
	Rest    *string     `| "rest" @Ident`
	Clef    *mnsClef    `| "clef" @@`
	Mens    *string     `| "mens" @Ident`
	Color   *mnsColor   `| "color" @@`
	Dot     bool        `| @"dot"`
	Bar     *mnsBar     `| @@`
	Ann     *string     `| "ann" @String`
	Text    *string     `| "text" @String`
	Lacuna  *string     `| "lacuna" @(Ratio | Int)`
	Prop    *string     `| "prop" @(Ratio | Int)`
	Custos  *string     `| "custos" @Ident`
	LineEnd *mnsLineEnd `| @@`
	Multi   []*mnsEvent `| "multi" "{" @@+ "}"`
	Variant *mnsVariant `| "var" "{" @@ "}"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsNote struct {
	Type       string  `@Ident`
	Pitch      string  `@Ident`
	Accidental string  `@("flat" | "sharp")?`
	Syllable   *string `@String?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsClef struct {
	Shape     string `@Ident`
	Signature bool   `@"sig"?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsColor struct {
	Color string `@Ident`
	Fill  string `@Ident`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsBar struct {
	Bar    bool `@"bar"`
	Lines  int  `@Int?`
	Repeat bool `@"repeat"?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsLineEnd struct {
	LineEnd bool `@"lineend"`
	Page    bool `@"page"?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsVariant struct {
	Readings []*mnsReading `@@ (";" @@)*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type mnsReading struct {
	Versions []string    `@Ident ("," @Ident)*`
	Error    bool        `@"!"? ":"`
	Events   []*mnsEvent `@@*`
}

// mnsLexer defines the tokens of the notation. Order matters: Ratio must
// come before Int.
var mnsLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ratio", Pattern: `\d+/\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[{}:;,!]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var fileParser = participle.MustBuild[mnsFile](
	participle.Lexer(mnsLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

var eventParser = participle.MustBuild[mnsEvent](
	participle.Lexer(mnsLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)
