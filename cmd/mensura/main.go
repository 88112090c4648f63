// Command mensura inspects, edits and serves mensural music editions with
// variant readings.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/core/notation"
	"github.com/FocuswithJustin/Mensura/internal/api"
	"github.com/FocuswithJustin/Mensura/internal/archive"
	"github.com/FocuswithJustin/Mensura/internal/catalog"
	"github.com/FocuswithJustin/Mensura/internal/config"
	"github.com/FocuswithJustin/Mensura/internal/logging"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
	"github.com/FocuswithJustin/Mensura/internal/session"
)

var version = "0.1.0"

// Output streams and the server entry point are injectable for testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	startServer = func(ctx context.Context, s *api.Server) error { return s.Start(ctx) }
)

// CLI defines the command-line interface.
type CLI struct {
	// Global flags
	Config    string `help:"Configuration file (YAML)" type:"path" env:"MENSURA_CONFIG"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error"`
	LogFormat string `name:"log-format" help:"Log format: text or json"`

	Info        InfoCmd        `cmd:"" help:"Summarize a piece or edition archive"`
	Check       CheckCmd       `cmd:"" help:"Validate a piece"`
	Consolidate ConsolidateCmd `cmd:"" help:"Merge identical readings and drop redundant markers"`
	Materialize MaterializeCmd `cmd:"" help:"Print the timeline of one version"`
	SetDefault  SetDefaultCmd  `cmd:"" name:"set-default" help:"Promote a version's readings into the default timeline"`
	Convert     ConvertCmd     `cmd:"" help:"Convert between piece formats"`
	Catalog     CatalogGroup   `cmd:"" help:"Apparatus catalog operations"`
	Pack        PackCmd        `cmd:"" help:"Pack a piece into an edition archive"`
	Unpack      UnpackCmd      `cmd:"" help:"Verify and extract an edition archive"`
	Serve       ServeCmd       `cmd:"" help:"Start the REST API server"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// CatalogGroup contains catalog operations.
type CatalogGroup struct {
	Index    CatalogIndexCmd    `cmd:"" help:"Index pieces into the catalog"`
	List     CatalogListCmd     `cmd:"" help:"List indexed pieces"`
	Readings CatalogReadingsCmd `cmd:"" help:"List the readings of an indexed piece"`
}

// loadConfig reads the configuration file, applies flag overrides and
// initializes logging.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return cfg, err
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logging.InitLoggerTo(stderr, level, format)
	return cfg, nil
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	opts := []kong.Option{
		kong.Name("mensura"),
		kong.Description("Mensura - mensural music editions with variant readings"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	}
	return kong.New(cli, append(opts, options...)...)
}

func run(args []string, options ...kong.Option) error {
	var cli CLI
	parser, err := newParser(&cli, options...)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	return ctx.Run(&cfg)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(stderr, "mensura: %v\n", err)
		os.Exit(1)
	}
}

// loadPiece reads a piece file or the piece inside an edition archive.
func loadPiece(path string) (*music.Piece, error) {
	if archive.IsSupportedFormat(path) {
		p, _, err := archive.LoadPiece(path)
		return p, err
	}
	return pieceio.Load(path)
}

// outputPath returns out, or in when editing in place. Archives cannot be
// rewritten in place.
func outputPath(in, out string) (string, error) {
	if out != "" {
		return out, nil
	}
	if archive.IsSupportedFormat(in) {
		return "", fmt.Errorf("%s is an edition archive; use --out to write the piece", in)
	}
	return in, nil
}

// pieceID derives a catalog ID from a file name.
func pieceID(path string) string {
	if archive.IsSupportedFormat(path) {
		return archive.EditionID(path)
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// InfoCmd summarizes a piece.
type InfoCmd struct {
	Path string `arg:"" help:"Piece file or edition archive" type:"existingfile"`
}

func (c *InfoCmd) Run() error {
	p, err := loadPiece(c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Title:    %s\n", p.Meta.Title)
	if p.Meta.Composer != "" {
		fmt.Fprintf(stdout, "Composer: %s\n", p.Meta.Composer)
	}
	fmt.Fprintf(stdout, "Voices:   %d\n", p.NumVoices())
	fmt.Fprintf(stdout, "Sections: %d\n", p.NumSections())
	fmt.Fprintf(stdout, "Markers:  %d\n", len(p.Markers()))
	fmt.Fprintf(stdout, "Readings: %d\n", len(p.Readings()))
	fmt.Fprintf(stdout, "Digest:   %s\n", p.Digest())
	if vs := p.Versions(); len(vs) > 0 {
		fmt.Fprintf(stdout, "Versions:\n")
		for _, v := range vs {
			line := "  " + v.ID
			if v.SourceName != "" {
				line += " (" + v.SourceName + ")"
			}
			if v.Default {
				line += " [default]"
			}
			fmt.Fprintln(stdout, line)
		}
	}
	return nil
}

// CheckCmd validates a piece.
type CheckCmd struct {
	Path string `arg:"" help:"Piece file or edition archive" type:"existingfile"`
}

func (c *CheckCmd) Run() error {
	p, err := loadPiece(c.Path)
	if err != nil {
		return err
	}
	errs := p.Validate()
	if len(errs) == 0 {
		fmt.Fprintf(stdout, "%s: ok\n", c.Path)
		return nil
	}
	for _, e := range errs {
		fmt.Fprintf(stdout, "%s: %v\n", c.Path, e)
	}
	return fmt.Errorf("%s: %d problems", c.Path, len(errs))
}

// ConsolidateCmd consolidates every marker of a piece.
type ConsolidateCmd struct {
	Path string `arg:"" help:"Piece file" type:"existingfile"`
	Out  string `short:"o" help:"Output path (default: rewrite in place)" type:"path"`
}

func (c *ConsolidateCmd) Run() error {
	out, err := outputPath(c.Path, c.Out)
	if err != nil {
		return err
	}
	p, err := loadPiece(c.Path)
	if err != nil {
		return err
	}
	n := p.ConsolidateAllReadings()
	if err := pieceio.Save(out, p); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "consolidated %d markers, %d remain\n", n, len(p.Markers()))
	return nil
}

// MaterializeCmd prints the timeline a version sees.
type MaterializeCmd struct {
	Path    string `arg:"" help:"Piece file or edition archive" type:"existingfile"`
	Version string `short:"v" help:"Version ID" default:"DEFAULT"`
}

func (c *MaterializeCmd) Run() error {
	p, err := loadPiece(c.Path)
	if err != nil {
		return err
	}
	view, err := p.Materialize(c.Version)
	if err != nil {
		return err
	}
	for snum, s := range view.Sections() {
		fmt.Fprintf(stdout, "section %d %s\n", snum+1, s.Type)
		if s.Type == music.SectionText {
			fmt.Fprintf(stdout, "  %q\n", s.Text)
			continue
		}
		for vnum, l := range s.VoiceLists() {
			if l == nil {
				continue
			}
			fmt.Fprintf(stdout, "  voice %d\n", vnum+1)
			for _, e := range l.Events() {
				switch e.Kind() {
				case music.KindVariantBegin, music.KindVariantEnd, music.KindSectionEnd:
					continue
				}
				fmt.Fprintf(stdout, "    %s\n", notation.FormatEvent(e))
			}
		}
	}
	return nil
}

// SetDefaultCmd makes a version's readings the default timeline.
type SetDefaultCmd struct {
	Path    string `arg:"" help:"Piece file" type:"existingfile"`
	Version string `arg:"" help:"Version ID"`
	Text    bool   `help:"Promote only textual readings"`
	Out     string `short:"o" help:"Output path (default: rewrite in place)" type:"path"`
}

func (c *SetDefaultCmd) Run() error {
	out, err := outputPath(c.Path, c.Out)
	if err != nil {
		return err
	}
	p, err := loadPiece(c.Path)
	if err != nil {
		return err
	}
	v := p.Version(c.Version)
	if v == nil {
		return fmt.Errorf("version %q not found", c.Version)
	}
	if c.Text {
		err = p.SetVersionTextAsDefault(v)
	} else {
		err = p.SetVersionAsDefault(v)
	}
	if err != nil {
		return err
	}
	if err := pieceio.Save(out, p); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "version %s is now the default\n", v.ID)
	return nil
}

// ConvertCmd converts a piece between formats chosen by extension.
type ConvertCmd struct {
	In  string `arg:"" help:"Input piece file or edition archive" type:"existingfile"`
	Out string `arg:"" help:"Output piece file (.mns or .cmme)" type:"path"`
}

func (c *ConvertCmd) Run() error {
	p, err := loadPiece(c.In)
	if err != nil {
		return err
	}
	if err := pieceio.Save(c.Out, p); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", c.Out)
	return nil
}

// CatalogIndexCmd indexes pieces.
type CatalogIndexCmd struct {
	Paths []string `arg:"" help:"Piece files or edition archives"`
	DB    string   `help:"Catalog database (default: catalog.path)" type:"path"`
}

func (c *CatalogIndexCmd) Run(cfg *config.Config) error {
	cat, err := openCatalog(c.DB, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	for _, path := range c.Paths {
		p, err := loadPiece(path)
		if err != nil {
			return err
		}
		id := pieceID(path)
		stats, err := cat.Index(ctx, id, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %d versions, %d markers, %d readings\n", id, stats.Versions, stats.Markers, stats.Readings)
	}
	return nil
}

// CatalogListCmd lists indexed pieces.
type CatalogListCmd struct {
	DB string `help:"Catalog database (default: catalog.path)" type:"path"`
}

func (c *CatalogListCmd) Run(cfg *config.Config) error {
	cat, err := openCatalog(c.DB, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	pieces, err := cat.Pieces(context.Background())
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		fmt.Fprintln(stdout, "catalog is empty")
		return nil
	}
	for _, p := range pieces {
		fmt.Fprintf(stdout, "%-20s %-30s %d voices  %s\n", p.ID, p.Title, p.Voices, p.Digest[:12])
	}
	return nil
}

// CatalogReadingsCmd lists the readings of an indexed piece.
type CatalogReadingsCmd struct {
	ID      string `arg:"" help:"Catalog piece ID"`
	Version string `short:"v" help:"Only readings owned by this version"`
	DB      string `help:"Catalog database (default: catalog.path)" type:"path"`
}

func (c *CatalogReadingsCmd) Run(cfg *config.Config) error {
	cat, err := openCatalog(c.DB, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	var readings []catalog.Reading
	if c.Version != "" {
		readings, err = cat.ReadingsByVersion(ctx, c.ID, c.Version)
	} else {
		readings, err = cat.Readings(ctx, c.ID)
	}
	if err != nil {
		return err
	}
	for _, r := range readings {
		fmt.Fprintf(stdout, "%s  %-10s %-16s %d events, %s minims\n",
			r.Location, strings.Join(r.Versions, ","), r.Types, r.Events, r.MusicTime)
	}
	return nil
}

func openCatalog(path string, cfg *config.Config) (*catalog.Catalog, error) {
	if path == "" {
		path = cfg.Catalog.Path
	}
	return catalog.Open(path)
}

// PackCmd packs a piece into an edition archive.
type PackCmd struct {
	Path string `arg:"" help:"Piece file" type:"existingfile"`
	Out  string `short:"o" help:"Archive path (default: <name>.edition plus the configured compression)" type:"path"`
}

func (c *PackCmd) Run(cfg *config.Config) error {
	out := c.Out
	if out == "" {
		out = filepath.Join(filepath.Dir(c.Path), pieceID(c.Path)+".edition"+archive.Extension(cfg.Archive.Compression))
	}
	m, err := archive.PackPiece(c.Path, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "packed %s (%d files) into %s\n", m.EditionID, len(m.Files), out)
	return nil
}

// UnpackCmd verifies and extracts an edition archive.
type UnpackCmd struct {
	Path string `arg:"" help:"Edition archive" type:"existingfile"`
	Dir  string `arg:"" help:"Destination directory" type:"path"`
}

func (c *UnpackCmd) Run() error {
	m, err := archive.Unpack(c.Path, c.Dir)
	if err != nil {
		return err
	}
	for _, f := range m.Files {
		fmt.Fprintf(stdout, "%s  %d bytes  blake3:%s\n", f.Name, f.Size, f.BLAKE3[:16])
	}
	return nil
}

// ServeCmd starts the REST API.
type ServeCmd struct {
	Port   int    `help:"HTTP server port (default: server.port)"`
	Pieces string `help:"Directory pieces are opened from (default: server.pieces_dir)" type:"path"`
	DB     string `help:"Catalog database (default: catalog.path)" type:"path"`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	apiCfg := api.Config{
		Port:           cfg.Server.Port,
		PiecesDir:      cfg.Server.PiecesDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
		APIKey:         cfg.Server.APIKey,
		EditsPerMinute: cfg.Server.EditsPerMinute,
		EditBurst:      cfg.Server.EditBurst,
	}
	if key := os.Getenv("MENSURA_API_KEY"); key != "" {
		apiCfg.APIKey = key
	}
	if err := api.ValidateAPIKey(apiCfg.APIKey); err != nil {
		return err
	}
	if c.Port != 0 {
		apiCfg.Port = c.Port
	}
	if c.Pieces != "" {
		apiCfg.PiecesDir = c.Pieces
	}

	cat, err := openCatalog(c.DB, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return startServer(ctx, api.New(apiCfg, session.NewWorkspace(cfg.Cache.TTL), cat))
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "mensura version %s\n", version)
	return nil
}
