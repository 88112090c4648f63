package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/Mensura/internal/api"
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

// Test helper functions

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	oldOut, oldErr := stdout, stderr
	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out
}

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out := captureOutput(t)
	if err := run(args); err != nil {
		t.Fatalf("run %v failed: %v", args, err)
	}
	return out.String()
}

func TestVersionCmd_Run(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.Contains(out, "mensura version "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestInfoCmd_Run(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "kyrie.mns", kyrie)
	out := mustRun(t, "info", path)
	for _, want := range []string{"Title:    Kyrie", "Composer: Anonymous", "Markers:  1", "Readings: 1", "A (Vat35)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestCheckCmd_Run(t *testing.T) {
	dir := t.TempDir()
	good := createTestFile(t, dir, "kyrie.mns", kyrie)
	if out := mustRun(t, "check", good); !strings.Contains(out, "ok") {
		t.Errorf("output = %q", out)
	}

	bad := createTestFile(t, dir, "bad.mns", "voice \"A\"\nsection mensural\nvoice 1 {\n  note XX G3\n}\n")
	captureOutput(t)
	if err := run([]string{"check", bad}); err == nil {
		t.Error("check should fail on a parse error")
	}
}

func TestCheckCmd_Run_MissingFile(t *testing.T) {
	captureOutput(t)
	if err := run([]string{"check", filepath.Join(t.TempDir(), "missing.mns")}); err == nil {
		t.Error("check should fail on a missing file")
	}
}

func TestConsolidateCmd_Run(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "redundant.mns", `voice "Cantus"
version A
section mensural
voice 1 {
  note SB G3
  var { DEFAULT: note SB A3 ; A: note SB A3 }
}
`)
	out := mustRun(t, "consolidate", path)
	if !strings.Contains(out, "consolidated 1 markers, 0 remain") {
		t.Errorf("output = %q", out)
	}
	p, err := pieceio.Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(p.Markers()) != 0 {
		t.Errorf("markers = %d after consolidation", len(p.Markers()))
	}
}

func TestMaterializeCmd_Run(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "kyrie.mns", kyrie)

	out := mustRun(t, "materialize", path, "--version", "A")
	if !strings.Contains(out, "note M F3") || strings.Contains(out, "note SB A3") {
		t.Errorf("version A timeline:\n%s", out)
	}
	out = mustRun(t, "materialize", path)
	if !strings.Contains(out, "note SB A3") || strings.Contains(out, "note M F3") {
		t.Errorf("default timeline:\n%s", out)
	}

	captureOutput(t)
	if err := run([]string{"materialize", path, "--version", "Z"}); err == nil {
		t.Error("unknown version should fail")
	}
}

func TestSetDefaultCmd_Run(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "kyrie.mns", kyrie)
	out := filepath.Join(dir, "kyrie-a.cmme")

	mustRun(t, "set-default", path, "A", "-o", out)
	p, err := pieceio.Load(out)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if p.DefaultVersion() == nil || p.DefaultVersion().ID != "A" {
		t.Errorf("default version = %v", p.DefaultVersion())
	}

	captureOutput(t)
	if err := run([]string{"set-default", path, "Z"}); err == nil {
		t.Error("unknown version should fail")
	}
}

func TestConvertCmd_Run(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "kyrie.mns", kyrie)
	xml := filepath.Join(dir, "kyrie.cmme")
	back := filepath.Join(dir, "kyrie2.mns")

	mustRun(t, "convert", src, xml)
	mustRun(t, "convert", xml, back)

	p, err := pieceio.Load(src)
	if err != nil {
		t.Fatal(err)
	}
	q, err := pieceio.Load(back)
	if err != nil {
		t.Fatal(err)
	}
	if p.Digest() != q.Digest() {
		t.Error("conversion round trip changed the piece")
	}

	captureOutput(t)
	if err := run([]string{"convert", src, filepath.Join(dir, "kyrie.midi")}); err == nil {
		t.Error("unknown output format should fail")
	}
}

func TestCatalogCmds_Run(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "kyrie.mns", kyrie)
	db := filepath.Join(dir, "catalog.db")

	out := mustRun(t, "catalog", "list", "--db", db)
	if !strings.Contains(out, "catalog is empty") {
		t.Errorf("empty list = %q", out)
	}

	out = mustRun(t, "catalog", "index", path, "--db", db)
	if !strings.Contains(out, "kyrie: 2 versions, 1 markers, 1 readings") {
		t.Errorf("index output = %q", out)
	}

	out = mustRun(t, "catalog", "list", "--db", db)
	if !strings.Contains(out, "kyrie") || !strings.Contains(out, "Kyrie") {
		t.Errorf("list output = %q", out)
	}

	out = mustRun(t, "catalog", "readings", "kyrie", "--version", "A", "--db", db)
	if !strings.Contains(out, "sections[0].voices[0].events[2]") || !strings.Contains(out, "musical") {
		t.Errorf("readings output = %q", out)
	}

	captureOutput(t)
	if err := run([]string{"catalog", "readings", "gloria", "--db", db}); err == nil {
		t.Error("unknown piece should fail")
	}
}

func TestPackAndUnpackCmd_Run(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "kyrie.mns", kyrie)

	out := mustRun(t, "pack", path)
	archivePath := filepath.Join(dir, "kyrie.edition.tar.xz")
	if !strings.Contains(out, "packed kyrie") {
		t.Errorf("pack output = %q", out)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	info := mustRun(t, "info", archivePath)
	if !strings.Contains(info, "Title:    Kyrie") {
		t.Errorf("info from archive = %q", info)
	}

	dst := filepath.Join(dir, "out")
	out = mustRun(t, "unpack", archivePath, dst)
	if !strings.Contains(out, "kyrie.mns") {
		t.Errorf("unpack output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(dst, "kyrie.mns"))
	if err != nil || string(data) != kyrie {
		t.Errorf("unpacked piece = %q, %v", data, err)
	}

	captureOutput(t)
	if err := run([]string{"consolidate", archivePath}); err == nil {
		t.Error("consolidating an archive in place should fail")
	}
}

func TestPackCmd_Run_GzipConfig(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "kyrie.mns", kyrie)
	cfg := createTestFile(t, dir, "mensura.yaml", "archive:\n  compression: gzip\n")

	mustRun(t, "--config", cfg, "pack", path)
	if _, err := os.Stat(filepath.Join(dir, "kyrie.edition.tar.gz")); err != nil {
		t.Errorf("gzip archive not written: %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := createTestFile(t, dir, "bad.yaml", "server:\n  port: 0\n")

	captureOutput(t)
	if err := run([]string{"--config", bad, "version"}); err == nil {
		t.Error("invalid config should fail")
	}
	if err := run([]string{"--log-level", "loud", "version"}); err == nil {
		t.Error("invalid log level should fail")
	}
	if err := run([]string{"bogus"}); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestServeCmd_Run(t *testing.T) {
	dir := t.TempDir()
	old := startServer
	defer func() { startServer = old }()

	var handler http.Handler
	startServer = func(ctx context.Context, s *api.Server) error {
		handler = s.Handler()
		return nil
	}

	mustRun(t, "serve", "--port", "9090", "--pieces", dir, "--db", filepath.Join(dir, "catalog.db"))
	if handler == nil {
		t.Fatal("server was not started")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), version) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}
