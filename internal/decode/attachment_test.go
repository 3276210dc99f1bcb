package decode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nhle/mailgrab/internal/model"
)

func testHeader() model.Header {
	return model.Header{
		Date:        time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC),
		Subject:     "Quarterly report",
		MessageID:   "<abc@mail.example.com>",
		FromAddress: "alice@example.com",
	}
}

func TestDeriveAttachmentIDDeterministic(t *testing.T) {
	hdr := testHeader()

	a := DeriveAttachmentID(&hdr, "1.2")
	b := DeriveAttachmentID(&hdr, "1.2")
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}

	if c := DeriveAttachmentID(&hdr, "1.3"); c == a {
		t.Error("different part paths must produce different ids")
	}

	other := hdr
	other.MessageID = "<other@mail.example.com>"
	if c := DeriveAttachmentID(&other, "1.2"); c == a {
		t.Error("different message ids must produce different ids")
	}
}

func TestResolveAttachmentID(t *testing.T) {
	hdr := testHeader()

	node := &model.MimeNode{Type: "image", Subtype: "png", DispositionID: "<photo1@mail>"}
	id, ok := ResolveAttachmentID(node, &hdr, "2")
	if !ok || id != "photo1@mail" {
		t.Errorf("disposition id: got (%q, %v), want (photo1@mail, true)", id, ok)
	}

	node = &model.MimeNode{Type: "application", Subtype: "pdf",
		Params: map[string]string{"filename": "report.pdf"}}
	id, ok = ResolveAttachmentID(node, &hdr, "2")
	if !ok {
		t.Fatal("part with filename must be an attachment")
	}
	if id != DeriveAttachmentID(&hdr, "2") {
		t.Errorf("derived id mismatch: %s", id)
	}

	node = &model.MimeNode{Type: "text", Subtype: "plain"}
	if _, ok := ResolveAttachmentID(node, &hdr, "1"); ok {
		t.Error("part without filename, name or disposition id must not be an attachment")
	}
}

func TestResolveFilename(t *testing.T) {
	node := &model.MimeNode{Subtype: "pdf", Params: map[string]string{
		"filename": "=?utf-8?q?caf=C3=A9?=.pdf",
		"name":     "ignored.pdf",
	}}
	name, origName, origFilename := ResolveFilename(node, "deadbeef")
	if name != "café.pdf" {
		t.Errorf("name = %q, want café.pdf", name)
	}
	if origName != "ignored.pdf" || origFilename != "=?utf-8?q?caf=C3=A9?=.pdf" {
		t.Errorf("originals = (%q, %q)", origName, origFilename)
	}

	node = &model.MimeNode{Subtype: "pdf", Params: map[string]string{
		"filename": "utf-8''%C3%A9.pdf",
	}}
	if name, _, _ := ResolveFilename(node, "deadbeef"); name != "é.pdf" {
		t.Errorf("extended param name = %q, want é.pdf", name)
	}

	node = &model.MimeNode{Subtype: "PNG"}
	if name, _, _ := ResolveFilename(node, "deadbeef"); name != "deadbeef.png" {
		t.Errorf("synthesized name = %q, want deadbeef.png", name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final)!.pdf", "my_report_final.pdf"},
		{"../../etc/passwd", "....etcpasswd"},
		{"с отчётом.doc", "с_отчётом.doc"},
		{"  spaced   out  .txt", "spaced_out_.txt"},
		{"___already___", "already"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 400)
	if got := SanitizeFilename(long); len([]rune(got)) != 250 {
		t.Errorf("length = %d, want 250", len([]rune(got)))
	}
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	hdr := testHeader()

	path, err := Materialize(&hdr, 42, "deadbeef", "report.pdf", []byte("content"), dir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	wantSuffix := filepath.Join("2024", "03", "42_deadbeef_report.pdf")
	if !strings.HasSuffix(path, wantSuffix) {
		t.Errorf("path = %q, want suffix %q", path, wantSuffix)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("path %q is not absolute", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading materialized file: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}
}

func TestMaterializeOverwrites(t *testing.T) {
	dir := t.TempDir()
	hdr := testHeader()

	if _, err := Materialize(&hdr, 42, "deadbeef", "a.txt", []byte("first"), dir); err != nil {
		t.Fatalf("first write: %v", err)
	}
	path, err := Materialize(&hdr, 42, "deadbeef", "a.txt", []byte("second"), dir)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want second (refetch must overwrite)", data)
	}
}

func TestMaterializeNoStorageDir(t *testing.T) {
	hdr := testHeader()
	path, err := Materialize(&hdr, 42, "deadbeef", "a.txt", []byte("x"), "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty when no storage dir is configured", path)
	}
}
