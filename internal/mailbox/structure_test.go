package mailbox

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
)

func TestNodeFromBodyStructureSinglePart(t *testing.T) {
	bs := &imap.BodyStructureSinglePart{
		Type:     "TEXT",
		Subtype:  "PLAIN",
		Params:   map[string]string{"CHARSET": "ISO-8859-1"},
		ID:       "<part1@mail>",
		Encoding: "QUOTED-PRINTABLE",
		Size:     321,
	}

	node := nodeFromBodyStructure(bs)
	if node.Type != "text" || node.Subtype != "plain" {
		t.Errorf("type = %s/%s, want text/plain", node.Type, node.Subtype)
	}
	if node.Param("charset") != "ISO-8859-1" {
		t.Errorf("charset = %q", node.Param("charset"))
	}
	if node.DispositionID != "part1@mail" {
		t.Errorf("DispositionID = %q, want angle brackets trimmed", node.DispositionID)
	}
	if node.Encoding != "quoted-printable" {
		t.Errorf("Encoding = %q", node.Encoding)
	}
	if node.Size != 321 {
		t.Errorf("Size = %d", node.Size)
	}
}

func TestNodeFromBodyStructureDispositionParams(t *testing.T) {
	bs := &imap.BodyStructureSinglePart{
		Type:     "APPLICATION",
		Subtype:  "PDF",
		Params:   map[string]string{"NAME": "typed.pdf"},
		Encoding: "BASE64",
		Extended: &imap.BodyStructureSinglePartExt{
			Disposition: &imap.BodyStructureDisposition{
				Value:  "attachment",
				Params: map[string]string{"FILENAME": "report.pdf"},
			},
		},
	}

	node := nodeFromBodyStructure(bs)
	if node.Param("filename") != "report.pdf" {
		t.Errorf("filename = %q", node.Param("filename"))
	}
	if node.Param("name") != "typed.pdf" {
		t.Errorf("name = %q", node.Param("name"))
	}
}

func TestNodeFromBodyStructureReassemblesContinuations(t *testing.T) {
	bs := &imap.BodyStructureSinglePart{
		Type:     "APPLICATION",
		Subtype:  "OCTET-STREAM",
		Encoding: "BASE64",
		Extended: &imap.BodyStructureSinglePartExt{
			Disposition: &imap.BodyStructureDisposition{
				Value: "attachment",
				Params: map[string]string{
					"FILENAME*0": "very long ",
					"FILENAME*1": "name.bin",
				},
			},
		},
	}

	node := nodeFromBodyStructure(bs)
	if node.Param("filename") != "very long name.bin" {
		t.Errorf("filename = %q, want reassembled continuation", node.Param("filename"))
	}
}

func TestNodeFromBodyStructureMultiPart(t *testing.T) {
	bs := &imap.BodyStructureMultiPart{
		Subtype: "MIXED",
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{Type: "TEXT", Subtype: "PLAIN", Encoding: "7BIT"},
			&imap.BodyStructureSinglePart{Type: "IMAGE", Subtype: "PNG", Encoding: "BASE64"},
		},
	}

	node := nodeFromBodyStructure(bs)
	if !node.IsMultipart() || node.Subtype != "mixed" {
		t.Fatalf("node = %s/%s, want multipart/mixed", node.Type, node.Subtype)
	}
	if len(node.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(node.Children))
	}
	if node.Children[1].Type != "image" {
		t.Errorf("children[1] = %s", node.Children[1].Type)
	}
}

func TestHeaderFromEnvelope(t *testing.T) {
	date := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	env := &imap.Envelope{
		Date:      date,
		Subject:   "=?iso-8859-1?q?caf=E9?= order",
		MessageID: "<id1@mail>",
		InReplyTo: []string{"<a@mail>", "<b@mail>"},
		From: []imap.Address{
			{Name: "=?utf-8?q?Ren=C3=A9?=", Mailbox: "rene", Host: "example.com"},
		},
		To: []imap.Address{
			{Name: "Bob", Mailbox: "bob", Host: "example.com"},
		},
	}

	hdr := headerFromEnvelope(env)
	if hdr.Subject != "café order" {
		t.Errorf("Subject = %q", hdr.Subject)
	}
	if hdr.FromName != "René" || hdr.FromAddress != "rene@example.com" {
		t.Errorf("From = %q <%s>", hdr.FromName, hdr.FromAddress)
	}
	if hdr.InReplyTo != "<a@mail> <b@mail>" {
		t.Errorf("InReplyTo = %q", hdr.InReplyTo)
	}
	if !hdr.Date.Equal(date) {
		t.Errorf("Date = %v", hdr.Date)
	}
	if len(hdr.To) != 1 || hdr.To[0].Address != "bob@example.com" {
		t.Errorf("To = %+v", hdr.To)
	}
}

func TestHeaderFromEnvelopeNil(t *testing.T) {
	hdr := headerFromEnvelope(nil)
	if hdr.Subject != "" || hdr.FromAddress != "" {
		t.Errorf("nil envelope must yield a zero header: %+v", hdr)
	}
}

func TestReferencesFromRawHeader(t *testing.T) {
	raw := []byte("Subject: x\r\nReferences: <a@mail>\r\n <b@mail>\r\n\r\n")
	got := referencesFromRawHeader(raw)
	if got != "<a@mail> <b@mail>" && got != "<a@mail>  <b@mail>" {
		t.Errorf("References = %q", got)
	}

	if got := referencesFromRawHeader(nil); got != "" {
		t.Errorf("empty input must yield empty references, got %q", got)
	}
}

func TestParsePartPath(t *testing.T) {
	nums, err := parsePartPath("1.2.10")
	if err != nil {
		t.Fatalf("parsePartPath: %v", err)
	}
	if len(nums) != 3 || nums[0] != 1 || nums[1] != 2 || nums[2] != 10 {
		t.Errorf("nums = %v", nums)
	}

	if _, err := parsePartPath("1.x"); err == nil {
		t.Error("expected an error for a non-numeric segment")
	}
}
