package model

import "testing"

func TestFindInlinePlaceholders(t *testing.T) {
	html := `<img src="cid:abc123"> <img src="CD:photo@mail"> <a href="http://x">x</a>`

	found := FindInlinePlaceholders(html)
	if len(found) != 2 {
		t.Fatalf("found %d placeholders, want 2: %v", len(found), found)
	}
	if found["abc123"] != "cid:abc123" {
		t.Errorf("abc123 = %q", found["abc123"])
	}
	if found["photo@mail"] != "CD:photo@mail" {
		t.Errorf("photo@mail = %q", found["photo@mail"])
	}
}

func TestResolveInlineHTML(t *testing.T) {
	msg := &Message{
		TextHTML: `<p>hi</p><img src="cid:abc123"><img src="cid:missing">`,
	}
	msg.AddAttachment(Attachment{
		ID:       "abc123",
		Name:     "photo.jpg",
		FilePath: "/data/2024/03/5_abc123_photo.jpg",
	})

	got := msg.ResolveInlineHTML("http://localhost:8080/files")
	want := `<p>hi</p><img src="http://localhost:8080/files/5_abc123_photo.jpg"><img src="cid:missing">`
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestResolveInlineHTMLTrailingSlash(t *testing.T) {
	msg := &Message{TextHTML: `<img src="cid:a1">`}
	msg.AddAttachment(Attachment{ID: "a1", FilePath: "/data/1_a1_x.png"})

	got := msg.ResolveInlineHTML("http://x/files/")
	if got != `<img src="http://x/files/1_a1_x.png">` {
		t.Errorf("got %q", got)
	}
}

func TestResolveInlineHTMLUnsavedAttachment(t *testing.T) {
	msg := &Message{TextHTML: `<img src="cid:a1">`}
	msg.AddAttachment(Attachment{ID: "a1"})

	if got := msg.ResolveInlineHTML("http://x"); got != `<img src="cid:a1">` {
		t.Errorf("placeholder for unsaved attachment was rewritten: %q", got)
	}
}

func TestAddAttachmentReplacesDuplicateID(t *testing.T) {
	msg := &Message{}
	msg.AddAttachment(Attachment{ID: "a1", Name: "first.png"})
	msg.AddAttachment(Attachment{ID: "a2", Name: "other.png"})
	msg.AddAttachment(Attachment{ID: "a1", Name: "second.png", FilePath: "/p"})

	atts := msg.Attachments()
	if len(atts) != 2 {
		t.Fatalf("attachments = %d, want 2", len(atts))
	}
	if atts[0].Name != "second.png" || atts[0].FilePath != "/p" {
		t.Errorf("duplicate id must replace in place: %+v", atts[0])
	}
	if atts[1].ID != "a2" {
		t.Errorf("order changed: %+v", atts)
	}

	att, ok := msg.AttachmentByID("a1")
	if !ok || att.Name != "second.png" {
		t.Errorf("AttachmentByID = (%+v, %v)", att, ok)
	}
}
