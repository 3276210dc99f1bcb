package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/store"
	"github.com/nhle/mailgrab/tests/testutil"
)

func TestMailboxStateRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	// Unknown account yields a zero state, not an error.
	state, err := s.GetMailboxState(ctx, "alice@example.com", "INBOX")
	if err != nil {
		t.Fatalf("GetMailboxState: %v", err)
	}
	if state.LastUID != 0 || state.UIDValidity != 0 {
		t.Errorf("zero state expected, got %+v", state)
	}

	err = s.SetMailboxState(ctx, store.MailboxState{
		Account:     "alice@example.com",
		Mailbox:     "INBOX",
		UIDValidity: 100,
		LastUID:     42,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("SetMailboxState: %v", err)
	}

	state, err = s.GetMailboxState(ctx, "alice@example.com", "INBOX")
	if err != nil {
		t.Fatalf("GetMailboxState: %v", err)
	}
	if state.LastUID != 42 || state.UIDValidity != 100 {
		t.Errorf("state = %+v, want last_uid=42 uid_validity=100", state)
	}
}

func TestMailboxStateUpsert(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := store.MailboxState{
		Account:     "alice@example.com",
		Mailbox:     "INBOX",
		UIDValidity: 100,
		LastUID:     10,
		UpdatedAt:   time.Now(),
	}
	if err := s.SetMailboxState(ctx, base); err != nil {
		t.Fatalf("SetMailboxState: %v", err)
	}

	// A new UIDVALIDITY generation rewrites the mark in place.
	base.UIDValidity = 200
	base.LastUID = 0
	if err := s.SetMailboxState(ctx, base); err != nil {
		t.Fatalf("SetMailboxState: %v", err)
	}

	state, err := s.GetMailboxState(ctx, "alice@example.com", "INBOX")
	if err != nil {
		t.Fatalf("GetMailboxState: %v", err)
	}
	if state.UIDValidity != 200 || state.LastUID != 0 {
		t.Errorf("state = %+v, want reset to generation 200", state)
	}
}

func TestMailboxStatePerMailbox(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i, mbox := range []string{"INBOX", "Archive"} {
		err := s.SetMailboxState(ctx, store.MailboxState{
			Account:     "alice@example.com",
			Mailbox:     mbox,
			UIDValidity: 1,
			LastUID:     model.UID(i + 1),
			UpdatedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("SetMailboxState(%s): %v", mbox, err)
		}
	}

	inbox, _ := s.GetMailboxState(ctx, "alice@example.com", "INBOX")
	archive, _ := s.GetMailboxState(ctx, "alice@example.com", "Archive")
	if inbox.LastUID == archive.LastUID {
		t.Errorf("mailbox marks must be independent: %d vs %d", inbox.LastUID, archive.LastUID)
	}
}

func TestAnomalies(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	s.RecordAnomaly(ctx, 5, "1.2", "charset-degraded", "charset x-weird: failed")
	s.RecordAnomaly(ctx, 6, "2", "unknown-type", "x-thing/blob")
	s.RecordAnomaly(ctx, 7, "3", "materialize-failed", "disk full")

	anomalies, err := s.RecentAnomalies(ctx, 2)
	if err != nil {
		t.Fatalf("RecentAnomalies: %v", err)
	}
	if len(anomalies) != 2 {
		t.Fatalf("got %d anomalies, want 2 (limit)", len(anomalies))
	}

	// Newest first.
	if anomalies[0].UID != 7 || anomalies[0].Kind != "materialize-failed" {
		t.Errorf("anomalies[0] = %+v, want the most recent", anomalies[0])
	}
	if anomalies[0].ID == "" || anomalies[0].ID == anomalies[1].ID {
		t.Errorf("anomaly ids must be unique and non-empty: %q, %q", anomalies[0].ID, anomalies[1].ID)
	}
}
