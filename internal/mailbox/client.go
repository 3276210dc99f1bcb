// Package mailbox is the connection component: it owns the IMAP session
// and exposes structure/body/header fetches plus the command primitives the
// rest of the application drives. The decoder consumes it through the
// decode.Connection interface.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailgrab/internal/model"
)

// AuthError indicates that authentication failed for the account.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Client is a connected, authenticated IMAP session with one mailbox
// selected. The session allows a single in-flight command at a time;
// Client serializes its operations accordingly. The caller owns the
// lifetime and must Close it.
type Client struct {
	cfg model.AccountConfig

	mu          sync.Mutex
	imap        *imapclient.Client
	uidValidity uint32
}

// Dial connects to the configured IMAP server, authenticates and selects
// the configured mailbox.
func Dial(_ context.Context, cfg model.AccountConfig, password string) (*Client, error) {
	addr := cfg.Host + ":" + cfg.Port

	var conn *imapclient.Client
	var err error

	if cfg.TLS {
		conn, err = imapclient.DialTLS(addr, nil)
	} else {
		conn, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := conn.Login(cfg.Username, password).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return nil, &AuthError{
			Username: cfg.Username,
			Message:  fmt.Sprintf("authentication failed: %v", err),
		}
	}

	mbox := cfg.Mailbox
	if mbox == "" {
		mbox = "INBOX"
	}
	selected, err := conn.Select(mbox, nil).Wait()
	if err != nil {
		_ = conn.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", mbox, err)
	}

	return &Client{
		cfg:         cfg,
		imap:        conn,
		uidValidity: selected.UIDValidity,
	}, nil
}

// Close logs out and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imap.Logout().Wait()
}

// UIDValidity returns the selected mailbox's UIDVALIDITY. Cached UIDs from
// a different validity generation must be discarded.
func (c *Client) UIDValidity() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uidValidity
}

// parsePartPath converts a dotted part path ("1.2") to IMAP part numbers.
func parsePartPath(partPath string) ([]int, error) {
	if partPath == "" {
		return nil, nil
	}
	segs := strings.Split(partPath, ".")
	nums := make([]int, 0, len(segs))
	for _, seg := range segs {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid part path %q", partPath)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// FetchStructure retrieves the message's BODYSTRUCTURE and envelope and
// converts them into the decoder's tree and parsed header fields. The
// References chain is recovered from the raw header, which the envelope
// does not carry.
func (c *Client) FetchStructure(ctx context.Context, uid model.UID) (*model.MimeNode, model.Header, error) {
	c.mu.Lock()
	fetchCmd := c.imap.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:      true,
		UID:           true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		c.mu.Unlock()
		return nil, model.Header{}, fmt.Errorf("message %d not found", uid)
	}

	buf, err := msg.Collect()
	closeErr := fetchCmd.Close()
	c.mu.Unlock()
	if err != nil {
		return nil, model.Header{}, fmt.Errorf("collecting structure for %d: %w", uid, err)
	}
	if closeErr != nil {
		return nil, model.Header{}, fmt.Errorf("fetching structure for %d: %w", uid, closeErr)
	}

	hdr := headerFromEnvelope(buf.Envelope)
	if hdr.References == "" {
		if raw, err := c.FetchRawHeader(ctx, uid); err == nil {
			hdr.References = referencesFromRawHeader(raw)
		}
	}

	var root *model.MimeNode
	if buf.BodyStructure != nil {
		root = nodeFromBodyStructure(buf.BodyStructure)
	}
	return root, hdr, nil
}

// FetchRawHeader retrieves the message's raw RFC 822 header bytes without
// marking it seen.
func (c *Client) FetchRawHeader(_ context.Context, uid model.UID) ([]byte, error) {
	section := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	return c.fetchSection(uid, section)
}

// FetchPartBody retrieves the raw bytes of one part. With peek set the
// server does not mark the message as seen; without it, marking the message
// seen is a server-side effect of the fetch.
func (c *Client) FetchPartBody(_ context.Context, uid model.UID, partPath string, peek bool) ([]byte, error) {
	nums, err := parsePartPath(partPath)
	if err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{
		Part: nums,
		Peek: peek,
	}
	return c.fetchSection(uid, section)
}

func (c *Client) fetchSection(uid model.UID, section *imap.FetchItemBodySection) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fetchCmd := c.imap.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message %d not found", uid)
	}

	buf, err := msg.Collect()
	closeErr := fetchCmd.Close()
	if err != nil {
		return nil, fmt.Errorf("collecting section for %d: %w", uid, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("fetching section for %d: %w", uid, closeErr)
	}

	return buf.FindBodySection(section), nil
}

// SearchSince returns the UIDs of messages received since the given time,
// in mailbox order.
func (c *Client) SearchSince(_ context.Context, since time.Time) ([]model.UID, error) {
	return c.search(&imap.SearchCriteria{Since: since})
}

// SearchAfterUID returns the UIDs of messages with a UID strictly greater
// than last. With last == 0 it returns every message in the mailbox.
func (c *Client) SearchAfterUID(_ context.Context, last model.UID) ([]model.UID, error) {
	var set imap.UIDSet
	set.AddRange(imap.UID(last)+1, 0)
	return c.search(&imap.SearchCriteria{UID: []imap.UIDSet{set}})
}

func (c *Client) search(criteria *imap.SearchCriteria) ([]model.UID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.imap.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := data.AllUIDs()
	out := make([]model.UID, 0, len(uids))
	for _, uid := range uids {
		out = append(out, model.UID(uid))
	}
	return out, nil
}

// MarkSeen adds or removes the \Seen flag on a message.
func (c *Client) MarkSeen(_ context.Context, uid model.UID, seen bool) error {
	op := imap.StoreFlagsAdd
	if !seen {
		op = imap.StoreFlagsDel
	}
	return c.storeFlags(uid, op, imap.FlagSeen)
}

// Delete flags a message as deleted and expunges the mailbox.
func (c *Client) Delete(_ context.Context, uid model.UID) error {
	if err := c.storeFlags(uid, imap.StoreFlagsAdd, imap.FlagDeleted); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.imap.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging: %w", err)
	}
	return nil
}

// Move moves a message to another folder.
func (c *Client) Move(_ context.Context, uid model.UID, folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.imap.Move(imap.UIDSetNum(imap.UID(uid)), folder).Wait(); err != nil {
		return fmt.Errorf("moving message %d to %s: %w", uid, folder, err)
	}
	return nil
}

func (c *Client) storeFlags(uid model.UID, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	storeCmd := c.imap.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing flags on %d: %w", uid, err)
	}
	return nil
}
