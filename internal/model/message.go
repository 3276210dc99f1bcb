package model

import (
	"fmt"
	"strings"
	"time"
)

// UID is the persistent, server-assigned unique identifier of a message
// within one mailbox. Unlike sequence numbers it survives across sessions
// (for a given UIDVALIDITY) and is the identifier used for all cross-session
// state.
type UID uint32

// Address is a single mail address with an optional display name.
type Address struct {
	Address string
	Name    string
}

// String renders the address in RFC 5322 display form.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// Header holds the parsed header fields of a message, as produced by the
// mailbox connection. The decoder consumes these as structured values and
// never parses raw header syntax itself.
type Header struct {
	Date       time.Time
	Subject    string
	MessageID  string
	InReplyTo  string
	References string

	FromName    string
	FromAddress string

	To      []Address
	Cc      []Address
	ReplyTo []Address
}

// Encoding is a content-transfer-encoding as declared on a MIME part.
type Encoding string

const (
	Encoding7Bit            Encoding = "7bit"
	Encoding8Bit            Encoding = "8bit"
	EncodingBinary          Encoding = "binary"
	EncodingQuotedPrintable Encoding = "quoted-printable"
	EncodingBase64          Encoding = "base64"
	EncodingUnknown         Encoding = "unknown"
)

// ParseEncoding normalizes a declared transfer encoding. Unrecognized
// values map to EncodingUnknown, which the decoder passes through unchanged.
func ParseEncoding(s string) Encoding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "7bit":
		return Encoding7Bit
	case "8bit":
		return Encoding8Bit
	case "binary":
		return EncodingBinary
	case "quoted-printable":
		return EncodingQuotedPrintable
	case "base64":
		return EncodingBase64
	default:
		return EncodingUnknown
	}
}

// MimeNode is one node of the structural tree describing a message part.
// It is created per fetch by the mailbox connection, consumed once by the
// tree walker, and then discarded.
type MimeNode struct {
	// Type and Subtype are the lowercased media type halves
	// (e.g. "text"/"plain", "multipart"/"mixed").
	Type    string
	Subtype string

	Encoding Encoding

	// Params merges the content-type parameters (charset, name, ...) with
	// the content-disposition parameters (filename, ...). RFC 2231
	// continuations (name*0, name*1, ...) arrive already reassembled under
	// the unprefixed key.
	Params map[string]string

	// DispositionID is the part's Content-ID with surrounding angle
	// brackets and whitespace removed, or empty when the server supplied
	// none.
	DispositionID string

	// Size is the declared encoded size in bytes, when known.
	Size uint32

	Children []*MimeNode
}

// IsMultipart reports whether the node is a multipart container.
func (n *MimeNode) IsMultipart() bool {
	return n.Type == "multipart"
}

// Param returns the named parameter, looked up case-insensitively.
func (n *MimeNode) Param(name string) string {
	if v, ok := n.Params[name]; ok {
		return v
	}
	for k, v := range n.Params {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Attachment is one materialized (or metadata-only) attachment of a Message.
type Attachment struct {
	// ID is the attachment identifier: the part's disposition id when the
	// server supplied one, otherwise a deterministic digest of message
	// metadata and the part path.
	ID string

	// Name is the human-readable decoded filename.
	Name string

	// OrigName and OrigFilename keep the two raw source fields (content-type
	// "name" vs content-disposition "filename") for diagnostics.
	OrigName     string
	OrigFilename string

	// FilePath is the absolute path the bytes were written to, or empty when
	// no storage directory was configured or the write failed.
	FilePath string
}

// Message is one fetched and decoded mail item. TextPlain and TextHTML are
// always UTF-8 after transcoding; multiple text parts of the same kind are
// concatenated in document order.
type Message struct {
	SeqNum uint32
	UID    UID

	Header

	TextPlain string
	TextHTML  string

	attachments []Attachment
	attachIndex map[string]int
}

// ToString returns the display form of the To recipients.
func (m *Message) ToString() string {
	parts := make([]string, 0, len(m.To))
	for _, a := range m.To {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// AddAttachment records an attachment under its ID, keeping discovery order.
// A repeated ID replaces the earlier entry in place.
func (m *Message) AddAttachment(att Attachment) {
	if m.attachIndex == nil {
		m.attachIndex = make(map[string]int)
	}
	if i, ok := m.attachIndex[att.ID]; ok {
		m.attachments[i] = att
		return
	}
	m.attachIndex[att.ID] = len(m.attachments)
	m.attachments = append(m.attachments, att)
}

// Attachments returns the message's attachments in discovery order.
func (m *Message) Attachments() []Attachment {
	return m.attachments
}

// AttachmentByID looks up an attachment by its identifier.
func (m *Message) AttachmentByID(id string) (Attachment, bool) {
	i, ok := m.attachIndex[id]
	if !ok {
		return Attachment{}, false
	}
	return m.attachments[i], true
}
