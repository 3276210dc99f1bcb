package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"

	"github.com/nhle/mailgrab/internal/model"
)

// Connection is the mailbox collaborator the decoder consumes. It owns the
// wire protocol, authentication and any retry policy; the decoder only
// requests structure and bytes. A single connection allows one in-flight
// command at a time, so the decoder never issues concurrent fetches
// against it.
type Connection interface {
	// FetchStructure retrieves the structural description of a message and
	// its parsed header fields.
	FetchStructure(ctx context.Context, uid model.UID) (*model.MimeNode, model.Header, error)

	// FetchRawHeader retrieves the raw RFC 822 header bytes.
	FetchRawHeader(ctx context.Context, uid model.UID) ([]byte, error)

	// FetchPartBody retrieves the raw bytes of one part. With peek set the
	// server does not mark the message as seen.
	FetchPartBody(ctx context.Context, uid model.UID, partPath string, peek bool) ([]byte, error)
}

// FetchError tags a transient retrieval failure with the message and part
// it happened on. The decoder does not retry; retry policy belongs to the
// connection's owner.
type FetchError struct {
	UID      model.UID
	PartPath string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching part %s of message %d: %v", e.PartPath, e.UID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Anomaly kinds recorded during decoding.
const (
	AnomalyUnknownType    = "unknown-type"
	AnomalyCharsetDegrade = "charset-degraded"
	AnomalyMaterialize    = "materialize-failed"
	AnomalyEmbeddedParse  = "embedded-parse-failed"
)

// AnomalySink receives decode anomalies: conditions the decoder recovered
// from locally (best-effort fallbacks, skipped parts, failed attachment
// writes) that should still be observable.
type AnomalySink interface {
	RecordAnomaly(ctx context.Context, uid model.UID, partPath, kind, detail string)
}

// NopSink discards anomalies.
type NopSink struct{}

// RecordAnomaly implements AnomalySink.
func (NopSink) RecordAnomaly(context.Context, model.UID, string, string, string) {}

// Decoder walks a message's MIME tree and assembles a Message. It is
// single-threaded and synchronous: parts are fetched and processed in
// document order, parents before children, because inline-reference
// resolution depends on every attachment having been materialized first.
type Decoder struct {
	conn       Connection
	storageDir string
	serverEnc  string
	anomalies  AnomalySink
}

// NewDecoder creates a Decoder over conn. The sink may be nil, in which
// case anomalies are discarded.
func NewDecoder(conn Connection, cfg model.DecodeConfig, sink AnomalySink) *Decoder {
	if sink == nil {
		sink = NopSink{}
	}
	enc := cfg.ServerEncoding
	if enc == "" {
		enc = "utf-8"
	}
	return &Decoder{
		conn:       conn,
		storageDir: cfg.StorageDir,
		serverEnc:  enc,
		anomalies:  sink,
	}
}

// Fetch retrieves a message's structure and header fields from the
// connection and decodes it.
func (d *Decoder) Fetch(ctx context.Context, uid model.UID, markSeen bool) (*model.Message, error) {
	root, hdr, err := d.conn.FetchStructure(ctx, uid)
	if err != nil {
		return nil, &FetchError{UID: uid, PartPath: "", Err: err}
	}
	return d.DecodeMessage(ctx, uid, root, hdr, markSeen)
}

// DecodeMessage walks the structural tree of one message, fetching and
// decoding each leaf part. The returned Message is best-effort: decode
// anomalies are recorded and skipped, materialization failures leave the
// affected attachment without a file path, and only a transient fetch
// failure surfaces as an error (alongside everything decoded up to that
// point).
func (d *Decoder) DecodeMessage(ctx context.Context, uid model.UID, root *model.MimeNode, hdr model.Header, markSeen bool) (*model.Message, error) {
	msg := &model.Message{UID: uid, Header: hdr}
	if root == nil {
		return msg, nil
	}

	peek := !markSeen

	var err error
	if root.IsMultipart() {
		err = d.walkChildren(ctx, msg, root, "", peek)
	} else {
		err = d.walkNode(ctx, msg, root, "1", peek)
	}
	if err != nil {
		return msg, err
	}
	return msg, nil
}

// childPath appends a 1-based child index to a parent part path.
func childPath(parent string, index int) string {
	if parent == "" {
		return fmt.Sprintf("%d", index)
	}
	return fmt.Sprintf("%s.%d", parent, index)
}

func (d *Decoder) walkChildren(ctx context.Context, msg *model.Message, node *model.MimeNode, path string, peek bool) error {
	for i, child := range node.Children {
		if err := d.walkNode(ctx, msg, child, childPath(path, i+1), peek); err != nil {
			return err
		}
	}
	return nil
}

// walkNode visits one node depth-first, pre-order.
func (d *Decoder) walkNode(ctx context.Context, msg *model.Message, node *model.MimeNode, path string, peek bool) error {
	// An embedded forwarded message is re-parsed from its raw content: its
	// inner multipart boundary is not always pre-split by the structural
	// description, and the server addresses the inner body under the
	// container's own path.
	if node.Type == "message" && node.Subtype == "rfc822" {
		return d.walkEmbedded(ctx, msg, path, peek)
	}

	if node.IsMultipart() {
		return d.walkChildren(ctx, msg, node, path, peek)
	}

	raw, err := d.conn.FetchPartBody(ctx, msg.UID, path, peek)
	if err != nil {
		return &FetchError{UID: msg.UID, PartPath: path, Err: err}
	}

	data := DecodeTransferEncoding(raw, node.Encoding)
	d.classifyLeaf(ctx, msg, node, path, data, false)
	return nil
}

// classifyLeaf routes one leaf part's decoded bytes into the message.
// charsetDone marks bytes that are already UTF-8 (embedded parts decoded by
// the message parser).
func (d *Decoder) classifyLeaf(ctx context.Context, msg *model.Message, node *model.MimeNode, path string, data []byte, charsetDone bool) {
	id, isAttachment := ResolveAttachmentID(node, &msg.Header, path)
	if !isAttachment {
		switch node.Type {
		case "text", "message", "multipart":
		default:
			// No filename, no disposition id, not textual: attachment by
			// type heuristic.
			switch node.Type {
			case "image", "audio", "video", "application", "font":
				id = DeriveAttachmentID(&msg.Header, path)
				isAttachment = true
			}
		}
	}

	if isAttachment {
		d.saveAttachment(ctx, msg, node, id, path, data)
		return
	}

	switch node.Type {
	case "text":
		text := data
		if !charsetDone {
			cs := node.Param("charset")
			if cs == "" {
				cs = d.serverEnc
			}
			var status ConvStatus
			text, status = Transcode(data, cs, "utf-8")
			if status == ConvFallback || status == ConvFailed {
				d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyCharsetDegrade,
					fmt.Sprintf("charset %s: %s", cs, status))
			}
		}
		if node.Subtype == "plain" {
			msg.TextPlain += string(text)
		} else {
			msg.TextHTML += string(text)
		}

	case "message":
		// Delivery reports and similar: keep the trimmed content as a
		// fallback plain-text representation.
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			msg.TextPlain += trimmed
		}

	default:
		d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyUnknownType,
			node.Type+"/"+node.Subtype)
	}
}

// saveAttachment resolves the filename, materializes the bytes when a
// storage directory is configured and records the attachment on the
// message. A failed write is recorded and leaves FilePath empty; the rest
// of the message is unaffected.
func (d *Decoder) saveAttachment(ctx context.Context, msg *model.Message, node *model.MimeNode, id, path string, data []byte) {
	name, origName, origFilename := ResolveFilename(node, id)

	att := model.Attachment{
		ID:           id,
		Name:         name,
		OrigName:     origName,
		OrigFilename: origFilename,
	}

	filePath, err := Materialize(&msg.Header, msg.UID, id, name, data, d.storageDir)
	if err != nil {
		d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyMaterialize, err.Error())
	} else {
		att.FilePath = filePath
	}

	msg.AddAttachment(att)
}

// walkEmbedded fetches a message/rfc822 container's raw content at the
// container's own part path and re-parses it, walking the embedded
// message's parts through the same classification. The embedded parser
// already applies transfer decoding and charset conversion.
func (d *Decoder) walkEmbedded(ctx context.Context, msg *model.Message, path string, peek bool) error {
	raw, err := d.conn.FetchPartBody(ctx, msg.UID, path, peek)
	if err != nil {
		return &FetchError{UID: msg.UID, PartPath: path, Err: err}
	}

	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyEmbeddedParse, err.Error())
		return nil
	}

	d.walkEntity(ctx, msg, ent, path)
	return nil
}

func (d *Decoder) walkEntity(ctx context.Context, msg *model.Message, ent *message.Entity, path string) {
	if mr := ent.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil && !message.IsUnknownCharset(err) {
				d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyEmbeddedParse, err.Error())
				return
			}
			d.walkEntity(ctx, msg, part, path)
		}
	}

	node := nodeFromEntityHeader(ent.Header)
	data, err := io.ReadAll(ent.Body)
	if err != nil {
		d.anomalies.RecordAnomaly(ctx, msg.UID, path, AnomalyEmbeddedParse, err.Error())
		return
	}

	if node.Type == "message" && node.Subtype == "rfc822" {
		inner, err := message.Read(bytes.NewReader(data))
		if err == nil || message.IsUnknownCharset(err) {
			d.walkEntity(ctx, msg, inner, path)
			return
		}
	}

	d.classifyLeaf(ctx, msg, node, path, data, node.Type == "text")
}

// nodeFromEntityHeader builds a MimeNode from a parsed entity header so
// embedded parts flow through the same classification as served ones. The
// entity body is already transfer-decoded, so the encoding is a no-op one.
func nodeFromEntityHeader(h message.Header) *model.MimeNode {
	mediaType, params, _ := h.ContentType()
	typ, sub, _ := strings.Cut(mediaType, "/")

	merged := make(map[string]string, len(params)+2)
	for k, v := range params {
		merged[strings.ToLower(k)] = v
	}
	if _, dispParams, err := h.ContentDisposition(); err == nil {
		for k, v := range dispParams {
			merged[strings.ToLower(k)] = v
		}
	}

	return &model.MimeNode{
		Type:          strings.ToLower(typ),
		Subtype:       strings.ToLower(sub),
		Encoding:      model.Encoding8Bit,
		Params:        ReassembleSplitParameters(merged),
		DispositionID: strings.Trim(h.Get("Content-Id"), "<> \t"),
	}
}
