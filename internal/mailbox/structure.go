package mailbox

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/mailgrab/internal/decode"
	"github.com/nhle/mailgrab/internal/model"
)

// nodeFromBodyStructure converts a served BODYSTRUCTURE into the decoder's
// tree. Content-type and content-disposition parameters are merged into one
// map with RFC 2231 continuations reassembled, and the part's Content-ID is
// trimmed of angle brackets.
func nodeFromBodyStructure(bs imap.BodyStructure) *model.MimeNode {
	switch part := bs.(type) {
	case *imap.BodyStructureSinglePart:
		params := make(map[string]string, len(part.Params)+2)
		for k, v := range part.Params {
			params[strings.ToLower(k)] = v
		}
		if part.Extended != nil && part.Extended.Disposition != nil {
			for k, v := range part.Extended.Disposition.Params {
				params[strings.ToLower(k)] = v
			}
		}

		node := &model.MimeNode{
			Type:          strings.ToLower(part.Type),
			Subtype:       strings.ToLower(part.Subtype),
			Encoding:      model.ParseEncoding(part.Encoding),
			Params:        decode.ReassembleSplitParameters(params),
			DispositionID: strings.Trim(part.ID, "<> \t"),
			Size:          part.Size,
		}

		// Keep the pre-split structure of an embedded message when the
		// server provides one; the walker still re-parses the container's
		// raw content, so this is informational.
		if part.MessageRFC822 != nil && part.MessageRFC822.BodyStructure != nil {
			node.Children = []*model.MimeNode{
				nodeFromBodyStructure(part.MessageRFC822.BodyStructure),
			}
		}
		return node

	case *imap.BodyStructureMultiPart:
		params := map[string]string{}
		if part.Extended != nil {
			for k, v := range part.Extended.Params {
				params[strings.ToLower(k)] = v
			}
		}

		node := &model.MimeNode{
			Type:    "multipart",
			Subtype: strings.ToLower(part.Subtype),
			Params:  decode.ReassembleSplitParameters(params),
		}
		for _, child := range part.Children {
			node.Children = append(node.Children, nodeFromBodyStructure(child))
		}
		return node
	}

	return nil
}

func addressesFromIMAP(addrs []imap.Address) []model.Address {
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Address{
			Address: a.Addr(),
			Name:    a.Name,
		})
	}
	return out
}

// headerFromEnvelope maps a served envelope to the decoder's parsed header
// fields. Encoded words in the subject and display names are decoded here
// so the core never sees raw header syntax.
func headerFromEnvelope(env *imap.Envelope) model.Header {
	if env == nil {
		return model.Header{}
	}

	hdr := model.Header{
		Date:      env.Date,
		Subject:   decode.DecodeEncodedWords(env.Subject, "utf-8"),
		MessageID: env.MessageID,
		InReplyTo: strings.Join(env.InReplyTo, " "),
		To:        addressesFromIMAP(env.To),
		Cc:        addressesFromIMAP(env.Cc),
		ReplyTo:   addressesFromIMAP(env.ReplyTo),
	}

	if len(env.From) > 0 {
		hdr.FromName = decode.DecodeEncodedWords(env.From[0].Name, "utf-8")
		hdr.FromAddress = env.From[0].Addr()
	}

	for i := range hdr.To {
		hdr.To[i].Name = decode.DecodeEncodedWords(hdr.To[i].Name, "utf-8")
	}
	for i := range hdr.Cc {
		hdr.Cc[i].Name = decode.DecodeEncodedWords(hdr.Cc[i].Name, "utf-8")
	}

	return hdr
}

// referencesFromRawHeader extracts the References field from raw header
// bytes. Parse failures yield an empty string; the field is optional.
func referencesFromRawHeader(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	br := bufio.NewReader(bytes.NewReader(raw))
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(hdr.Get("References"))
}
