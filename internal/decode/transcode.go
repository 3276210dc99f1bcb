// Package decode turns the MIME structure of a fetched message into a
// usable representation: UTF-8 text bodies, materialized attachment files
// and a stable mapping between inline HTML references and attachments.
package decode

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/nhle/mailgrab/internal/model"
)

// ConvStatus reports how a charset conversion was performed, so callers can
// observe degraded conversions instead of losing the signal.
type ConvStatus int

const (
	// ConvIdentity means source and target charsets matched; the input was
	// returned unchanged.
	ConvIdentity ConvStatus = iota

	// ConvOK means the primary conversion succeeded.
	ConvOK

	// ConvFallback means the primary conversion was unavailable and the
	// fallback encoding tables were used.
	ConvFallback

	// ConvFailed means no conversion was possible; the original bytes were
	// returned unchanged.
	ConvFailed
)

// String returns a short label for logging.
func (s ConvStatus) String() string {
	switch s {
	case ConvIdentity:
		return "identity"
	case ConvOK:
		return "ok"
	case ConvFallback:
		return "fallback"
	default:
		return "failed"
	}
}

func isUTF8Name(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// lookupEncoding resolves a charset name against the MIME index first and
// the plain IANA index second. Returns nil when the name is unknown to both.
func lookupEncoding(name string) encoding.Encoding {
	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
	}
	if err != nil {
		return nil
	}
	return enc
}

// dropInvalid removes replacement runes introduced by a lossy decode, so
// unmappable characters are dropped rather than rendered as U+FFFD.
func dropInvalid(b []byte) []byte {
	if !bytes.ContainsRune(b, utf8.RuneError) {
		return b
	}
	out := make([]byte, 0, len(b))
	for _, r := range string(b) {
		if r == utf8.RuneError {
			continue
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

// Transcode converts b from one charset to another with best-effort
// semantics: the primary conversion drops unmappable characters, an
// unavailable or failing primary falls back to the IANA encoding tables,
// and when both fail the original bytes are returned unchanged. Malformed
// or unsupported charsets never abort message decoding; the returned status
// tells the caller which path was taken.
func Transcode(b []byte, fromCharset, toCharset string) ([]byte, ConvStatus) {
	if strings.EqualFold(fromCharset, toCharset) {
		return b, ConvIdentity
	}

	status := ConvOK

	// Decode to UTF-8.
	u := b
	if !isUTF8Name(fromCharset) {
		r, err := charset.Reader(fromCharset, bytes.NewReader(b))
		if err == nil {
			u, err = io.ReadAll(r)
		}
		if err != nil {
			enc := lookupEncoding(fromCharset)
			if enc == nil {
				return b, ConvFailed
			}
			decoded, err := enc.NewDecoder().Bytes(b)
			if err != nil {
				return b, ConvFailed
			}
			u = decoded
			status = ConvFallback
		}
		u = dropInvalid(u)
	}

	if isUTF8Name(toCharset) {
		return u, status
	}

	// Encode from UTF-8 to the target charset.
	enc := lookupEncoding(toCharset)
	if enc == nil {
		return b, ConvFailed
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes(u)
	if err != nil {
		return b, ConvFailed
	}
	return out, status
}

// base64Alphabet reports whether c may appear in a base64 stream. Everything
// else (soft line breaks, stray whitespace, non-conformant encoder output)
// is stripped before decoding.
func base64Alphabet(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '+' || c == '/'
}

// DecodeTransferEncoding decodes a part's content-transfer-encoding.
// 7bit, 8bit, binary and unrecognized encodings pass through unchanged.
// Decoding is best-effort: on a malformed stream the successfully decoded
// prefix is returned when there is one, otherwise the input.
func DecodeTransferEncoding(b []byte, enc model.Encoding) []byte {
	switch enc {
	case model.EncodingQuotedPrintable:
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(b)))
		if err != nil && len(out) == 0 {
			return b
		}
		return out

	case model.EncodingBase64:
		filtered := make([]byte, 0, len(b))
		for _, c := range b {
			if base64Alphabet(c) {
				filtered = append(filtered, c)
			}
		}
		// Unpadded decode; a dangling byte cannot carry a full octet.
		if len(filtered)%4 == 1 {
			filtered = filtered[:len(filtered)-1]
		}
		out := make([]byte, base64.RawStdEncoding.DecodedLen(len(filtered)))
		n, err := base64.RawStdEncoding.Decode(out, filtered)
		if err != nil && n == 0 {
			return b
		}
		return out[:n]

	default:
		return b
	}
}
