package decode

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/mailgrab/internal/model"
)

// idSeedDelimiter joins the metadata fields hashed into a derived
// attachment identifier. Changing it changes every derived ID.
const idSeedDelimiter = "|"

// maxFilenameLen bounds the sanitized filename.
const maxFilenameLen = 250

// ResolveAttachmentID returns the identifier for an attachment part, or
// ok == false when the node is not an attachment. An explicit disposition
// id supplied by the server wins, trimmed of angle brackets and whitespace.
// Without one, a part lacking both a filename and a name parameter is not
// an attachment; otherwise a deterministic metadata digest is derived.
func ResolveAttachmentID(node *model.MimeNode, hdr *model.Header, partPath string) (id string, ok bool) {
	if id := strings.Trim(node.DispositionID, "<> \t"); id != "" {
		return id, true
	}
	if node.Param("filename") == "" && node.Param("name") == "" {
		return "", false
	}
	return DeriveAttachmentID(hdr, partPath), true
}

// DeriveAttachmentID computes the derived attachment identifier: an MD5
// digest of the message date, from-address, subject, part path and
// Message-ID in that fixed order. The identifier is reproducible across
// repeated fetches of the same message but is not a content hash; the same
// bytes in a different message get a different ID.
func DeriveAttachmentID(hdr *model.Header, partPath string) string {
	seed := strings.Join([]string{
		hdr.Date.Format(time.RFC1123Z),
		hdr.FromAddress,
		hdr.Subject,
		partPath,
		hdr.MessageID,
	}, idSeedDelimiter)

	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ResolveFilename produces the decoded human-readable filename for an
// attachment part. The content-disposition filename parameter is preferred
// over the content-type name parameter; when both are absent a name is
// synthesized from the attachment id and the lowercased subtype. The chosen
// raw value goes through encoded-word decoding and then extended-parameter
// decoding; each pass is a no-op when its pattern does not match.
func ResolveFilename(node *model.MimeNode, attachmentID string) (name, origName, origFilename string) {
	origFilename = node.Param("filename")
	origName = node.Param("name")

	raw := origFilename
	if raw == "" {
		raw = origName
	}
	if raw == "" {
		return attachmentID + "." + strings.ToLower(node.Subtype), origName, origFilename
	}

	name = DecodeEncodedWords(raw, "utf-8")
	name = DecodeExtendedParameter(name, "utf-8")
	return name, origName, origFilename
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// allowedFilenameRune reports whether r survives sanitization: ASCII
// alphanumerics, Cyrillic letters, underscore and dot.
func allowedFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.':
		return true
	case r >= 'а' && r <= 'я', r >= 'А' && r <= 'Я', r == 'ё' || r == 'Ё':
		return true
	}
	return false
}

// SanitizeFilename builds a filesystem-safe name: path separators are
// stripped outright, whitespace runs become a single underscore, everything
// outside the allow-list is removed, underscore runs collapse, leading and
// trailing underscores are trimmed and the result is truncated to 250
// characters.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = whitespaceRun.ReplaceAllString(name, "_")

	var sb strings.Builder
	for _, r := range name {
		if allowedFilenameRune(r) {
			sb.WriteRune(r)
		}
	}
	name = sb.String()

	name = underscoreRun.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if runes := []rune(name); len(runes) > maxFilenameLen {
		name = string(runes[:maxFilenameLen])
	}
	return name
}

// Materialize writes attachment bytes under
// <storageDir>/<YYYY>/<MM>/<uid>_<attachmentID>_<sanitizedName>, where the
// year and month come from the message's date, not the current time. An
// existing file at that path is overwritten. When storageDir is empty
// nothing is written and an empty path is returned; attachment metadata is
// still recorded by the caller. Errors are materialization failures for
// this one attachment only.
func Materialize(hdr *model.Header, uid model.UID, attachmentID, fileName string, data []byte, storageDir string) (string, error) {
	if storageDir == "" {
		return "", nil
	}

	dir := filepath.Join(storageDir, hdr.Date.Format("2006"), hdr.Date.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating attachment directory %s: %w", dir, err)
	}

	base := fmt.Sprintf("%d_%s_%s", uid, attachmentID, SanitizeFilename(fileName))
	path := filepath.Join(dir, base)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing attachment %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
