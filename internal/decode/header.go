package decode

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// defaultCharsetPlaceholder is the literal charset name some senders use
// instead of a real one; it is treated as iso-8859-1.
const defaultCharsetPlaceholder = "default"

// DecodeEncodedWords decodes RFC 2047 encoded words in s, transcoding each
// element from its declared charset to targetCharset. Plain runs are kept
// as-is and concatenation order is preserved. On any decoding failure the
// input is returned unchanged.
func DecodeEncodedWords(s, targetCharset string) string {
	dec := mime.WordDecoder{
		CharsetReader: func(cs string, r io.Reader) (io.Reader, error) {
			if strings.EqualFold(cs, defaultCharsetPlaceholder) {
				cs = "iso-8859-1"
			}
			b, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			out, status := Transcode(b, cs, "utf-8")
			if status == ConvFailed {
				return nil, fmt.Errorf("unsupported charset %q", cs)
			}
			return bytes.NewReader(out), nil
		},
	}

	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}

	if !isUTF8Name(targetCharset) {
		if b, status := Transcode([]byte(out), "utf-8", targetCharset); status != ConvFailed {
			return string(b)
		}
	}
	return out
}

// extParamPattern matches the RFC 2231 extended-value form
// <charset>'<language>'<percent-encoded-data>.
var extParamPattern = regexp.MustCompile(`^([^']*)'([^']*)'(.*)$`)

// pctEscapePattern matches one actual %XX escape.
var pctEscapePattern = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// isPercentEncoded reports whether data qualifies as a percent-encoded
// RFC 2231 value: only percent-encoding-legal characters and at least one
// real %XX escape. Both conditions are required; anything else is treated
// as a plain value.
func isPercentEncoded(data string) bool {
	if !pctEscapePattern.MatchString(data) {
		return false
	}
	for _, c := range []byte(data) {
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9':
		case strings.IndexByte("%-._~!$&*+@", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func percentDecode(data string) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '%' && i+2 < len(data) {
			if v, err := strconv.ParseUint(data[i+1:i+3], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// DecodeExtendedParameter decodes an RFC 2231 extended parameter value of
// the form <charset>'<language>'<percent-encoded-data>, transcoding the
// decoded data from the declared charset to targetCharset. Values that do
// not match the pattern, or whose data segment is not actually
// percent-encoded, are returned unchanged.
func DecodeExtendedParameter(s, targetCharset string) string {
	m := extParamPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	if !isPercentEncoded(m[3]) {
		return s
	}

	cs := m[1]
	if cs == "" || strings.EqualFold(cs, defaultCharsetPlaceholder) {
		cs = "iso-8859-1"
	}

	out, status := Transcode(percentDecode(m[3]), cs, targetCharset)
	if status == ConvFailed {
		return s
	}
	return string(out)
}

// splitParamPattern matches RFC 2231 continuation keys: name*0, name*1,
// optionally with the trailing * that marks an extended-encoded segment.
var splitParamPattern = regexp.MustCompile(`^(.+)\*([0-9]+)\*?$`)

type paramSegment struct {
	index int
	value string
}

// ReassembleSplitParameters merges RFC 2231 parameter continuations: values
// split across name*0, name*1, ... keys are concatenated in numeric suffix
// order under the unprefixed parameter name. Keys of the single-segment
// extended form name* are folded to name as well. Other keys pass through.
func ReassembleSplitParameters(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	segments := make(map[string][]paramSegment)

	for k, v := range params {
		if m := splitParamPattern.FindStringSubmatch(k); m != nil {
			idx, err := strconv.Atoi(m[2])
			if err == nil {
				name := strings.ToLower(m[1])
				segments[name] = append(segments[name], paramSegment{index: idx, value: v})
				continue
			}
		}
		out[strings.ToLower(strings.TrimSuffix(k, "*"))] = v
	}

	for name, segs := range segments {
		sort.Slice(segs, func(i, j int) bool { return segs[i].index < segs[j].index })
		var sb strings.Builder
		for _, seg := range segs {
			sb.WriteString(seg.value)
		}
		out[name] = sb.String()
	}

	return out
}
