package decode

import (
	"bytes"
	"testing"

	"github.com/nhle/mailgrab/internal/model"
)

func TestTranscodeIdentity(t *testing.T) {
	in := []byte("hello")
	out, status := Transcode(in, "utf-8", "UTF-8")
	if status != ConvIdentity {
		t.Fatalf("status = %v, want identity", status)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("out = %q, want %q", out, in)
	}
}

func TestTranscodeLatin1ToUTF8(t *testing.T) {
	// "café" in ISO-8859-1.
	in := []byte{'c', 'a', 'f', 0xE9}
	out, status := Transcode(in, "iso-8859-1", "utf-8")
	if status != ConvOK {
		t.Fatalf("status = %v, want ok", status)
	}
	if got := string(out); got != "café" {
		t.Errorf("out = %q, want %q", got, "café")
	}
}

func TestTranscodeKOI8RToUTF8(t *testing.T) {
	// "да" in KOI8-R.
	in := []byte{0xC4, 0xC1}
	out, status := Transcode(in, "koi8-r", "utf-8")
	if status != ConvOK {
		t.Fatalf("status = %v, want ok", status)
	}
	if got := string(out); got != "да" {
		t.Errorf("out = %q, want %q", got, "да")
	}
}

func TestTranscodeUnknownCharsetFails(t *testing.T) {
	in := []byte("payload")
	out, status := Transcode(in, "x-no-such-charset", "utf-8")
	if status != ConvFailed {
		t.Fatalf("status = %v, want failed", status)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("failed conversion must return the input unchanged, got %q", out)
	}
}

func TestTranscodeUTF8ToLatin1DropsUnmappable(t *testing.T) {
	out, status := Transcode([]byte("café ☂"), "utf-8", "iso-8859-1")
	if status == ConvFailed {
		t.Fatalf("status = %v, want a successful conversion", status)
	}
	if bytes.ContainsRune(out, '☂') {
		t.Errorf("unmappable rune survived encoding: %q", out)
	}
	if !bytes.Contains(out, []byte{0xE9}) {
		t.Errorf("é not encoded as Latin-1: %q", out)
	}
}

func TestDecodeTransferEncodingQuotedPrintable(t *testing.T) {
	in := []byte("caf=E9 au=\r\n lait")
	out := DecodeTransferEncoding(in, model.EncodingQuotedPrintable)
	want := []byte{'c', 'a', 'f', 0xE9, ' ', 'a', 'u', ' ', 'l', 'a', 'i', 't'}
	if !bytes.Equal(out, want) {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestDecodeTransferEncodingBase64(t *testing.T) {
	out := DecodeTransferEncoding([]byte("aGVsbG8="), model.EncodingBase64)
	if string(out) != "hello" {
		t.Errorf("out = %q, want %q", out, "hello")
	}
}

func TestDecodeTransferEncodingBase64IgnoresNoise(t *testing.T) {
	// Line breaks and stray whitespace inside the stream must not break it.
	out := DecodeTransferEncoding([]byte("aGVs\r\nbG8g\t d29y bGQ=\n"), model.EncodingBase64)
	if string(out) != "hello world" {
		t.Errorf("out = %q, want %q", out, "hello world")
	}
}

func TestDecodeTransferEncodingBase64DanglingByte(t *testing.T) {
	// 5 alphabet bytes: the dangling one cannot carry a full octet.
	out := DecodeTransferEncoding([]byte("aGVsbA"), model.EncodingBase64)
	if string(out) != "hell" {
		t.Errorf("out = %q, want %q", out, "hell")
	}
}

func TestDecodeTransferEncodingPassthrough(t *testing.T) {
	in := []byte("raw \x00 bytes")
	for _, enc := range []model.Encoding{model.Encoding7Bit, model.Encoding8Bit, model.EncodingBinary, model.EncodingUnknown} {
		if out := DecodeTransferEncoding(in, enc); !bytes.Equal(out, in) {
			t.Errorf("encoding %v: out = %q, want input unchanged", enc, out)
		}
	}
}
