package decode

import "testing"

func TestDecodeEncodedWords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain passthrough", "plain subject", "plain subject"},
		{"q-encoded latin1", "=?iso-8859-1?q?caf=E9?=", "café"},
		{"b-encoded utf8", "=?utf-8?B?0J/RgNC40LLQtdGC?=", "Привет"},
		{"mixed runs", "Re: =?iso-8859-1?q?caf=E9?= order", "Re: café order"},
		{"default charset placeholder", "=?default?q?caf=E9?=", "café"},
		{"broken stays intact", "=?nonsense?x?zzz?=", "=?nonsense?x?zzz?="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeEncodedWords(tt.in, "utf-8"); got != tt.want {
				t.Errorf("DecodeEncodedWords(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeEncodedWordsToOtherCharset(t *testing.T) {
	got := DecodeEncodedWords("=?utf-8?q?caf=C3=A9?=", "iso-8859-1")
	want := string([]byte{'c', 'a', 'f', 0xE9})
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeExtendedParameter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"utf-8 value", "utf-8''%C3%A9.pdf", "é.pdf"},
		{"latin1 value", "iso-8859-1''caf%E9.txt", "café.txt"},
		{"empty charset defaults to latin1", "''caf%E9.txt", "café.txt"},
		{"no quotes passthrough", "report.pdf", "report.pdf"},
		{"not percent encoded passthrough", "utf-8''plain name", "utf-8''plain name"},
		{"unknown charset passthrough", "x-bogus''%41%42", "x-bogus''%41%42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeExtendedParameter(tt.in, "utf-8"); got != tt.want {
				t.Errorf("DecodeExtendedParameter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsPercentEncoded(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"%C3%A9.pdf", true},
		{"plain.pdf", false},
		{"has space %41", false},
		{"%41%42%43", true},
		{"100%", false},
	}

	for _, tt := range tests {
		if got := isPercentEncoded(tt.in); got != tt.want {
			t.Errorf("isPercentEncoded(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReassembleSplitParameters(t *testing.T) {
	in := map[string]string{
		"charset":     "utf-8",
		"filename*0*": "utf-8''very%20long",
		"filename*1*": "%20name.pdf",
		"filename*2":  ".bak",
	}

	out := ReassembleSplitParameters(in)

	if got := out["filename"]; got != "utf-8''very%20long%20name.pdf.bak" {
		t.Errorf("filename = %q", got)
	}
	if got := out["charset"]; got != "utf-8" {
		t.Errorf("charset = %q, want utf-8", got)
	}
	if _, ok := out["filename*0*"]; ok {
		t.Error("continuation key leaked into output")
	}
}

func TestReassembleSplitParametersSingleExtended(t *testing.T) {
	out := ReassembleSplitParameters(map[string]string{
		"Filename*": "utf-8''%C3%A9.pdf",
	})
	if got := out["filename"]; got != "utf-8''%C3%A9.pdf" {
		t.Errorf("filename = %q", got)
	}
}

func TestReassembleSplitParametersOrdersNumerically(t *testing.T) {
	out := ReassembleSplitParameters(map[string]string{
		"name*10": "c",
		"name*2":  "b",
		"name*1":  "a",
	})
	if got := out["name"]; got != "abc" {
		t.Errorf("name = %q, want abc (numeric suffix order)", got)
	}
}
