package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"/snipe 10101", []string{"/snipe", "10101"}},
		{"/snipe  10101 ", []string{"/snipe", "10101"}},
		{`/admin ban "some user"`, []string{"/admin", "ban", "some user"}},
		{"/admin ban 'some user'", []string{"/admin", "ban", "some user"}},
		{"", nil},
		{"   ", nil},
		{`/x "unterminated`, []string{"/x", "unterminated"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseFlags([]string{"10101", "-limit", "5", "--verbose", "-mode=loud", "--", "-raw"})
	if !reflect.DeepEqual(pos, []string{"10101", "-raw"}) {
		t.Fatalf("pos = %#v", pos)
	}
	if flags["limit"] != "5" || flags["mode"] != "loud" {
		t.Fatalf("flags = %#v", flags)
	}
	if !bools["verbose"] {
		t.Fatalf("bools = %#v", bools)
	}

	pos, flags, bools = parseFlags(nil)
	if len(pos) != 0 || len(flags) != 0 || len(bools) != 0 {
		t.Fatalf("empty input parsed to %#v %#v %#v", pos, flags, bools)
	}
}
