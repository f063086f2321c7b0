package chat

import (
	"strings"
	"testing"
)

func TestSanitizerText(t *testing.T) {
	s := newSanitizer()
	tests := []struct {
		name     string
		raw      string
		required bool
		max      int
		want     string
		code     Code
	}{
		{name: "plain", raw: "hello", required: true, max: 10, want: "hello"},
		{name: "trims", raw: "  hi  ", required: true, max: 10, want: "hi"},
		{name: "keeps angle brackets", raw: "is a<b and c>d?", required: true, max: 20, want: "is a<b and c>d?"},
		{name: "keeps tag-like text", raw: "use <div> for layout", required: true, max: 30, want: "use <div> for layout"},
		{name: "keeps entities literal", raw: "x &lt;y&gt;", required: true, max: 20, want: "x &lt;y&gt;"},
		{name: "keeps ampersands", raw: "tom & jerry > 2", required: true, max: 20, want: "tom & jerry > 2"},
		{name: "required blank", raw: " \t\n ", required: true, max: 10, code: CodeValidation},
		{name: "optional empty", raw: "", required: false, max: 10, want: ""},
		{name: "rune limit", raw: strings.Repeat("é", 4), required: true, max: 3, code: CodeValidation},
		{name: "rune limit exact", raw: strings.Repeat("é", 3), required: true, max: 3, want: "ééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.text("field", tt.raw, tt.required, tt.max)
			if tt.code != "" {
				wantCode(t, err, tt.code)
				return
			}
			if err != nil {
				t.Fatalf("text() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizerIdempotent(t *testing.T) {
	s := newSanitizer()
	for _, raw := range []string{"a<b and c>d", "&amp;&lt;", "<script>x</script>", "  é <i>é</i>  "} {
		once := s.clean(raw)
		if twice := s.clean(once); twice != once {
			t.Fatalf("clean(clean(%q)) = %q, want %q", raw, twice, once)
		}
	}
}
