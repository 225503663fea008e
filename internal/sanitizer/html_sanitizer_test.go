package sanitizer

import (
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestToPlainText(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain passthrough", "Just text", "Just text"},
		{"paragraphs", "<p>Hello there</p><p>Second &amp; line</p>", "Hello there\nSecond & line"},
		{"line breaks", "one<br>two<BR/>three", "one\ntwo\nthree"},
		{"script dropped", "<div>keep</div><script>alert('x')</script>", "keep"},
		{"style dropped", "<style>p{color:red}</style><p>body</p>", "body"},
		{"whitespace collapsed", "<p>  a \t  b  </p>\n\n\n\n<p>c</p>", "a b\n\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ToPlainText(tt.input); got != tt.want {
				t.Errorf("ToPlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplyHTML(t *testing.T) {
	s := New()

	if got := s.ReplyHTML("Thanks!\nTalk soon."); got != "<p>Thanks!<br/>Talk soon.</p>" {
		t.Errorf("unexpected html %q", got)
	}
	if got := s.ReplyHTML("a < b"); got != "<p>a &lt; b</p>" {
		t.Errorf("Expected escaped text, got %q", got)
	}
}

// Drafted text never reaches the recipient as live markup
func TestReplyHTML_NoMarkupInjection(t *testing.T) {
	s := New()
	tagRegex := regexp.MustCompile(`<(/?)([a-zA-Z]+)`)

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 <>/="'\n]{0,60}`).Draw(t, "text")
		text += rapid.SampledFrom([]string{"", "<script>x()</script>", `<img src=x onerror=y>`, "<a href='z'>l</a>"}).Draw(t, "payload")

		out := s.ReplyHTML(text)
		for _, m := range tagRegex.FindAllStringSubmatch(out, -1) {
			if tag := strings.ToLower(m[2]); tag != "p" && tag != "br" {
				t.Fatalf("unexpected tag %q in %q", tag, out)
			}
		}
		if !strings.HasPrefix(out, "<p>") || !strings.HasSuffix(out, "</p>") {
			t.Fatalf("Expected a single paragraph, got %q", out)
		}
	})
}

// Plain text output never contains tags from the input
func TestToPlainText_NoTags(t *testing.T) {
	s := New()

	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 6).Draw(t, "words")
		tag := rapid.SampledFrom([]string{"p", "div", "span", "b", "td"}).Draw(t, "tag")

		var b strings.Builder
		for _, w := range words {
			b.WriteString("<" + tag + ">" + w + "</" + tag + ">")
		}

		out := s.ToPlainText(b.String())
		if strings.Contains(out, "<") || strings.Contains(out, ">") {
			t.Fatalf("tag survived in %q", out)
		}
		for _, w := range words {
			if !strings.Contains(out, w) {
				t.Fatalf("word %q lost from %q", w, out)
			}
		}
	})
}

func TestSafeHTML(t *testing.T) {
	s := New()

	got := s.SafeHTML(`<p onclick="x()">Hi <b>there</b><script>alert(1)</script> <a href="javascript:evil()">link</a></p>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") || strings.Contains(got, "javascript:") {
		t.Errorf("Expected unsafe markup removed, got %q", got)
	}
	if !strings.Contains(got, "<b>there</b>") || !strings.Contains(got, "<p>") {
		t.Errorf("Expected formatting kept, got %q", got)
	}
	if s.SafeHTML("") != "" {
		t.Error("Expected empty input to stay empty")
	}
}
