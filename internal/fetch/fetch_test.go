package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/designer-agent/internal/tools"
)

const brandPage = `<!DOCTYPE html>
<html>
<head>
<title>Acme Brand Guide</title>
<meta name="description" content="Colors and type for Acme.">
<meta name="theme-color" content="#0A84FF">
<style>.btn { background: #FF6B35; } .hdr { color: #ff6b35; } .muted { color: #333; }</style>
</head>
<body>
<nav>Home | About</nav>
<script>var x = "#123456";</script>
<main>
<h1>Our palette</h1>
<p style="color: #333333">Use <strong>orange</strong> for calls to action.</p>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "designer-agent/") {
			t.Errorf("User-Agent = %q, want designer-agent/ prefix", ua)
		}
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetch_BrandPage(t *testing.T) {
	ts := serve(t, "text/html; charset=utf-8", brandPage)

	page, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if page.Title != "Acme Brand Guide" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.Description != "Colors and type for Acme." {
		t.Errorf("Description = %q", page.Description)
	}
	if page.ThemeColor != "#0a84ff" {
		t.Errorf("ThemeColor = %q", page.ThemeColor)
	}
	// Theme color is weighted first, then frequency, then value.
	want := []string{"#0a84ff", "#333333", "#ff6b35"}
	if strings.Join(page.Colors, ",") != strings.Join(want, ",") {
		t.Errorf("Colors = %v, want %v", page.Colors, want)
	}
	if !strings.Contains(page.Text, "Our palette") || !strings.Contains(page.Text, "orange") {
		t.Errorf("Text missing body content: %q", page.Text)
	}
	for _, unwanted := range []string{"Home | About", "Footer stuff", "var x"} {
		if strings.Contains(page.Text, unwanted) {
			t.Errorf("Text contains %q: %q", unwanted, page.Text)
		}
	}
}

func TestFetch_PlainTextAndTruncation(t *testing.T) {
	ts := serve(t, "text/plain", "brand orange #FF6B35 "+strings.Repeat("x", 500))

	page, err := New().Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !page.Truncated {
		t.Error("expected Truncated")
	}
	if n := len([]rune(page.Text)); n != 100 {
		t.Errorf("text runes = %d, want 100", n)
	}
	if len(page.Colors) != 1 || page.Colors[0] != "#ff6b35" {
		t.Errorf("Colors = %v", page.Colors)
	}
}

func TestFetch_Errors(t *testing.T) {
	ts := serve(t, "text/html", "<p>ok</p>")
	f := New()

	if _, err := f.Fetch(context.Background(), "  ", 0); err == nil {
		t.Error("expected error for empty URL")
	}
	_, err := f.Fetch(context.Background(), ts.URL+"/missing", 0)
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

func TestNormalizeColor(t *testing.T) {
	tests := map[string]string{
		"#ABC":    "#aabbcc",
		"#a1B2c3": "#a1b2c3",
	}
	for in, want := range tests {
		if got := normalizeColor(in); got != want {
			t.Errorf("normalizeColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("Héllo wörld café", 5); got != "Héllo" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestRegister_Dispatch(t *testing.T) {
	ts := serve(t, "text/html", brandPage)

	reg := tools.NewRegistry()
	if err := Register(reg, New()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := tools.NewDispatcher(reg, nil)

	out := d.Dispatch(context.Background(), nil, "fetch_page", map[string]any{"url": ts.URL})
	for _, want := range []string{"Title: Acme Brand Guide", "Theme color: #0a84ff", "Colors: #0a84ff, #333333, #ff6b35"} {
		if !strings.Contains(out, want) {
			t.Errorf("observation missing %q:\n%s", want, out)
		}
	}

	out = d.Dispatch(context.Background(), nil, "fetch_page", map[string]any{})
	if !strings.HasPrefix(out, "Error: ") {
		t.Errorf("missing url observation = %q", out)
	}
}
