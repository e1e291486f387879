package oracle

import (
	"testing"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

func TestCleanFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`{"intent": "CLINICAL"}`, `{"intent": "CLINICAL"}`},
		{"```json\n{\"intent\": \"CLINICAL\"}\n```", `{"intent": "CLINICAL"}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  \n```json\n{}\n```  ", `{}`},
	}
	for _, c := range cases {
		if got := cleanFences(c.in); got != c.want {
			t.Fatalf("cleanFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeClock(t *testing.T) {
	t.Parallel()

	if got := normalizeClock("14:30"); got != "14:30:00" {
		t.Fatalf("expected widened clock, got %q", got)
	}
	if got := normalizeClock("14:30:15"); got != "14:30:15" {
		t.Fatalf("expected full clock untouched, got %q", got)
	}
	if got := normalizeClock(" 09:00 "); got != "09:00:00" {
		t.Fatalf("expected trimmed and widened clock, got %q", got)
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	if got := stringify("  Alice  "); got != "Alice" {
		t.Fatalf("expected trimmed string, got %q", got)
	}
	if got := stringify(nil); got != "" {
		t.Fatalf("expected empty for nil, got %q", got)
	}
	if got := stringify(float64(1500)); got != "1500" {
		t.Fatalf("expected integral float rendering, got %q", got)
	}
	if got := stringify(true); got != "true" {
		t.Fatalf("expected bool rendering, got %q", got)
	}
}

func TestRenderTurns(t *testing.T) {
	t.Parallel()

	if got := renderTurns(nil); got != "(none)" {
		t.Fatalf("expected placeholder for empty context, got %q", got)
	}
	turns := []contractx.Turn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	want := "user: hello\nassistant: hi"
	if got := renderTurns(turns); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "model"); err == nil {
		t.Fatal("expected error for nil api client")
	}
}
