package tokens

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{
			name:  "exact model match",
			model: "gpt-4",
			want:  "cl100k_base",
		},
		{
			name:  "prefix match for versioned model",
			model: "gpt-4-0613",
			want:  "cl100k_base",
		},
		{
			name:  "unknown model falls back",
			model: "llama-3-70b-instruct",
			want:  DefaultEncoding,
		},
		{
			name:  "empty model falls back",
			model: "",
			want:  DefaultEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveEncoding(tt.model, DefaultEncoding)
			if got != tt.want {
				t.Errorf("resolveEncoding(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestCountTokensDeterministic(t *testing.T) {
	e := NewEstimator()
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	first := e.CountTokens(text, "gpt-4")
	if first == 0 {
		t.Fatal("CountTokens returned 0 for non-empty text")
	}

	for i := 0; i < 5; i++ {
		if got := e.CountTokens(text, "gpt-4"); got != first {
			t.Fatalf("CountTokens not deterministic: got %d, want %d", got, first)
		}
	}
}

func TestCountTokensKnownValues(t *testing.T) {
	e := NewEstimator()

	if got := e.CountTokens("hello world", "gpt-4"); got != 2 {
		t.Errorf("CountTokens(%q) = %d, want 2", "hello world", got)
	}
	if got := e.CountTokens("", "gpt-4"); got != 0 {
		t.Errorf("CountTokens(empty) = %d, want 0", got)
	}
}

func TestCountTokensUnknownModelMatchesDefault(t *testing.T) {
	e := NewEstimator()
	text := "SELECT id, name FROM customers WHERE region = 'EMEA'"

	unknown := e.CountTokens(text, "some-future-model")
	// gpt-4 resolves to cl100k_base, which is also the default encoding.
	known := e.CountTokens(text, "gpt-4")

	if unknown != known {
		t.Errorf("unknown model counted %d tokens, default encoding counted %d", unknown, known)
	}
}

func TestEstimateTokensCanonicalForm(t *testing.T) {
	e := NewEstimator()
	data := map[string]any{
		"zeta": "x",
		"b":    1,
		"a":    []int{1, 2, 3},
	}

	got, err := e.EstimateTokens(data, "gpt-4")
	if err != nil {
		t.Fatalf("EstimateTokens returned error: %v", err)
	}

	// Canonical form is compact JSON with sorted keys.
	want := e.CountTokens(`{"a":[1,2,3],"b":1,"zeta":"x"}`, "gpt-4")
	if got != want {
		t.Errorf("EstimateTokens = %d, want %d (count of canonical form)", got, want)
	}
}

func TestEstimateTokensSerializationFailure(t *testing.T) {
	e := NewEstimator()

	_, err := e.EstimateTokens(map[string]any{"ch": make(chan int)}, "gpt-4")
	if err == nil {
		t.Fatal("expected error for data with no JSON representation")
	}
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("error = %v, want ErrSerialization", err)
	}
}

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	raw, err := MarshalCanonical(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("MarshalCanonical returned error: %v", err)
	}
	if got, want := string(raw), `{"a":1,"b":2}`; got != want {
		t.Errorf("MarshalCanonical = %s, want %s", got, want)
	}
}

func TestEstimateResponseTokens(t *testing.T) {
	e := NewEstimator()
	data := map[string]any{"rows": []string{"a", "b", "c"}}

	base, err := e.EstimateTokens(data, "gpt-4")
	if err != nil {
		t.Fatalf("EstimateTokens returned error: %v", err)
	}

	tests := []struct {
		name     string
		overhead int
		want     int
	}{
		{name: "zero selects default overhead", overhead: 0, want: base + DefaultResponseOverhead},
		{name: "negative selects default overhead", overhead: -5, want: base + DefaultResponseOverhead},
		{name: "explicit overhead", overhead: 10, want: base + 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EstimateResponseTokens(data, "gpt-4", tt.overhead)
			if err != nil {
				t.Fatalf("EstimateResponseTokens returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EstimateResponseTokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountTokensHeuristicFallback(t *testing.T) {
	e := NewEstimator(withBuilder(func(string) (Tokenizer, error) {
		return nil, errors.New("no encodings available")
	}))

	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "abcd", want: 1},
		{text: "abcde", want: 2},
		{text: "abcdefgh", want: 2},
	}

	for _, tt := range tests {
		if got := e.CountTokens(tt.text, "gpt-4"); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d (heuristic)", tt.text, got, tt.want)
		}
	}
}
