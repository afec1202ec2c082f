package textutil

import (
	"reflect"
	"testing"
)

func TestWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Paris is the Capital.", []string{"paris", "is", "the", "capital"}},
		{"Don't stop, l’homme!", []string{"don't", "stop", "l’homme"}},
		{"Größe 42 über", []string{"größe", "über"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		if got := Words(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Words(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWordSetAndShared(t *testing.T) {
	a := WordSet("the capital of France, the capital")
	if len(a) != 4 {
		t.Errorf("WordSet size = %d, want 4", len(a))
	}
	b := WordSet("Paris is the capital")
	if got := Shared(a, b); got != 2 {
		t.Errorf("Shared = %d, want 2", got)
	}
	if got := Shared(a, nil); got != 0 {
		t.Errorf("Shared with empty = %d", got)
	}
}
