package mention

import "testing"

func namesOf(m map[string]string) LookupFunc {
	return func(recipient string) string { return m[recipient] }
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		spans  []Span
		lookup map[string]string
		want   string
	}{
		{
			name: "empty body no spans",
			body: "",
			want: "",
		},
		{
			name: "no spans returns body unchanged",
			body: "hello world",
			want: "hello world",
		},
		{
			name:   "single mention with resolved name",
			body:   "hello X world",
			spans:  []Span{{Recipient: "X", Start: 6, Length: 1}},
			lookup: map[string]string{"X": "Alice"},
			want:   "hello @X (Alice) world",
		},
		{
			name:  "single mention unknown name",
			body:  "hello X world",
			spans: []Span{{Recipient: "+4912345", Start: 6, Length: 1}},
			want:  "hello @+4912345 world",
		},
		{
			name: "multiple ordered mentions",
			body: "A and B here",
			spans: []Span{
				{Recipient: "a", Start: 0, Length: 1},
				{Recipient: "b", Start: 6, Length: 1},
			},
			lookup: map[string]string{"a": "Ann", "b": "Ben"},
			want:   "@a (Ann) and @b (Ben) here",
		},
		{
			name:  "span ending exactly at text end has no remainder",
			body:  "ping X",
			spans: []Span{{Recipient: "x", Start: 5, Length: 1}},
			want:  "ping @x",
		},
		{
			name:  "span end past text end drops remainder",
			body:  "ping X",
			spans: []Span{{Recipient: "x", Start: 5, Length: 4}},
			want:  "ping @x",
		},
		{
			name: "out of order span is skipped",
			body: "A and B here",
			spans: []Span{
				{Recipient: "b", Start: 6, Length: 1},
				{Recipient: "a", Start: 0, Length: 1},
			},
			want: "A and @b here",
		},
		{
			name:  "span start past text end is skipped",
			body:  "short",
			spans: []Span{{Recipient: "x", Start: 99, Length: 1}},
			want:  "short",
		},
		{
			name:   "offsets count code points not bytes",
			body:   "héllo X!",
			spans:  []Span{{Recipient: "x", Start: 6, Length: 1}},
			lookup: map[string]string{"x": "Xa"},
			want:   "héllo @x (Xa)!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.body, tt.spans, namesOf(tt.lookup))
			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}
