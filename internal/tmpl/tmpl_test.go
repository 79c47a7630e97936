package tmpl

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		reps     []Replacement
		want     string
	}{
		{
			name:     "repeated token",
			template: "Hi {name}, id={name}",
			reps:     []Replacement{{"{name}", "Bo"}},
			want:     "Hi Bo, id=Bo",
		},
		{
			name:     "no placeholders",
			template: "static text",
			reps:     []Replacement{{"{name}", "Bo"}},
			want:     "static text",
		},
		{
			name:     "empty template",
			template: "",
			reps:     []Replacement{{"{name}", "Bo"}},
			want:     "",
		},
		{
			name:     "multiple tokens",
			template: "{senderName} ({senderId}) at {timestamp}",
			reps: []Replacement{
				{"{senderId}", "+4912345"},
				{"{senderName}", "Alice"},
				{"{timestamp}", "2026-08-30 10:00:00 CEST"},
			},
			want: "Alice (+4912345) at 2026-08-30 10:00:00 CEST",
		},
		{
			name:     "later entry matches earlier output",
			template: "{a}",
			reps: []Replacement{
				{"{a}", "{b}"},
				{"{b}", "done"},
			},
			want: "done",
		},
		{
			name:     "unresolved token survives",
			template: "group {groupName}",
			reps:     []Replacement{{"{senderId}", "x"}},
			want:     "group {groupName}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.template, tt.reps); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}
