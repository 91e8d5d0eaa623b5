package notify

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	fields := []Field{
		{Name: "Event", Value: "command", Inline: true},
		BlankField(),
		{Name: "Channel Type", Value: "Text Channel", Inline: true},
	}

	content := Render("nil pointer dereference", fields, &Author{Name: "alice"})

	if content.Title != "nil pointer dereference" {
		t.Errorf("Title = %q", content.Title)
	}
	if content.FooterText != "This fault has occurred 1 time!" {
		t.Errorf("FooterText = %q", content.FooterText)
	}
	if content.Author == nil || content.Author.Name != "alice" {
		t.Errorf("Author = %+v", content.Author)
	}

	if got := content.Fields[0].Value; got != "`command`" {
		t.Errorf("field value = %q, want code-wrapped", got)
	}
	// The invisible spacer must pass through without formatting.
	if got := content.Fields[1].Value; got != Blank {
		t.Errorf("spacer value = %q, want bare blank", got)
	}
}

func TestRender_DoesNotMutateInput(t *testing.T) {
	fields := []Field{{Name: "Event", Value: "message", Inline: true}}

	Render("boom", fields, nil)

	if fields[0].Value != "message" {
		t.Errorf("input field mutated to %q", fields[0].Value)
	}
}

func TestOccurrenceFooter(t *testing.T) {
	tests := []struct {
		count int64
		want  string
	}{
		{1, "This fault has occurred 1 time!"},
		{2, "This fault has occurred 2 times!"},
		{137, "This fault has occurred 137 times!"},
	}

	for _, tt := range tests {
		if got := OccurrenceFooter(tt.count); got != tt.want {
			t.Errorf("OccurrenceFooter(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	content := Render("boom", []Field{
		{Name: "Event", Value: "command", Inline: true},
		BlankField(),
	}, nil)

	text := content.PlainText()

	if !strings.Contains(text, "boom") {
		t.Error("PlainText() missing title")
	}
	if !strings.Contains(text, "Event: `command`") {
		t.Errorf("PlainText() missing field line: %q", text)
	}
	if !strings.Contains(text, "occurred 1 time!") {
		t.Error("PlainText() missing footer")
	}
}
