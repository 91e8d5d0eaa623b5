// Package notify renders operator notifications and delivers them through a
// pluggable sink.
//
// The renderer is pure: it assembles structured content from a fault summary
// and contextual fields. Delivery, editing and deletion happen behind the
// Sink interface so the aggregation core never touches a wire protocol.
package notify

import (
	"fmt"
	"strings"
)

// Blank is the zero-width space used as an invisible field spacer. Spacer
// fields are rendered verbatim, without the code emphasis applied to real
// values.
const Blank = "​"

// firstFooter is the footer text every new notification starts with. The
// aggregation coordinator rewrites it with OccurrenceFooter as the incident
// recurs.
const firstFooter = "This fault has occurred 1 time!"

// FaultColor is the accent color applied to fault notifications, for sinks
// whose display surface supports one.
const FaultColor = 0xED4245

// Field is one labelled contextual value on a notification.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// BlankField returns an invisible spacer field.
func BlankField() Field {
	return Field{Name: Blank, Value: Blank, Inline: true}
}

// Author attributes a notification to the actor whose action surfaced the
// fault.
type Author struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// Content is the structured body of an operator notification.
type Content struct {
	Title      string  `json:"title"`
	Fields     []Field `json:"fields"`
	FooterText string  `json:"footer_text"`
	Author     *Author `json:"author,omitempty"`
	Color      int     `json:"color,omitempty"`
}

// Render builds the content of a brand-new incident notification. Field
// values are wrapped in code emphasis except for blank spacers, which pass
// through untouched.
func Render(summary string, fields []Field, author *Author) Content {
	rendered := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Value != Blank {
			f.Value = fmt.Sprintf("`%s`", f.Value)
		}
		rendered = append(rendered, f)
	}

	return Content{
		Title:      summary,
		Fields:     rendered,
		FooterText: firstFooter,
		Author:     author,
		Color:      FaultColor,
	}
}

// OccurrenceFooter returns the footer text for an incident seen count times.
func OccurrenceFooter(count int64) string {
	if count == 1 {
		return firstFooter
	}
	return fmt.Sprintf("This fault has occurred %d times!", count)
}

// PlainText flattens content into a readable plain-text body.
func (c Content) PlainText() string {
	var sb strings.Builder

	sb.WriteString(c.Title)
	sb.WriteString("\n")
	if c.Author != nil {
		sb.WriteString(fmt.Sprintf("reported via %s\n", c.Author.Name))
	}
	sb.WriteString("\n")

	for _, f := range c.Fields {
		if f.Name == Blank {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", f.Name, f.Value))
	}

	sb.WriteString("\n")
	sb.WriteString(c.FooterText)

	return sb.String()
}
