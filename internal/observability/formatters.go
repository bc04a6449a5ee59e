// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/story-archiver/internal/story"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintStory outputs a human-readable summary of a selected story.
func (p *Printer) PrintStory(s *story.Story) {
	if s == nil {
		return
	}

	meta, err := s.Meta()
	if err != nil {
		p.printBox(fmt.Sprintf("STORY %d", s.Key), fmt.Sprintf("meta unavailable: %v", err))
		return
	}

	var sb strings.Builder

	title, _ := meta.String("title")
	sb.WriteString(fmt.Sprintf("Title:     %s\n", title))

	if author, ok := meta.Sub("author"); ok {
		name, _ := author.String("name")
		sb.WriteString(fmt.Sprintf("Author:    %s\n", name))
	}

	if status, ok := s.Flavors["status"]; ok {
		sb.WriteString(fmt.Sprintf("Status:    %s\n", status))
	}

	if words, ok := meta.Int("words"); ok {
		sb.WriteString(fmt.Sprintf("Words:     %d\n", words))
	}

	likes, hasLikes := meta.Int("likes")
	dislikes, hasDislikes := meta.Int("dislikes")
	if hasLikes && hasDislikes {
		sb.WriteString(fmt.Sprintf("Likes:     %d\n", likes))
		sb.WriteString(fmt.Sprintf("Dislikes:  %d\n", dislikes))
		if total := likes + dislikes; total > 0 {
			approval := float64(likes) / float64(total)
			sb.WriteString(fmt.Sprintf("Approval:  %.0f%%\n", approval*100))
		}
	}

	sb.WriteString(fmt.Sprintf("Chapters:  %d", len(meta.Chapters())))

	p.printBox(fmt.Sprintf("STORY %d", s.Key), sb.String())
}

// PrintRunSummary outputs the end-of-run statistics.
func (p *Printer) PrintRunSummary(cursor, selected, skipped, failed int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Cursor:    %d\n", cursor))
	sb.WriteString(fmt.Sprintf("Selected:  %d\n", selected))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", skipped))
	sb.WriteString(fmt.Sprintf("Failed:    %d", failed))
	p.printBox("UPDATE RUN SUMMARY", sb.String())
}

// PrintArchiveInfo outputs basic facts about an opened archive.
func (p *Printer) PrintArchiveInfo(path string, stories int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Path:      %s\n", path))
	sb.WriteString(fmt.Sprintf("Stories:   %d", stories))
	p.printBox("ARCHIVE", sb.String())
}
