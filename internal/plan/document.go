// Package plan models the remote markdown task list.
//
// A Document keeps every line of the file verbatim; sections and items are
// views derived from the lines. Mutations splice individual lines so that
// everything else round-trips byte-for-byte.
//
// Format: a `## Title` line starts a section; `- [ ] text` / `- [x] text`
// lines are items of the current section; all other lines are structural
// filler that is preserved untouched.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Logic errors, distinct from transport failures in remotefs.
var (
	ErrSectionNotFound = errors.New("section not found")
	ErrIndexOutOfRange = errors.New("item index out of range")
)

// Item is a single checklist entry.
type Item struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// Section is a titled group of items. Titles double as keys: the format has
// no stable identifiers, so documents are expected to keep them unique.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

var (
	headingRe = regexp.MustCompile(`^##\s+(.+)$`)
	itemRe    = regexp.MustCompile(`^-\s+\[([ x])\]\s+(.+)$`)
)

// Document is a parsed plan file. The zero value is not useful; construct
// with Parse.
type Document struct {
	lines []string
}

// Parse materializes a Document from raw file content.
func Parse(content string) *Document {
	return &Document{lines: strings.Split(content, "\n")}
}

// String serializes the document. Parsing and serializing without mutation
// yields the input byte-for-byte.
func (d *Document) String() string {
	return strings.Join(d.lines, "\n")
}

// Sections returns the structured view of the document. Item lines before
// the first heading are ignored.
func (d *Document) Sections() []Section {
	var sections []Section
	for _, line := range d.lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			sections = append(sections, Section{Title: m[1], Items: []Item{}})
			continue
		}
		if len(sections) == 0 {
			continue
		}
		if m := itemRe.FindStringSubmatch(line); m != nil {
			cur := &sections[len(sections)-1]
			cur.Items = append(cur.Items, Item{Text: m[2], Checked: m[1] == "x"})
		}
	}
	return sections
}

// SetChecked flips the mark of the item at itemIndex within the named
// section. The index counts item lines only, in document order.
func (d *Document) SetChecked(sectionTitle string, itemIndex int, checked bool) error {
	if itemIndex < 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, itemIndex)
	}

	current := ""
	seen := false
	count := 0
	for i, line := range d.lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			if current == sectionTitle {
				seen = true
			}
			count = 0
			continue
		}
		m := itemRe.FindStringSubmatch(line)
		if m == nil || current != sectionTitle {
			continue
		}
		if count == itemIndex {
			mark := " "
			if checked {
				mark = "x"
			}
			d.lines[i] = fmt.Sprintf("- [%s] %s", mark, m[2])
			return nil
		}
		count++
	}

	if !seen {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, sectionTitle)
	}
	return fmt.Errorf("%w: %d in section %q", ErrIndexOutOfRange, itemIndex, sectionTitle)
}

// AddItem appends an unchecked item as the last line of the named section:
// immediately before the next section heading, or at end of file when the
// section is the last one.
func (d *Document) AddItem(sectionTitle, text string) error {
	insert := -1
	seen := false
	for i, line := range d.lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if seen {
			insert = i
			break
		}
		if m[1] == sectionTitle {
			seen = true
		}
	}
	if !seen {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, sectionTitle)
	}
	if insert == -1 {
		insert = len(d.lines)
		// Keep the trailing newline (an empty final element) in place.
		if insert > 0 && d.lines[insert-1] == "" {
			insert--
		}
	}

	newLine := "- [ ] " + text
	d.lines = append(d.lines[:insert], append([]string{newLine}, d.lines[insert:]...)...)
	return nil
}

// DeleteItem removes the line of the item at itemIndex within the named
// section.
func (d *Document) DeleteItem(sectionTitle string, itemIndex int) error {
	if itemIndex < 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, itemIndex)
	}

	current := ""
	seen := false
	count := 0
	for i, line := range d.lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			if current == sectionTitle {
				seen = true
			}
			count = 0
			continue
		}
		if itemRe.MatchString(line) && current == sectionTitle {
			if count == itemIndex {
				d.lines = append(d.lines[:i], d.lines[i+1:]...)
				return nil
			}
			count++
		}
	}

	if !seen {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, sectionTitle)
	}
	return fmt.Errorf("%w: %d in section %q", ErrIndexOutOfRange, itemIndex, sectionTitle)
}
