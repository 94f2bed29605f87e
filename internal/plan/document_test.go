package plan

import (
	"errors"
	"strings"
	"testing"
)

const sampleDoc = `# Plan

## Test Section
- [ ] First task
- [x] Second task
- [ ] Third task

## Another Section
- [ ] Task A
- [x] Task B

## Last Section
- [ ] Task 1
- [x] Task 2
`

func TestRoundTripIsByteIdentical(t *testing.T) {
	inputs := []string{
		sampleDoc,
		"",
		"no headings at all\njust prose\n",
		"## Only\n- [ ] one",
		"# Title\n\n## S\n\ntext between items\n- [ ] a\n\n- [x] b\n",
	}
	for _, in := range inputs {
		if got := Parse(in).String(); got != in {
			t.Errorf("round trip changed content:\nin:  %q\nout: %q", in, got)
		}
	}
}

func TestSections(t *testing.T) {
	secs := Parse(sampleDoc).Sections()
	if len(secs) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(secs))
	}
	if secs[0].Title != "Test Section" || len(secs[0].Items) != 3 {
		t.Errorf("unexpected first section: %+v", secs[0])
	}
	if !secs[0].Items[1].Checked || secs[0].Items[1].Text != "Second task" {
		t.Errorf("unexpected item: %+v", secs[0].Items[1])
	}
	if secs[2].Items[0].Checked {
		t.Error("Task 1 should be unchecked")
	}
}

func TestSectionsIgnoresItemsBeforeFirstHeading(t *testing.T) {
	secs := Parse("- [ ] orphan\n## S\n- [ ] real\n").Sections()
	if len(secs) != 1 || len(secs[0].Items) != 1 || secs[0].Items[0].Text != "real" {
		t.Fatalf("unexpected sections: %+v", secs)
	}
}

func TestSetChecked(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.SetChecked("Test Section", 0, true); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}
	if !strings.Contains(d.String(), "- [x] First task") {
		t.Error("First task was not checked")
	}
	if err := d.SetChecked("Another Section", 1, false); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}
	if !strings.Contains(d.String(), "- [ ] Task B") {
		t.Error("Task B was not unchecked")
	}
}

func TestSetCheckedIsIdempotent(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.SetChecked("Last Section", 1, true); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}
	first := d.String()
	if err := d.SetChecked("Last Section", 1, true); err != nil {
		t.Fatalf("second SetChecked failed: %v", err)
	}
	if d.String() != first {
		t.Error("repeated SetChecked changed the document")
	}
}

func TestSetCheckedErrors(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.SetChecked("No Such Section", 0, true); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("expected ErrSectionNotFound, got %v", err)
	}
	if err := d.SetChecked("Test Section", 3, true); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := d.SetChecked("Test Section", -1, true); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange for negative index, got %v", err)
	}
	if d.String() != sampleDoc {
		t.Error("failed mutation altered the document")
	}
}

func TestAddItemBeforeNextHeading(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.AddItem("Test Section", "New task"); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	out := d.String()
	newIdx := strings.Index(out, "- [ ] New task")
	headIdx := strings.Index(out, "## Another Section")
	if newIdx == -1 || headIdx == -1 || newIdx > headIdx {
		t.Errorf("new item not placed before next heading:\n%s", out)
	}
	if !strings.Contains(out, "- [ ] Third task") {
		t.Error("existing items were disturbed")
	}
}

func TestAddItemToLastSection(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.AddItem("Last Section", "Final task"); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if !strings.HasSuffix(d.String(), "- [x] Task 2\n- [ ] Final task\n") {
		t.Errorf("item not appended as last line of last section:\n%s", d.String())
	}
}

func TestAddItemSectionNotFound(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.AddItem("Missing", "x"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestDeleteItem(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.DeleteItem("Test Section", 1); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	out := d.String()
	if strings.Contains(out, "Second task") {
		t.Error("Second task was not removed")
	}
	if !strings.Contains(out, "First task") || !strings.Contains(out, "Third task") {
		t.Error("neighboring items were disturbed")
	}
}

func TestDeleteItemErrors(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.DeleteItem("Missing", 0); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("expected ErrSectionNotFound, got %v", err)
	}
	if err := d.DeleteItem("Another Section", 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestAddThenDeleteRestoresDocument(t *testing.T) {
	d := Parse(sampleDoc)
	if err := d.AddItem("Another Section", "temp"); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := d.DeleteItem("Another Section", 2); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if d.String() != sampleDoc {
		t.Errorf("add+delete did not restore the document:\n%s", d.String())
	}
}

func TestMutationSequence(t *testing.T) {
	in := "# Plan\n## A\n- [ ] one\n- [x] two\n## B\n- [ ] three\n"
	d := Parse(in)
	if err := d.SetChecked("A", 0, true); err != nil {
		t.Fatal(err)
	}
	if err := d.DeleteItem("A", 1); err != nil {
		t.Fatal(err)
	}
	if err := d.AddItem("B", "four"); err != nil {
		t.Fatal(err)
	}
	want := "# Plan\n## A\n- [x] one\n## B\n- [ ] three\n- [ ] four\n"
	if d.String() != want {
		t.Errorf("unexpected result:\ngot:  %q\nwant: %q", d.String(), want)
	}
}
