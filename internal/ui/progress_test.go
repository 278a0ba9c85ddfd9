package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"fieldfix/internal/batch"
)

func TestProgressModelCounts(t *testing.T) {
	events := make(chan batch.Event)
	m := NewProgressModel("fieldfix", []string{"a.ts", "b.ts", "c.ts"}, events).(*progressModel)

	for _, ev := range []batch.Event{
		{File: "a.ts", Status: batch.StatusWorking},
		{File: "a.ts", Status: batch.StatusDone, Changed: true},
		{File: "b.ts", Status: batch.StatusDone},
		{File: "c.ts", Status: batch.StatusError},
		{File: "c.ts", Status: batch.StatusError},
		{File: "unknown.ts", Status: batch.StatusDone},
	} {
		m.applyEvent(ev)
	}
	if m.settled != 3 || m.fixed != 1 || m.failed != 1 {
		t.Fatalf("settled=%d fixed=%d failed=%d", m.settled, m.fixed, m.failed)
	}

	next, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("done should quit")
	}
	view := next.View()
	for _, want := range []string{"done: fieldfix (3/3, 1 fixed, 1 errors)", "fixed", "clean", "error"} {
		if !strings.Contains(view, want) {
			t.Errorf("view misses %q:\n%s", want, view)
		}
	}
}

func TestVisibleRowsPrefersActive(t *testing.T) {
	m := NewProgressModel("x", []string{"1", "2", "3", "4", "5"}, nil).(*progressModel)
	m.items[3].status = labelWorking
	m.items[4].status = labelError
	rows := m.visibleRows(2)
	if len(rows) != 2 || rows[0] != 3 || rows[1] != 4 {
		t.Fatalf("rows = %v, want [3 4]", rows)
	}
	if got := len(m.visibleRows(10)); got != 5 {
		t.Fatalf("short list truncated to %d", got)
	}
}

func TestWindowResize(t *testing.T) {
	m := NewProgressModel("x", []string{strings.Repeat("a", 200)}, nil)
	m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if strings.Contains(m.View(), strings.Repeat("a", 100)) {
		t.Error("long path not truncated")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 5); got != "ab..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
