package extract

import (
	"errors"
	"testing"
)

func TestParseCandidates_Global(t *testing.T) {
	c, err := ParseCandidates([]byte(`{"identifiers": ["b", "a", "b"]}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if c.IsPerUnit() {
		t.Error("Expected a global document")
	}
	// the global list is used as written
	if got := c.Merged(); !equalStrings(got, []string{"b", "a", "b"}) {
		t.Errorf("Expected [b a b], got %v", got)
	}
	if got := c.ForUnit("Sources/Any.swift"); !equalStrings(got, []string{"b", "a", "b"}) {
		t.Errorf("Expected global list for any unit, got %v", got)
	}
}

func TestParseCandidates_PerUnit(t *testing.T) {
	c, err := ParseCandidates([]byte(`{
		"ViewController.swift": ["viewDidLoad", "shared"],
		"App/AppDelegate.swift": ["shared", "window"],
		"notes": "ignored"
	}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !c.IsPerUnit() {
		t.Fatal("Expected a per-unit document")
	}

	// units in sorted order, first seen wins
	want := []string{"shared", "window", "viewDidLoad"}
	if got := c.Merged(); !equalStrings(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 merged identifiers, got %d", c.Len())
	}

	if got := c.ForUnit("App/AppDelegate.swift"); !equalStrings(got, []string{"shared", "window"}) {
		t.Errorf("Expected relative path lookup, got %v", got)
	}
	if got := c.ForUnit("Sources/UI/ViewController.swift"); !equalStrings(got, []string{"viewDidLoad", "shared"}) {
		t.Errorf("Expected base name lookup, got %v", got)
	}
	if got := c.ForUnit("Other.swift"); len(got) != 0 {
		t.Errorf("Expected no identifiers for unknown unit, got %v", got)
	}

	if !equalStrings(c.Skipped, []string{"notes"}) {
		t.Errorf("Expected skipped [notes], got %v", c.Skipped)
	}
}

func TestParseCandidates_Errors(t *testing.T) {
	if _, err := ParseCandidates([]byte(`[1, 2]`)); err == nil {
		t.Error("Expected error for non-object document")
	}

	_, err := ParseCandidates([]byte(`{"a": 1, "b": {"c": []}}`))
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Expected ErrNoCandidates, got %v", err)
	}
}

func TestParseCandidates_Empty(t *testing.T) {
	c, err := ParseCandidates([]byte(`{}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Expected no identifiers, got %d", c.Len())
	}
}
