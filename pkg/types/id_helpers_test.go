package types

import "testing"

func TestValidateExternalID(t *testing.T) {
	valid := []string{
		"0047765d0b6165476b11297e58a341c357af9c35e12efd8c060dabe293ea338d",
		"404299",
		"a",
	}
	for _, s := range valid {
		if err := ValidateExternalID(s); err != nil {
			t.Fatalf("ValidateExternalID(%q): %v", s, err)
		}
	}
	invalid := []string{
		"",
		"UPPER",
		"has-dash",
		"0047765d0b6165476b11297e58a341c357af9c35e12efd8c060dabe293ea338d0",
	}
	for _, s := range invalid {
		if err := ValidateExternalID(s); err == nil {
			t.Fatalf("ValidateExternalID(%q): expected error", s)
		}
	}
}

func TestParseLocale(t *testing.T) {
	l, err := ParseLocale("en-GB")
	if err != nil {
		t.Fatalf("parse en-GB: %v", err)
	}
	if l.Language != "en" || l.Country != "gb" {
		t.Fatalf("unexpected locale %+v", l)
	}
	if l.String() != "en-gb" {
		t.Fatalf("string form %q", l.String())
	}

	l, err = ParseLocale("pt")
	if err != nil {
		t.Fatalf("parse pt: %v", err)
	}
	if l.String() != "pt" {
		t.Fatalf("string form %q", l.String())
	}

	if _, err := ParseLocale("pt-br-x"); err == nil {
		t.Fatalf("expected error for pt-br-x")
	}
	if _, err := ParseLocale("catalan"); err == nil {
		t.Fatalf("expected error for catalan")
	}
}
