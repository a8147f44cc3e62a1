package geoip

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewResolverEmptyPathDisablesLookup(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver, got %#v", r)
	}
	if r.Lookup() != nil {
		t.Fatal("expected nil lookup for nil resolver")
	}
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close nil resolver: %v", err)
	}
}

func TestNewResolverMissingDatabase(t *testing.T) {
	_, err := NewResolver(filepath.Join(t.TempDir(), "missing.mmdb"))
	if err == nil {
		t.Fatal("expected error for missing database")
	}
}
