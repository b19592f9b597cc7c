package provider

import (
	"context"
	"testing"
)

func TestNacos_WatchEnsureError(t *testing.T) {
	p := NewNacos([]string{}, "", "DEFAULT_GROUP", "x")
	if err := p.Watch(context.Background(), func() {}); err == nil {
		t.Fatalf("want error")
	}
}

func TestNacos_FetchEnsureError(t *testing.T) {
	p := NewNacos([]string{}, "", "DEFAULT_GROUP", "x")
	if _, err := p.Fetch(context.Background(), Request{}); err == nil {
		t.Fatalf("want error")
	}
}
