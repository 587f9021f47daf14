package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nugget/designer-agent/internal/slide"
)

func TestSessionIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty when unset", context.Background(), ""},
		{"round trip", WithSessionID(context.Background(), "AB12-3456"), "AB12-3456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("SessionIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunContext(t *testing.T) {
	rc := NewRunContext("AB12-3456", "make a slide", nil, "/tmp/out", nil)
	if got, want := rc.OutputDir(), filepath.Join("/tmp/out", "AB12-3456"); got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
	if rc.HasReference() {
		t.Error("HasReference() = true without an image")
	}

	rc.ReferenceImage = &slide.Image{MIMEType: "image/png"}
	if rc.HasReference() {
		t.Error("HasReference() = true for an empty image")
	}
	rc.ReferenceImage.Data = []byte{1}
	if !rc.HasReference() {
		t.Error("HasReference() = false with image data")
	}
}
