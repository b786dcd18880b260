package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/mock"
)

func TestRegistry_GetUnknown(t *testing.T) {
	r := tts.NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, tts.ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistry_ListVoicesStampsProvider(t *testing.T) {
	a := &mock.Provider{IDValue: "a", Voices: []tts.Voice{{ID: "v1"}}}
	b := &mock.Provider{IDValue: "b", Voices: []tts.Voice{{ID: "v2", Provider: "explicit"}}}
	r := tts.NewRegistry(a, b)

	voices, err := r.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("len(voices) = %d, want 2", len(voices))
	}
	if voices[0].Provider != "a" {
		t.Errorf("voices[0].Provider = %q, want a", voices[0].Provider)
	}
	// An explicit owner set by the provider is preserved.
	if voices[1].Provider != "explicit" {
		t.Errorf("voices[1].Provider = %q, want explicit", voices[1].Provider)
	}
}

func TestRegistry_FindVoice(t *testing.T) {
	r := tts.NewRegistry(&mock.Provider{IDValue: "a", Voices: []tts.Voice{{ID: "v1"}}})

	v, err := r.FindVoice(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FindVoice: %v", err)
	}
	if v.Provider != "a" {
		t.Errorf("Provider = %q, want a", v.Provider)
	}

	if _, err := r.FindVoice(context.Background(), "missing"); !errors.Is(err, tts.ErrUnknownVoice) {
		t.Errorf("err = %v, want ErrUnknownVoice", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := tts.NewRegistry(&mock.Provider{IDValue: "a"})
	replacement := &mock.Provider{IDValue: "a", Voices: []tts.Voice{{ID: "v9"}}}
	r.Register(replacement)

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	p, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	voices, _ := p.ListVoices(context.Background())
	if len(voices) != 1 || voices[0].ID != "v9" {
		t.Errorf("replacement not in effect: %+v", voices)
	}
}
