package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/homecanvas/homecanvas/provider"
)

const optionsJSON = `[
	{"name": "Coastal Calm", "description": "Light and airy", "key_changes": ["white walls", "linen textiles"]},
	{"name": "Warm Modern", "description": "Cozy minimalism", "key_changes": ["walnut tones"]},
	{"name": "Industrial Edge", "description": "Raw textures", "key_changes": ["exposed brick"]},
	{"name": "Classic Revival", "description": "Timeless detail", "key_changes": ["crown molding"]}
]`

func TestGenerateOptions(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{optionsJSON}},
	}}
	d := New(client, nil, nil)

	options := d.GenerateOptions(context.Background(), testProject(), "wants a refresh", "give me some ideas")
	if len(options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(options))
	}
	if options[0].Name != "Coastal Calm" {
		t.Errorf("unexpected first option: %+v", options[0])
	}
}

func TestGenerateOptionsFencedJSON(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{"Here are your options:\n```json\n" + optionsJSON + "\n```"}},
	}}
	d := New(client, nil, nil)

	options := d.GenerateOptions(context.Background(), testProject(), "", "ideas")
	if len(options) != 4 {
		t.Fatalf("expected 4 options from fenced payload, got %d", len(options))
	}
}

func TestGenerateOptionsSurroundingProse(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{"Sure! " + optionsJSON + " Let me know which you like."}},
	}}
	d := New(client, nil, nil)

	options := d.GenerateOptions(context.Background(), testProject(), "", "ideas")
	if len(options) != 4 {
		t.Fatalf("expected 4 options from embedded payload, got %d", len(options))
	}
}

func TestGenerateOptionsParseFailureFallsBack(t *testing.T) {
	client := &mockClient{responses: []*provider.GenerateResponse{
		{TextBlocks: []string{"I cannot produce JSON right now."}},
	}}
	d := New(client, nil, nil)

	options := d.GenerateOptions(context.Background(), testProject(), "", "ideas")
	if len(options) != 1 {
		t.Fatalf("expected single fallback option, got %d", len(options))
	}
	if options[0].Name == "" {
		t.Error("fallback option missing name")
	}
}

func TestGenerateOptionsModelFailureFallsBack(t *testing.T) {
	client := &mockClient{err: errors.New("model unavailable")}
	d := New(client, nil, nil)

	options := d.GenerateOptions(context.Background(), testProject(), "", "ideas")
	if len(options) != 1 {
		t.Fatalf("expected single fallback option, got %d", len(options))
	}
}

func TestParseOptionsTruncatesExtra(t *testing.T) {
	payload := `[
		{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}, {"name": "E"}
	]`
	options, err := parseOptions(payload)
	if err != nil {
		t.Fatalf("parseOptions failed: %v", err)
	}
	if len(options) != 4 {
		t.Errorf("expected truncation to 4, got %d", len(options))
	}
}
