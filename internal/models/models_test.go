package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %s", base.ID)
	}
}

func TestUserProviderHelpers(t *testing.T) {
	user := User{Providers: []LinkedProvider{
		{Provider: "github", Subject: "1"},
		{Provider: "google", Subject: "a"},
		{Provider: "github", Subject: "2"},
	}}

	if !user.HasProvider("github", "2") {
		t.Fatal("expected github/2 to be linked")
	}
	if user.HasProvider("gitlab", "1") {
		t.Fatal("did not expect gitlab to be linked")
	}

	names := user.ProviderNames()
	if len(names) != 2 || names[0] != "github" || names[1] != "google" {
		t.Fatalf("unexpected provider names %v", names)
	}
}
