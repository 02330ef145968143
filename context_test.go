package inspectflow

import (
	"context"
	"testing"
)

func TestNewActor(t *testing.T) {
	actor, err := NewActor("u-7", "Business Development")
	if err != nil {
		t.Fatalf("NewActor: %v", err)
	}
	if actor.Role != RoleBusinessDevelopment {
		t.Errorf("Expected business_development, got %s", actor.Role)
	}

	if _, err := NewActor("", "supervisor"); GetErrorCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected missing id to be invalid input, got %v", err)
	}
	if _, err := NewActor("u-7", "intern"); GetErrorCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected unknown role to be invalid input, got %v", err)
	}
}

func TestActor_Validate(t *testing.T) {
	if err := (Actor{ID: "x", Role: "ceo"}).Validate(); err == nil {
		t.Error("Expected unknown role to fail validation")
	}
	if err := TestProcurement.Validate(); err != nil {
		t.Errorf("Expected fixture actor to validate, got %v", err)
	}
}

func TestActorContext(t *testing.T) {
	ctx := WithActor(context.Background(), TestGeneralManager)

	actor, ok := ActorFromContext(ctx)
	if !ok || actor != TestGeneralManager {
		t.Errorf("Expected actor from context, got %+v %v", actor, ok)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("Expected no actor in an empty context")
	}
}
