package services_test

import (
	"context"
	"testing"

	"fetchbot/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithUserID(ctx, 7)
	ctx = services.WithStage(ctx, "download")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if user, ok := services.UserIDFromContext(ctx); !ok || user != 7 {
		t.Fatalf("unexpected user id: %v %v", user, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "download" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
	if _, ok := services.UserIDFromContext(ctx); ok {
		t.Fatal("expected no user id value")
	}
}

func TestScopeIsCopiedPerDerivation(t *testing.T) {
	parent := services.WithJobID(context.Background(), "job-1")
	child := services.WithStage(parent, "upload")
	if _, ok := services.StageFromContext(parent); ok {
		t.Fatal("deriving a child must not alter the parent scope")
	}
	scope := services.ScopeFrom(child)
	if scope.JobID != "job-1" || scope.Stage != "upload" || scope.HasUser {
		t.Fatalf("unexpected scope %+v", scope)
	}
}
