package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/crosspost/internal/domain/repository"
)

func TestUpsert_OverwritesSamePair(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	first, err := s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "reddit", AccessTokenEnc: "enc-a",
	})
	if err != nil {
		t.Fatalf("Upsert err: %v", err)
	}

	second, err := s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "reddit", AccessTokenEnc: "enc-b", DisplayName: "nuevo",
	})
	if err != nil {
		t.Fatalf("Upsert err: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a second connection for the same pair")
	}
	if second.AccessTokenEnc != "enc-b" || second.DisplayName != "nuevo" {
		t.Fatalf("upsert did not overwrite: %+v", second)
	}

	got, err := s.Get(ctx, "u1", "reddit")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.AccessTokenEnc != "enc-b" {
		t.Fatalf("Get returned stale data")
	}
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	s := New()
	if _, err := s.Get(context.Background(), "nadie", "reddit"); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsert_ReactivatesAndClearsError(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{UserID: "u1", Platform: "tiktok", AccessTokenEnc: "a"})
	if err := s.SetInactive(ctx, "u1", "tiktok", "refresh failed"); err != nil {
		t.Fatalf("SetInactive err: %v", err)
	}

	c, _ := s.Get(ctx, "u1", "tiktok")
	if c.Active || c.LastError == "" || c.LastErrorTime == nil {
		t.Fatalf("SetInactive did not record error state: %+v", c)
	}

	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{UserID: "u1", Platform: "tiktok", AccessTokenEnc: "b"})
	c, _ = s.Get(ctx, "u1", "tiktok")
	if !c.Active || c.LastError != "" || c.LastErrorTime != nil {
		t.Fatalf("Upsert did not reset error state: %+v", c)
	}
}

func TestListExpiring(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	soon := time.Now().Add(30 * time.Minute)
	far := time.Now().Add(72 * time.Hour)

	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "pinterest", AccessTokenEnc: "a", RefreshTokenEnc: "r", ExpiresAt: &soon,
	})
	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "linkedin", AccessTokenEnc: "a", RefreshTokenEnc: "r", ExpiresAt: &far,
	})
	// Sin refresh token: no refrescable, no aparece
	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "facebook", AccessTokenEnc: "a", ExpiresAt: &soon,
	})
	// Sin expiración: no aparece
	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "discord", AccessTokenEnc: "a", RefreshTokenEnc: "r",
	})

	got, err := s.ListExpiring(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ListExpiring err: %v", err)
	}
	if len(got) != 1 || got[0].Platform != "pinterest" {
		t.Fatalf("ListExpiring = %+v, want solo pinterest", got)
	}
}

func TestUpdateTokens_And_Delete(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{UserID: "u1", Platform: "reddit", AccessTokenEnc: "a"})

	exp := time.Now().Add(time.Hour)
	if err := s.UpdateTokens(ctx, "u1", "reddit", "a2", "r2", &exp); err != nil {
		t.Fatalf("UpdateTokens err: %v", err)
	}
	c, _ := s.Get(ctx, "u1", "reddit")
	if c.AccessTokenEnc != "a2" || c.RefreshTokenEnc != "r2" || c.ExpiresAt == nil {
		t.Fatalf("UpdateTokens did not persist: %+v", c)
	}

	if err := s.UpdateTokens(ctx, "u9", "reddit", "x", "y", nil); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "u1", "reddit"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if err := s.Delete(ctx, "u1", "reddit"); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestClone_Isolation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_, _ = s.Upsert(ctx, repository.UpsertConnectionInput{
		UserID: "u1", Platform: "reddit", AccessTokenEnc: "a", Scopes: []string{"identity"},
	})
	c, _ := s.Get(ctx, "u1", "reddit")
	c.AccessTokenEnc = "mutado"
	c.Scopes[0] = "mutado"

	again, _ := s.Get(ctx, "u1", "reddit")
	if again.AccessTokenEnc != "a" || again.Scopes[0] != "identity" {
		t.Fatalf("caller mutation leaked into store")
	}
}
