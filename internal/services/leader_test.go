package services

import (
	"context"
	"errors"
	"testing"

	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/pkg/utils"
)

func TestCreateLeader(t *testing.T) {
	db := openTestDB(t)
	svc := NewLeaderService(db)
	ctx := context.Background()

	leader, err := svc.CreateLeader(ctx, CreateLeaderParams{
		IdentityKey: "60000001-1",
		Email:       "lead-create@test.com",
		FirstName:   "Elena",
		Password:    "chosen-password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leader.ShortID) != 8 {
		t.Fatalf("expected 8-char short id, got %q", leader.ShortID)
	}
	if !leader.IsLeader || !leader.IsActive {
		t.Fatalf("expected active leader, got %+v", leader)
	}
	if !utils.CheckPassword("chosen-password", leader.PasswordHash) {
		t.Fatal("expected the chosen password to verify against the stored hash")
	}

	t.Run("duplicate identity conflicts", func(t *testing.T) {
		_, err := svc.CreateLeader(ctx, CreateLeaderParams{
			IdentityKey: "60000001-1",
			Email:       "different@test.com",
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := svc.CreateLeader(ctx, CreateLeaderParams{
			IdentityKey: "60000002-2",
			Email:       "lead-create@test.com",
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("generates a password when none given", func(t *testing.T) {
		generated, err := svc.CreateLeader(ctx, CreateLeaderParams{
			IdentityKey: "60000003-3",
			Email:       "lead-nopass@test.com",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if generated.PasswordHash == "" {
			t.Fatal("expected a hash for the generated password")
		}
	})
}

func TestGetLeader(t *testing.T) {
	db := openTestDB(t)
	svc := NewLeaderService(db)
	ctx := context.Background()

	leader := seedUser(t, db, "61000001-1", "lead-get@test.com", true)
	plain := seedUser(t, db, "61000002-2", "member-get@test.com", false)

	got, err := svc.GetLeader(ctx, leader.ShortID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != leader.ID {
		t.Fatalf("expected leader row, got %+v", got)
	}

	// Plain members are invisible to the leader lookup.
	if _, err := svc.GetLeader(ctx, plain.ShortID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for non-leader, got %v", err)
	}
	if _, err := svc.GetLeader(ctx, "ZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateLeader(t *testing.T) {
	db := openTestDB(t)
	svc := NewLeaderService(db)
	ctx := context.Background()

	leader := seedUser(t, db, "62000001-1", "lead-update@test.com", true)

	t.Run("rotates the password", func(t *testing.T) {
		newPassword := "rotated-password"
		updated, err := svc.UpdateLeader(ctx, leader.ShortID, LeaderPatch{Password: &newPassword})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !utils.CheckPassword(newPassword, updated.PasswordHash) {
			t.Fatal("expected the new password to verify")
		}
		if utils.CheckPassword("password123", updated.PasswordHash) {
			t.Fatal("expected the old password to stop verifying")
		}
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		updated, err := svc.UpdateLeader(ctx, leader.ShortID, LeaderPatch{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.ID != leader.ID {
			t.Fatalf("expected same row, got %+v", updated)
		}
	})

	t.Run("refuses a leader with an active group", func(t *testing.T) {
		busy := seedUser(t, db, "62000002-2", "lead-busy@test.com", true)
		group := models.FamilyGroup{
			ShortID:    "GRP62000",
			LeaderID:   busy.ShortID,
			AppToken:   "TOK62000",
			MaxMembers: models.DefaultMaxMembers,
		}
		if err := db.Create(&group).Error; err != nil {
			t.Fatalf("failed seeding group: %v", err)
		}
		if err := db.Model(&models.User{}).Where("id = ?", busy.ID).Update("group_id", group.ShortID).Error; err != nil {
			t.Fatalf("failed linking leader: %v", err)
		}

		name := "Blocked"
		_, err := svc.UpdateLeader(ctx, busy.ShortID, LeaderPatch{FirstName: &name})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if err := svc.DeleteLeader(ctx, busy.ShortID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on delete, got %v", err)
		}
	})
}

func TestDeleteLeader(t *testing.T) {
	db := openTestDB(t)
	svc := NewLeaderService(db)
	ctx := context.Background()

	leader := seedUser(t, db, "63000001-1", "lead-delete@test.com", true)

	if err := svc.DeleteLeader(ctx, leader.ShortID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeleteLeader(ctx, leader.ShortID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after deletion, got %v", err)
	}
}
