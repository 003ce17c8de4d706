package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batisecure/internal/gdpr/models"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func activeConsent(t *testing.T, id, userID string, purpose models.Purpose, grantedAt time.Time) *models.Consent {
	t.Helper()
	c, err := models.NewConsent(id, userID, purpose, "10.0.0.1", "test", grantedAt)
	require.NoError(t, err)
	return c
}

func TestMemoryConsentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("revoke without active rows", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Revoke(ctx, "user-1", models.PurposeMarketing, baseTime, "", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("revoke touches only the matching purpose", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Save(ctx, activeConsent(t, "c1", "user-1", models.PurposeMarketing, baseTime)))
		require.NoError(t, s.Save(ctx, activeConsent(t, "c2", "user-1", models.PurposeAnalytics, baseTime)))

		revoked, err := s.Revoke(ctx, "user-1", models.PurposeMarketing, baseTime.Add(time.Hour), "10.0.0.2", "curl")
		require.NoError(t, err)
		require.Len(t, revoked, 1)
		assert.Equal(t, "c1", revoked[0].ID)

		still, err := s.ActiveByUserAndPurpose(ctx, "user-1", models.PurposeAnalytics)
		require.NoError(t, err)
		assert.Len(t, still, 1)
	})

	t.Run("listings return copies", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Save(ctx, activeConsent(t, "c1", "user-1", models.PurposeCookies, baseTime)))

		first, err := s.ListByUser(ctx, "user-1", nil)
		require.NoError(t, err)
		first[0].UserID = "tampered"

		second, err := s.ListByUser(ctx, "user-1", nil)
		require.NoError(t, err)
		assert.Equal(t, "user-1", second[0].UserID)
	})

	t.Run("newest first ordering", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Save(ctx, activeConsent(t, "old", "user-1", models.PurposeMarketing, baseTime)))
		require.NoError(t, s.Save(ctx, activeConsent(t, "new", "user-1", models.PurposeAnalytics, baseTime.Add(time.Hour))))

		out, err := s.ListByUser(ctx, "user-1", nil)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "new", out[0].ID)
	})
}

func TestMemorySnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutProfile(&models.UserProfile{ID: "user-1", Email: "paul.martin@example.com", Nom: "Martin"})
	s.PutMessages("user-1", []*models.Message{{ID: "m1", UserID: "user-1", Contenu: "bonjour"}})
	s.PutDocuments("user-1", []*models.Document{{ID: "d1", UserID: "user-1", Nom: "plan.pdf"}})

	snap := s.Snapshot()

	require.NoError(t, s.AnonymizeProfile(ctx, "user-1", "anonyme-000000000000@rgpd.invalid"))
	_, err := s.RedactMessages(ctx, "user-1", models.MessageRedacted)
	require.NoError(t, err)
	_, err = s.DeleteDocuments(ctx, "user-1")
	require.NoError(t, err)

	s.Restore(snap)

	profile, err := s.Profile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "paul.martin@example.com", profile.Email)

	messages, err := s.Messages(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "bonjour", messages[0].Contenu)

	documents, err := s.Documents(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, documents, 1)
}

func TestMemoryRightsStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	request := &models.RightsRequest{
		ID: "r1", UserID: "user-1",
		Type: models.RequestAccess, Status: models.StatusPending,
		CreatedAt: baseTime,
	}
	require.NoError(t, s.SaveRequest(ctx, request))

	t.Run("find returns a copy", func(t *testing.T) {
		found, err := s.FindRequestByID(ctx, "r1")
		require.NoError(t, err)
		found.Status = models.StatusCompleted

		again, err := s.FindRequestByID(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, again.Status)
	})

	t.Run("update unknown request", func(t *testing.T) {
		err := s.UpdateRequest(ctx, &models.RightsRequest{ID: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("filter by status", func(t *testing.T) {
		pending := models.StatusPending
		out, err := s.ListRequests(ctx, &models.RequestFilter{Status: &pending})
		require.NoError(t, err)
		assert.Len(t, out, 1)

		completed := models.StatusCompleted
		out, err = s.ListRequests(ctx, &models.RequestFilter{Status: &completed})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestMemoryRetentionUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, &models.RetentionPolicy{
		DataType: "messages", Category: "chat", RetentionDays: 365, UpdatedAt: baseTime,
	}))
	require.NoError(t, s.Upsert(ctx, &models.RetentionPolicy{
		DataType: "Messages", Category: "CHAT", RetentionDays: 730, UpdatedAt: baseTime.Add(time.Hour),
	}))

	policies, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, 730, policies[0].RetentionDays)
}
