package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batisecure/internal/crypto/pii"
	"batisecure/internal/gdpr/models"
	gstore "batisecure/internal/gdpr/store"
	dErrors "batisecure/pkg/domain-errors"
)

var testTime = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	mem        *gstore.MemoryStore
	controller *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mem := gstore.NewMemoryStore()
	stores := Stores{
		Consents:  mem,
		Requests:  mem,
		Logs:      mem,
		Retention: mem,
		Breaches:  mem,
		Subjects:  mem,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return testTime })}, opts...)
	return &fixture{
		mem:        mem,
		controller: NewController(stores, NewMemoryTx(mem), logger, opts...),
	}
}

func seedSubject(mem *gstore.MemoryStore, userID string) {
	photo := "https://cdn.example.com/photos/chantier-42.jpg"
	mem.PutProfile(&models.UserProfile{
		ID:         userID,
		Email:      "jean.dupont@example.com",
		Nom:        "Dupont",
		Prenom:     "Jean",
		Telephone:  "+33612345678",
		Entreprise: "Dupont BTP",
		Adresse:    "12 rue des Lilas, Lyon",
		Role:       "CLIENT",
		CreatedAt:  testTime.Add(-90 * 24 * time.Hour),
	})
	mem.PutMessages(userID, []*models.Message{
		{ID: "m1", UserID: userID, Contenu: "Le devis est-il prêt ?", CreatedAt: testTime.Add(-time.Hour)},
		{ID: "m2", UserID: userID, Contenu: "Photo du chantier", PhotoURL: &photo, CreatedAt: testTime.Add(-30 * time.Minute)},
	})
	mem.PutComments(userID, []*models.Comment{
		{ID: "c1", UserID: userID, Contenu: "Très satisfait des travaux", CreatedAt: testTime.Add(-2 * time.Hour)},
	})
	mem.PutDocuments(userID, []*models.Document{
		{ID: "d1", UserID: userID, Nom: "devis-2025.pdf", Chemin: "/uploads/devis-2025.pdf", CreatedAt: testTime.Add(-24 * time.Hour)},
	})
	mem.PutQuotes(userID, []map[string]any{
		{"id": "q1", "reference": "DEV-2025-001", "montant": 15400.0},
	})
}

func TestRecordConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("records a new grant", func(t *testing.T) {
		f := newFixture(t)
		consent, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeMarketing, "82.64.12.7", "Mozilla/5.0")
		require.NoError(t, err)
		assert.True(t, consent.IsActive())
		assert.Equal(t, testTime, consent.Timestamp)
		assert.Equal(t, "82.64.12.7", consent.IPAddress)

		logs, err := f.controller.ProcessingLogsByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.OperationConsent, logs[0].Operation)
		assert.Equal(t, models.BasisConsent, logs[0].LawfulBasis)
		// the audit trail must not carry the full address
		assert.Equal(t, "82.64.12.0", logs[0].Source)

		ranged, err := f.controller.ProcessingLogsBetween(ctx, testTime.Add(-time.Hour), testTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, ranged, 1)

		before, err := f.controller.ProcessingLogsBetween(ctx, testTime.Add(-2*time.Hour), testTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, before)

		_, err = f.controller.ProcessingLogsBetween(ctx, testTime, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects unknown purpose", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.RecordConsent(ctx, "user-1", models.Purpose("NEWSLETTER"), "", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConsent))
	})

	t.Run("conflicts while a grant is active", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeAnalytics, "", "")
		require.NoError(t, err)
		_, err = f.controller.RecordConsent(ctx, "user-1", models.PurposeAnalytics, "", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("re-grant after withdrawal creates a fresh row", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeCookies, "", "")
		require.NoError(t, err)
		_, err = f.controller.WithdrawConsent(ctx, "user-1", models.PurposeCookies, "82.64.12.7", "Mozilla/5.0")
		require.NoError(t, err)

		second, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeCookies, "", "")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		history, err := f.controller.ListConsents(ctx, "user-1", nil)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})
}

func TestWithdrawConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("soft-revokes and keeps the row", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeGeolocation, "", "")
		require.NoError(t, err)

		revoked, err := f.controller.WithdrawConsent(ctx, "user-1", models.PurposeGeolocation, "82.64.12.7", "curl/8.0")
		require.NoError(t, err)
		require.Len(t, revoked, 1)
		assert.False(t, revoked[0].IsActive())
		require.NotNil(t, revoked[0].RevokedAt)
		assert.Equal(t, "82.64.12.7", revoked[0].RevokedIPAddress)

		ok, err := f.controller.HasActiveConsent(ctx, "user-1", models.PurposeGeolocation)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing consent", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.WithdrawConsent(ctx, "user-1", models.PurposeMarketing, "", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingConsent))
	})
}

func TestRightsRequestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("submit opens a pending request", func(t *testing.T) {
		f := newFixture(t)
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestRectification,
			map[string]any{"champ": "telephone"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, request.Status)
		assert.Equal(t, testTime, request.CreatedAt)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestType("PURGE"), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("approve then reject is refused", func(t *testing.T) {
		f := newFixture(t)
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestObject, nil)
		require.NoError(t, err)

		approved, err := f.controller.ApproveRightsRequest(ctx, request.ID, "admin-1", "pris en charge")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, approved.Status)
		assert.Equal(t, "admin-1", approved.ProcessorUserID)

		rejected, err := f.controller.RejectRightsRequest(ctx, request.ID, "admin-1", "objection non fondée")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		require.NotNil(t, rejected.ProcessedAt)

		// terminal states are locked
		_, err = f.controller.ApproveRightsRequest(ctx, request.ID, "admin-2", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("pending request expires", func(t *testing.T) {
		f := newFixture(t)
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestObject, nil)
		require.NoError(t, err)

		expired, err := f.controller.ExpireRequest(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusExpired, expired.Status)
		require.NotNil(t, expired.ProcessedAt)

		// expiry is terminal
		_, err = f.controller.ApproveRightsRequest(ctx, request.ID, "admin-1", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("reject requires a note", func(t *testing.T) {
		f := newFixture(t)
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestRestrict, nil)
		require.NoError(t, err)
		_, err = f.controller.RejectRightsRequest(ctx, request.ID, "admin-1", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.ApproveRightsRequest(ctx, "missing", "admin-1", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestProcessAccessRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles the full snapshot", func(t *testing.T) {
		f := newFixture(t)
		seedSubject(f.mem, "user-1")
		_, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeMarketing, "", "")
		require.NoError(t, err)

		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestAccess, nil)
		require.NoError(t, err)

		export, err := f.controller.ProcessAccessRequest(ctx, request.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, "jean.dupont@example.com", export.Profile.Email)
		assert.Len(t, export.Messages, 2)
		assert.Len(t, export.Comments, 1)
		assert.Len(t, export.Documents, 1)
		assert.Len(t, export.Quotes, 1)
		assert.Len(t, export.Consents, 1)
		assert.NotEmpty(t, export.ProcessingLogs)

		updated, err := f.controller.GetRequest(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, updated.Status)
		assert.Equal(t, "admin-1", updated.ProcessorUserID)
		require.NotNil(t, updated.ProcessedAt)
	})

	t.Run("refuses a non-access request", func(t *testing.T) {
		f := newFixture(t)
		seedSubject(f.mem, "user-1")
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestErasure, nil)
		require.NoError(t, err)
		_, err = f.controller.ProcessAccessRequest(ctx, request.ID, "admin-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWrongRequestType))
	})

	t.Run("opens encrypted fields when a cipher is configured", func(t *testing.T) {
		cipher, err := pii.NewCipher("test-master-secret")
		require.NoError(t, err)
		f := newFixture(t, WithPIICipher(cipher))
		seedSubject(f.mem, "user-1")

		quote := map[string]any{"id": "q2", "reference": "DEV-2025-002", "iban": "FR7630006000011234567890189"}
		require.NoError(t, cipher.EncryptFields(quote))
		require.NotContains(t, quote, "iban")
		f.mem.PutQuotes("user-1", []map[string]any{quote})

		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestAccess, nil)
		require.NoError(t, err)
		export, err := f.controller.ProcessAccessRequest(ctx, request.ID, "admin-1")
		require.NoError(t, err)
		require.Len(t, export.Quotes, 1)
		assert.Equal(t, "FR7630006000011234567890189", export.Quotes[0]["iban"])
	})
}

var anonymousEmailPattern = regexp.MustCompile(`^anonyme-[0-9a-f]{12}@rgpd\.invalid$`)

func TestProcessErasureRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymizes the subject end to end", func(t *testing.T) {
		f := newFixture(t)
		seedSubject(f.mem, "user-1")

		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestErasure, nil)
		require.NoError(t, err)

		processed, err := f.controller.ProcessErasureRequest(ctx, request.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, processed.Status)
		assert.Equal(t, "admin-1", processed.ProcessorUserID)
		require.NotNil(t, processed.ProcessedAt)
		assert.Equal(t, 2, processed.ProcessedData["messages_redacted"])
		assert.Equal(t, 1, processed.ProcessedData["documents_deleted"])

		profile, err := f.mem.Profile(ctx, "user-1")
		require.NoError(t, err)
		assert.Regexp(t, anonymousEmailPattern, profile.Email)
		assert.Empty(t, profile.Nom)
		assert.Empty(t, profile.Telephone)
		assert.Equal(t, "user-1", profile.ID)

		messages, err := f.mem.Messages(ctx, "user-1")
		require.NoError(t, err)
		for _, m := range messages {
			assert.Equal(t, models.MessageRedacted, m.Contenu)
			assert.Nil(t, m.PhotoURL)
		}
		comments, err := f.mem.Comments(ctx, "user-1")
		require.NoError(t, err)
		for _, c := range comments {
			assert.Equal(t, models.CommentRedacted, c.Contenu)
		}
		documents, err := f.mem.Documents(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, documents)
	})

	t.Run("refuses a non-erasure request", func(t *testing.T) {
		f := newFixture(t)
		seedSubject(f.mem, "user-1")
		request, err := f.controller.SubmitRightsRequest(ctx, "user-1", models.RequestAccess, nil)
		require.NoError(t, err)
		_, err = f.controller.ProcessErasureRequest(ctx, request.ID, "admin-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWrongRequestType))
	})

	t.Run("unknown subject", func(t *testing.T) {
		f := newFixture(t)
		request, err := f.controller.SubmitRightsRequest(ctx, "ghost", models.RequestErasure, nil)
		require.NoError(t, err)
		_, err = f.controller.ProcessErasureRequest(ctx, request.ID, "admin-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// failingSubjects makes document deletion fail so the rollback path can be
// observed.
type failingSubjects struct {
	*gstore.MemoryStore
}

func (f *failingSubjects) DeleteDocuments(ctx context.Context, userID string) (int, error) {
	return 0, fmt.Errorf("disk unavailable")
}

type faultyTx struct {
	mem *gstore.MemoryStore
}

func (t *faultyTx) RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	snap := t.mem.Snapshot()
	stores := Stores{
		Consents:  t.mem,
		Requests:  t.mem,
		Logs:      t.mem,
		Retention: t.mem,
		Breaches:  t.mem,
		Subjects:  &failingSubjects{t.mem},
	}
	if err := fn(ctx, stores); err != nil {
		t.mem.Restore(snap)
		return err
	}
	return nil
}

func TestErasureRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := gstore.NewMemoryStore()
	stores := Stores{
		Consents: mem, Requests: mem, Logs: mem,
		Retention: mem, Breaches: mem, Subjects: mem,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	controller := NewController(stores, &faultyTx{mem: mem}, logger,
		WithClock(func() time.Time { return testTime }))
	seedSubject(mem, "user-1")

	request, err := controller.SubmitRightsRequest(ctx, "user-1", models.RequestErasure, nil)
	require.NoError(t, err)

	_, err = controller.ProcessErasureRequest(ctx, request.ID, "admin-1")
	require.Error(t, err)

	// nothing was applied: profile and messages are intact
	profile, err := mem.Profile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jean.dupont@example.com", profile.Email)
	assert.Equal(t, "Dupont", profile.Nom)

	messages, err := mem.Messages(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Le devis est-il prêt ?", messages[0].Contenu)

	// the request stays open
	stuck, err := controller.GetRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stuck.Status)
}

func TestRetentionAndCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("policy validation", func(t *testing.T) {
		f := newFixture(t)
		err := f.controller.SetRetentionPolicy(ctx, &models.RetentionPolicy{DataType: "messages", RetentionDays: 0})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("runs registered strategies and skips the rest", func(t *testing.T) {
		var gotCutoff time.Time
		f := newFixture(t, WithCleanupStrategy("notifications", func(ctx context.Context, cutoff time.Time) (int, error) {
			gotCutoff = cutoff
			return 7, nil
		}))
		require.NoError(t, f.controller.SetRetentionPolicy(ctx, &models.RetentionPolicy{
			DataType: "notifications", Category: "technique", RetentionDays: 30,
			LawfulBasis: models.BasisLegitimateInterests,
		}))
		require.NoError(t, f.controller.SetRetentionPolicy(ctx, &models.RetentionPolicy{
			DataType: "factures", Category: "comptable", RetentionDays: 3650,
			LawfulBasis: models.BasisLegalObligation,
		}))

		report, err := f.controller.CleanupExpiredData(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, report.RecordsAffected["notifications"])
		assert.Equal(t, []string{"notifications"}, report.TablesTouched)
		assert.Equal(t, []string{"factures"}, report.SkippedTypes)
		assert.Equal(t, testTime.Add(-30*24*time.Hour), gotCutoff)
	})

	t.Run("strategy failure surfaces", func(t *testing.T) {
		f := newFixture(t, WithCleanupStrategy("messages", func(ctx context.Context, cutoff time.Time) (int, error) {
			return 0, fmt.Errorf("table locked")
		}))
		require.NoError(t, f.controller.SetRetentionPolicy(ctx, &models.RetentionPolicy{
			DataType: "messages", RetentionDays: 365,
		}))
		_, err := f.controller.CleanupExpiredData(ctx)
		require.Error(t, err)
	})
}

func TestBreachRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("report and update", func(t *testing.T) {
		f := newFixture(t)
		breach, err := f.controller.ReportBreach(ctx, &models.Breach{
			Title:             "Export devis exposé",
			Description:       "Un lien d'export était accessible sans authentification",
			Severity:          models.SeverityHigh,
			AffectedDataTypes: []string{"devis", "clients"},
			ReportedBy:        "admin-1",
			OccurredAt:        testTime.Add(-48 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, models.BreachDetected, breach.Status)
		assert.Equal(t, testTime, breach.DetectedAt)

		updated, err := f.controller.UpdateBreach(ctx, breach.ID, models.BreachContained,
			[]string{"lien révoqué", "audit des accès"})
		require.NoError(t, err)
		assert.Equal(t, models.BreachContained, updated.Status)
		assert.Len(t, updated.MitigationActions, 2)
	})

	t.Run("invalid severity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.ReportBreach(ctx, &models.Breach{Title: "x", Severity: "EXTREME"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestGenerateComplianceReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedSubject(f.mem, "user-1")
	seedSubject(f.mem, "user-2")

	_, err := f.controller.RecordConsent(ctx, "user-1", models.PurposeMarketing, "", "")
	require.NoError(t, err)
	_, err = f.controller.SubmitRightsRequest(ctx, "user-2", models.RequestAccess, nil)
	require.NoError(t, err)
	_, err = f.controller.ReportBreach(ctx, &models.Breach{
		Title: "Fuite logs", Severity: models.SeverityLow, DetectedAt: testTime.Add(-29 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.controller.ReportBreach(ctx, &models.Breach{
		Title: "Vieille fuite", Severity: models.SeverityLow, DetectedAt: testTime.Add(-31 * 24 * time.Hour),
	})
	require.NoError(t, err)

	report, err := f.controller.GenerateComplianceReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalUsers)
	assert.Equal(t, 1, report.ActiveConsents)
	assert.Equal(t, 1, report.PendingRequests)
	// only the breach detected inside the 30-day window counts
	assert.Equal(t, 1, report.RecentBreaches)
	assert.Equal(t, testTime, report.GeneratedAt)
}
