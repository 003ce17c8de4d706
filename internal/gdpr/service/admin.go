package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/gdpr/store"
	"batisecure/internal/gdpr/tracer"
	dErrors "batisecure/pkg/domain-errors"
)

// recentBreachWindow bounds the "recent" count in compliance reports.
const recentBreachWindow = 30 * 24 * time.Hour

// SetRetentionPolicy creates or replaces the retention policy for one
// (data type, category) pair.
func (c *Controller) SetRetentionPolicy(ctx context.Context, policy *models.RetentionPolicy) error {
	if policy == nil || policy.DataType == "" {
		return dErrors.New(dErrors.CodeBadRequest, "data type required")
	}
	if policy.RetentionDays <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "retention days must be positive")
	}
	policy.UpdatedAt = c.clock().UTC()
	if err := c.stores.Retention.Upsert(ctx, policy); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "upsert retention policy")
	}
	c.logger.Info("retention policy set",
		"data_type", policy.DataType,
		"category", policy.Category,
		"retention_days", policy.RetentionDays)
	return nil
}

// ListRetentionPolicies returns every configured policy.
func (c *Controller) ListRetentionPolicies(ctx context.Context) ([]*models.RetentionPolicy, error) {
	out, err := c.stores.Retention.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list retention policies")
	}
	return out, nil
}

// ReportBreach opens a new breach record in DETECTED status.
func (c *Controller) ReportBreach(ctx context.Context, breach *models.Breach) (*models.Breach, error) {
	if breach == nil || breach.Title == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "breach title required")
	}
	if !breach.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown breach severity: "+string(breach.Severity))
	}
	breach.ID = newID()
	breach.Status = models.BreachDetected
	if breach.DetectedAt.IsZero() {
		breach.DetectedAt = c.clock().UTC()
	}
	if err := c.stores.Breaches.SaveBreach(ctx, breach); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save breach")
	}
	c.logger.Warn("data breach reported",
		"breach_id", breach.ID,
		"severity", breach.Severity,
		"title", breach.Title)
	return breach, nil
}

// UpdateBreach applies a status change and any new mitigation actions.
func (c *Controller) UpdateBreach(ctx context.Context, breachID string, status models.BreachStatus, mitigationActions []string) (*models.Breach, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown breach status: "+string(status))
	}
	breach, err := c.stores.Breaches.FindBreachByID(ctx, breachID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "breach not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find breach")
	}
	breach.Status = status
	breach.MitigationActions = append(breach.MitigationActions, mitigationActions...)
	if err := c.stores.Breaches.UpdateBreach(ctx, breach); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update breach")
	}
	return breach, nil
}

// ListBreaches returns every breach, most recently detected first.
func (c *Controller) ListBreaches(ctx context.Context) ([]*models.Breach, error) {
	out, err := c.stores.Breaches.ListBreaches(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list breaches")
	}
	return out, nil
}

// GenerateComplianceReport aggregates the registry-level compliance figures.
func (c *Controller) GenerateComplianceReport(ctx context.Context) (*models.ComplianceReport, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanComplianceScan)
	var err error
	defer func() { span.End(err) }()

	report := &models.ComplianceReport{GeneratedAt: c.clock().UTC()}

	if report.TotalUsers, err = c.stores.Subjects.CountUsers(ctx); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "count users")
		return nil, err
	}
	if report.ActiveConsents, err = c.stores.Consents.CountActive(ctx); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "count active consents")
		return nil, err
	}
	if report.PendingRequests, err = c.stores.Requests.CountRequestsByStatus(ctx, models.StatusPending); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "count pending requests")
		return nil, err
	}
	since := report.GeneratedAt.Add(-recentBreachWindow)
	if report.RecentBreaches, err = c.stores.Breaches.CountDetectedSince(ctx, since); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "count recent breaches")
		return nil, err
	}
	return report, nil
}

// ActiveConsentsByPurpose returns active consent counts keyed by purpose.
func (c *Controller) ActiveConsentsByPurpose(ctx context.Context) (map[models.Purpose]int, error) {
	counts, err := c.stores.Consents.CountActiveByPurpose(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "count consents by purpose")
	}
	return counts, nil
}

// CleanupExpiredData runs every registered cleanup strategy whose data type
// has a retention policy. Data types with a policy but no strategy are
// reported as skipped. Strategies for distinct data types run concurrently;
// the first failure cancels the rest.
func (c *Controller) CleanupExpiredData(ctx context.Context) (*models.CleanupReport, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCleanup)
	var err error
	defer func() { span.End(err) }()

	policies, err := c.stores.Retention.List(ctx)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "list retention policies")
		return nil, err
	}

	report := &models.CleanupReport{
		RecordsAffected: make(map[string]int),
		StartedAt:       c.clock().UTC(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, policy := range policies {
		strategy, ok := c.cleanups[policy.DataType]
		if !ok {
			report.SkippedTypes = append(report.SkippedTypes, policy.DataType)
			c.logger.Warn("no cleanup strategy registered", "data_type", policy.DataType)
			continue
		}
		cutoff := report.StartedAt.Add(-time.Duration(policy.RetentionDays) * 24 * time.Hour)
		dataType := policy.DataType
		g.Go(func() error {
			affected, runErr := strategy(gctx, cutoff)
			if runErr != nil {
				return dErrors.Wrap(runErr, dErrors.CodeInternal, "cleanup "+dataType)
			}
			mu.Lock()
			report.RecordsAffected[dataType] += affected
			report.TablesTouched = append(report.TablesTouched, dataType)
			mu.Unlock()
			if c.metrics != nil {
				c.metrics.AddRecordsCleaned(dataType, affected)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.TablesTouched)
	sort.Strings(report.SkippedTypes)
	report.FinishedAt = c.clock().UTC()

	total := 0
	for _, n := range report.RecordsAffected {
		total += n
	}
	span.SetAttributes(tracer.Int(tracer.AttrRecordCount, total))
	c.logger.Info("expired data cleanup finished",
		"records_affected", total,
		"skipped_types", len(report.SkippedTypes))
	return report, nil
}

// ProcessingLogsByUser returns the user's audit trail, oldest first.
func (c *Controller) ProcessingLogsByUser(ctx context.Context, userID string) ([]*models.ProcessingLog, error) {
	out, err := c.stores.Logs.ListLogsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list processing logs")
	}
	return out, nil
}

// ProcessingLogsBetween returns all processing activity between from and to
// inclusive.
func (c *Controller) ProcessingLogsBetween(ctx context.Context, from, to time.Time) ([]*models.ProcessingLog, error) {
	if !to.After(from) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "journal range is empty")
	}
	out, err := c.stores.Logs.ListLogsBetween(ctx, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list processing logs")
	}
	return out, nil
}
