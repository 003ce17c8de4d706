package service

import (
	"context"
	"errors"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/gdpr/store"
	"batisecure/internal/gdpr/tracer"
	dErrors "batisecure/pkg/domain-errors"
)

// RecordConsent registers a new grant of consent. A user holds at most one
// active consent per purpose; re-granting while one is active is a conflict.
// Withdrawal followed by a re-grant produces a fresh row.
func (c *Controller) RecordConsent(ctx context.Context, userID string, purpose models.Purpose, ip, userAgent string) (*models.Consent, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanConsentRecord,
		tracer.String(tracer.AttrUserHash, tracer.HashUserID(userID)),
		tracer.String(tracer.AttrPurpose, string(purpose)),
	)
	var err error
	defer func() { span.End(err) }()

	if !purpose.IsValid() {
		err = dErrors.New(dErrors.CodeInvalidConsent, "unknown consent purpose: "+string(purpose))
		return nil, err
	}

	active, err := c.stores.Consents.ActiveByUserAndPurpose(ctx, userID, purpose)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "check active consent")
		return nil, err
	}
	if len(active) > 0 {
		err = dErrors.New(dErrors.CodeConflict, "consent already granted for purpose "+string(purpose))
		return nil, err
	}

	consent, err := models.NewConsent(newID(), userID, purpose, ip, userAgent, c.clock().UTC())
	if err != nil {
		return nil, err
	}
	if err = c.stores.Consents.Save(ctx, consent); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "save consent")
		return nil, err
	}

	c.recordProcessing(ctx, userID, "consentement", models.OperationConsent,
		models.BasisConsent, string(purpose), ip)
	if c.metrics != nil {
		c.metrics.IncrementConsentsGranted(string(purpose))
	}
	c.logger.Info("consent recorded", "purpose", purpose)
	return consent, nil
}

// WithdrawConsent soft-revokes every active consent the user holds for the
// purpose. The rows stay in place with the revocation context filled in.
func (c *Controller) WithdrawConsent(ctx context.Context, userID string, purpose models.Purpose, ip, userAgent string) ([]*models.Consent, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanConsentWithdraw,
		tracer.String(tracer.AttrUserHash, tracer.HashUserID(userID)),
		tracer.String(tracer.AttrPurpose, string(purpose)),
	)
	var err error
	defer func() { span.End(err) }()

	if !purpose.IsValid() {
		err = dErrors.New(dErrors.CodeInvalidConsent, "unknown consent purpose: "+string(purpose))
		return nil, err
	}

	revoked, err := c.stores.Consents.Revoke(ctx, userID, purpose, c.clock().UTC(), ip, userAgent)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = dErrors.New(dErrors.CodeMissingConsent, "no active consent for purpose "+string(purpose))
			return nil, err
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "revoke consent")
		return nil, err
	}

	c.recordProcessing(ctx, userID, "consentement", models.OperationWithdraw,
		models.BasisConsent, string(purpose), ip)
	if c.metrics != nil {
		c.metrics.IncrementConsentsWithdrawn(string(purpose))
	}
	c.logger.Info("consent withdrawn", "purpose", purpose, "rows", len(revoked))
	return revoked, nil
}

// ListConsents returns the user's consent history, newest first.
func (c *Controller) ListConsents(ctx context.Context, userID string, filter *models.ConsentFilter) ([]*models.Consent, error) {
	out, err := c.stores.Consents.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list consents")
	}
	return out, nil
}

// HasActiveConsent reports whether processing for the purpose is currently
// authorized by the user.
func (c *Controller) HasActiveConsent(ctx context.Context, userID string, purpose models.Purpose) (bool, error) {
	active, err := c.stores.Consents.ActiveByUserAndPurpose(ctx, userID, purpose)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "check active consent")
	}
	return len(active) > 0, nil
}
