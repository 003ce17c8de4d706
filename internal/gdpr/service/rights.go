package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/gdpr/store"
	"batisecure/internal/gdpr/tracer"
	dErrors "batisecure/pkg/domain-errors"
)

// SubmitRightsRequest opens a new data-subject request in PENDING state.
func (c *Controller) SubmitRightsRequest(ctx context.Context, userID string, reqType models.RequestType, requestData map[string]any) (*models.RightsRequest, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRequestSubmit,
		tracer.String(tracer.AttrUserHash, tracer.HashUserID(userID)),
		tracer.String(tracer.AttrRequestType, string(reqType)),
	)
	var err error
	defer func() { span.End(err) }()

	if userID == "" {
		err = dErrors.New(dErrors.CodeBadRequest, "user ID required")
		return nil, err
	}
	if !reqType.IsValid() {
		err = dErrors.New(dErrors.CodeBadRequest, "unknown request type: "+string(reqType))
		return nil, err
	}

	request := &models.RightsRequest{
		ID:          newID(),
		UserID:      userID,
		Type:        reqType,
		Status:      models.StatusPending,
		RequestData: requestData,
		CreatedAt:   c.clock().UTC(),
	}
	if err = c.stores.Requests.SaveRequest(ctx, request); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "save rights request")
		return nil, err
	}

	c.recordProcessing(ctx, userID, "demande_rgpd", models.OperationRequest,
		models.BasisLegitimateInterests, string(reqType), "")
	if c.metrics != nil {
		c.metrics.IncrementRightsRequests(string(reqType))
	}
	c.logger.Info("rights request submitted", "type", reqType, "request_id", request.ID)
	return request, nil
}

// ApproveRightsRequest moves a pending request into processing and records
// who picked it up.
func (c *Controller) ApproveRightsRequest(ctx context.Context, requestID, processorID, note string) (*models.RightsRequest, error) {
	request, err := c.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(models.StatusInProgress); err != nil {
		return nil, err
	}
	request.ProcessorUserID = processorID
	request.ResponseNote = note
	if err := c.stores.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update rights request")
	}
	c.logger.Info("rights request approved", "request_id", requestID)
	return request, nil
}

// RejectRightsRequest closes a request without acting on it. The note is
// mandatory so the refusal can be justified to the data subject.
func (c *Controller) RejectRightsRequest(ctx context.Context, requestID, processorID, note string) (*models.RightsRequest, error) {
	if note == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "rejection note required")
	}
	request, err := c.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(models.StatusRejected); err != nil {
		return nil, err
	}
	now := c.clock().UTC()
	request.ProcessorUserID = processorID
	request.ResponseNote = note
	request.ProcessedAt = &now
	if err := c.stores.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update rights request")
	}
	c.logger.Info("rights request rejected", "request_id", requestID)
	return request, nil
}

// ExpireRequest marks a stale pending request as expired.
func (c *Controller) ExpireRequest(ctx context.Context, requestID string) (*models.RightsRequest, error) {
	request, err := c.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(models.StatusExpired); err != nil {
		return nil, err
	}
	now := c.clock().UTC()
	request.ProcessedAt = &now
	if err := c.stores.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update rights request")
	}
	return request, nil
}

// ProcessAccessRequest assembles the full snapshot of everything stored
// about the data subject and completes the request with it.
func (c *Controller) ProcessAccessRequest(ctx context.Context, requestID, processorID string) (*models.SubjectExport, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRequestAccess)
	var err error
	defer func() { span.End(err) }()

	request, err := c.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Type != models.RequestAccess && request.Type != models.RequestPortability {
		err = dErrors.New(dErrors.CodeWrongRequestType,
			"request "+requestID+" is "+string(request.Type)+", not an access request")
		return nil, err
	}
	if request.Status.IsTerminal() {
		err = dErrors.New(dErrors.CodeInvalidTransition, "request already closed")
		return nil, err
	}

	export, err := c.assembleExport(ctx, request.UserID)
	if err != nil {
		return nil, err
	}

	now := c.clock().UTC()
	if err = request.Transition(models.StatusCompleted); err != nil {
		return nil, err
	}
	request.ProcessorUserID = processorID
	request.ProcessedAt = &now
	// only export volumes are persisted; the payload goes back to the
	// caller and never lands in the requests table
	request.ProcessedData = map[string]any{
		"messages":  len(export.Messages),
		"comments":  len(export.Comments),
		"documents": len(export.Documents),
		"consents":  len(export.Consents),
	}
	if err = c.stores.Requests.UpdateRequest(ctx, request); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "update rights request")
		return nil, err
	}

	c.recordProcessing(ctx, request.UserID, "export_donnees", models.OperationExport,
		models.BasisLegalObligation, string(request.Type), "")
	c.logger.Info("access request processed", "request_id", requestID)
	return export, nil
}

func (c *Controller) assembleExport(ctx context.Context, userID string) (*models.SubjectExport, error) {
	profile, err := c.stores.Subjects.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load profile")
	}

	export := &models.SubjectExport{
		Profile:    profile,
		ExportedAt: c.clock().UTC(),
	}
	if export.Projects, err = c.stores.Subjects.Projects(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load projects")
	}
	if export.Quotes, err = c.stores.Subjects.Quotes(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load quotes")
	}
	if err = c.decryptRows(export.Projects); err != nil {
		return nil, err
	}
	if err = c.decryptRows(export.Quotes); err != nil {
		return nil, err
	}
	if export.Notifications, err = c.stores.Subjects.Notifications(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load notifications")
	}
	if export.Messages, err = c.stores.Subjects.Messages(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load messages")
	}
	if export.Comments, err = c.stores.Subjects.Comments(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load comments")
	}
	if export.Documents, err = c.stores.Subjects.Documents(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load documents")
	}
	if export.Consents, err = c.stores.Consents.ListByUser(ctx, userID, nil); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load consents")
	}
	if export.Requests, err = c.stores.Requests.ListRequestsByUser(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load requests")
	}
	if export.ProcessingLogs, err = c.stores.Logs.ListLogsByUser(ctx, userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load processing logs")
	}
	return export, nil
}

// decryptRows opens field-level encrypted values so the data subject
// receives their export in clear. The export itself travels over the
// authenticated channel; stored copies stay encrypted.
func (c *Controller) decryptRows(rows []map[string]any) error {
	if c.cipher == nil {
		return nil
	}
	for _, row := range rows {
		if err := c.cipher.DecryptFields(row); err != nil {
			return err
		}
	}
	return nil
}

// ProcessErasureRequest anonymizes the data subject in a single transaction:
// the account keeps its primary key but loses every identifying field, user
// content is redacted in place and uploaded documents are deleted. Either
// everything applies or nothing does.
func (c *Controller) ProcessErasureRequest(ctx context.Context, requestID, processorID string) (*models.RightsRequest, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRequestErasure)
	var err error
	defer func() { span.End(err) }()

	request, err := c.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Type != models.RequestErasure {
		err = dErrors.New(dErrors.CodeWrongRequestType,
			"request "+requestID+" is "+string(request.Type)+", not an erasure request")
		return nil, err
	}
	if request.Status.IsTerminal() {
		err = dErrors.New(dErrors.CodeInvalidTransition, "request already closed")
		return nil, err
	}

	anonymizedEmail, err := anonymousEmail()
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "generate anonymous email")
		return nil, err
	}

	started := c.clock()
	var messagesRedacted, commentsRedacted, documentsDeleted int
	err = c.tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
		if txErr := s.Subjects.AnonymizeProfile(ctx, request.UserID, anonymizedEmail); txErr != nil {
			if errors.Is(txErr, store.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return fmt.Errorf("anonymize profile: %w", txErr)
		}
		var txErr error
		if messagesRedacted, txErr = s.Subjects.RedactMessages(ctx, request.UserID, models.MessageRedacted); txErr != nil {
			return fmt.Errorf("redact messages: %w", txErr)
		}
		if commentsRedacted, txErr = s.Subjects.RedactComments(ctx, request.UserID, models.CommentRedacted); txErr != nil {
			return fmt.Errorf("redact comments: %w", txErr)
		}
		if documentsDeleted, txErr = s.Subjects.DeleteDocuments(ctx, request.UserID); txErr != nil {
			return fmt.Errorf("delete documents: %w", txErr)
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "erasure transaction")
		return nil, err
	}

	now := c.clock().UTC()
	if err = request.Transition(models.StatusCompleted); err != nil {
		return nil, err
	}
	request.ProcessorUserID = processorID
	request.ProcessedAt = &now
	request.ProcessedData = map[string]any{
		"messages_redacted": messagesRedacted,
		"comments_redacted": commentsRedacted,
		"documents_deleted": documentsDeleted,
	}
	if err = c.stores.Requests.UpdateRequest(ctx, request); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "update rights request")
		return nil, err
	}

	c.recordProcessing(ctx, request.UserID, "compte_utilisateur", models.OperationAnonymize,
		models.BasisLegalObligation, string(models.RequestErasure), "")
	if c.metrics != nil {
		c.metrics.IncrementUsersAnonymized()
		c.metrics.ObserveErasureLatency(c.clock().Sub(started).Seconds())
	}
	span.SetAttributes(
		tracer.Int(tracer.AttrRecordCount, messagesRedacted+commentsRedacted+documentsDeleted),
	)
	c.logger.Info("erasure request processed",
		"request_id", requestID,
		"messages_redacted", messagesRedacted,
		"comments_redacted", commentsRedacted,
		"documents_deleted", documentsDeleted)
	return request, nil
}

// GetRequest returns one rights request by ID.
func (c *Controller) GetRequest(ctx context.Context, requestID string) (*models.RightsRequest, error) {
	return c.findRequest(ctx, requestID)
}

// ListRequestsByUser returns the user's request history, newest first.
func (c *Controller) ListRequestsByUser(ctx context.Context, userID string) ([]*models.RightsRequest, error) {
	out, err := c.stores.Requests.ListRequestsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list rights requests")
	}
	return out, nil
}

// ListRequests returns requests matching the filter, newest first.
func (c *Controller) ListRequests(ctx context.Context, filter *models.RequestFilter) ([]*models.RightsRequest, error) {
	out, err := c.stores.Requests.ListRequests(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list rights requests")
	}
	return out, nil
}

func (c *Controller) findRequest(ctx context.Context, requestID string) (*models.RightsRequest, error) {
	request, err := c.stores.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rights request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find rights request")
	}
	return request, nil
}

// anonymousEmail builds a replacement address like
// anonyme-3f2a9c81d4e7@rgpd.invalid. The random part keeps replacement
// addresses unique without being traceable back to the subject.
func anonymousEmail() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "anonyme-" + hex.EncodeToString(buf) + "@" + models.AnonymizedEmailDomain, nil
}
