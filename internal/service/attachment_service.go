package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/model"
)

// AttachmentService manages uploaded documents on contracts and change
// requests. Object bytes go to the attachment store first; the metadata row is
// written after a successful upload, so a crashed upload leaves no dangling
// reference.
type AttachmentService struct {
	store Store
	files AttachmentStore
	log   zerolog.Logger
}

func NewAttachmentService(store Store, files AttachmentStore, log zerolog.Logger) *AttachmentService {
	return &AttachmentService{store: store, files: files, log: log}
}

type UploadAttachmentInput struct {
	ContractID      *uint
	ChangeRequestID *uint
	FileName        string
	ContentType     string
	Content         []byte
}

func (s *AttachmentService) Upload(ctx context.Context, actor model.Principal, input UploadAttachmentInput) (*model.Attachment, error) {
	contract, err := s.resolveContract(ctx, input.ContractID, input.ChangeRequestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(actor, contract); err != nil {
		return nil, err
	}
	if input.FileName == "" || len(input.Content) == 0 {
		return nil, fmt.Errorf("%w: a named, non-empty file is required", ErrInvalidInput)
	}

	key, err := s.files.Upload(ctx, input.FileName, input.Content)
	if err != nil {
		return nil, err
	}
	attachment := &model.Attachment{
		ContractID:      input.ContractID,
		ChangeRequestID: input.ChangeRequestID,
		FileName:        input.FileName,
		Key:             key,
		ContentType:     input.ContentType,
		UploadedBy:      actor.UserID,
	}
	if err := s.store.CreateAttachment(ctx, attachment); err != nil {
		if cleanupErr := s.files.Delete(ctx, key); cleanupErr != nil {
			s.log.Error().Err(cleanupErr).Str("key", key).Msg("cleanup orphaned upload")
		}
		return nil, err
	}
	return attachment, nil
}

func (s *AttachmentService) List(ctx context.Context, actor model.Principal, contractID *uint, crID *uint) ([]model.Attachment, error) {
	contract, err := s.resolveContract(ctx, contractID, crID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(actor, contract); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, contractID, crID)
}

// Link issues a short-lived download URL for one attachment.
func (s *AttachmentService) Link(ctx context.Context, actor model.Principal, id uint) (*model.Attachment, string, error) {
	attachment, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, "", err
	}
	contract, err := s.resolveContract(ctx, attachment.ContractID, attachment.ChangeRequestID)
	if err != nil {
		return nil, "", err
	}
	if err := s.requireParty(actor, contract); err != nil {
		return nil, "", err
	}
	url, err := s.files.IssuePresignedURL(attachment.Key)
	if err != nil {
		return nil, "", err
	}
	return attachment, url, nil
}

func (s *AttachmentService) Delete(ctx context.Context, actor model.Principal, id uint) error {
	attachment, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsSalesManager() && actor.UserID != attachment.UploadedBy {
		return fmt.Errorf("%w: only the uploader or a Sales Manager can delete an attachment", ErrPermissionDenied)
	}
	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, attachment.Key); err != nil {
		s.log.Error().Err(err).Str("key", attachment.Key).Msg("delete stored object")
	}
	return nil
}

func (s *AttachmentService) resolveContract(ctx context.Context, contractID *uint, crID *uint) (*model.Contract, error) {
	if contractID != nil {
		return s.store.GetContract(ctx, *contractID)
	}
	if crID != nil {
		cr, err := s.store.GetChangeRequest(ctx, *crID)
		if err != nil {
			return nil, err
		}
		return s.store.GetContract(ctx, cr.ContractID)
	}
	return nil, fmt.Errorf("%w: an attachment needs a contract or change request", ErrInvalidInput)
}

func (s *AttachmentService) requireParty(actor model.Principal, contract *model.Contract) error {
	if actor.IsSalesManager() || actor.UserID == contract.AssigneeID {
		return nil
	}
	if actor.IsClient() && actor.UserID == contract.ClientID {
		return nil
	}
	return fmt.Errorf("%w: caller is not a party to contract %s", ErrPermissionDenied, contract.Code)
}
