package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/intake"
)

// IntakeService adapts intake.Service to the gRPC surface.
type IntakeService struct {
	svc    *intake.Service
	logger *slog.Logger
}

var _ IntakeServer = (*IntakeService)(nil)

func NewIntakeService(svc *intake.Service, logger *slog.Logger) *IntakeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{svc: svc, logger: logger}
}

func (s *IntakeService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	log := common.LoggerFromContext(ctx, s.logger)
	res, err := s.svc.Submit(ctx, intake.SubmitRequest{
		Filename:     strings.TrimSpace(req.Filename),
		MimeType:     req.MimeType,
		DeclaredType: declaredType(req.DeclaredType),
		Source:       constants.Source(strings.ToLower(strings.TrimSpace(req.Source))),
		Content:      req.Content,
	})
	if err != nil {
		log.Error("submit failed", "filename", req.Filename, "error", err)
		return nil, common.ToStatus(err)
	}
	log.Info("document submitted", "doc_id", res.Document.ID, "deduplicated", res.Deduplicated)
	return &SubmitResponse{Document: res.Document, Deduplicated: res.Deduplicated}, nil
}

func (s *IntakeService) Get(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error) {
	if err := requireID(req.ID); err != nil {
		return nil, err
	}
	doc, err := s.svc.Get(ctx, req.ID)
	return documentResponse(doc, err)
}

func (s *IntakeService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	states := make([]constants.DocumentState, 0, len(req.States))
	for _, raw := range req.States {
		st, ok := constants.ParseState(raw)
		if !ok {
			return nil, common.InvalidArgumentErrorf("unknown state %q", raw)
		}
		states = append(states, st)
	}
	docs := s.svc.List(ctx, states...)
	if docs == nil {
		docs = []*entity.IntakeDocument{}
	}
	return &ListResponse{Documents: docs}, nil
}

func (s *IntakeService) Reprocess(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error) {
	if err := requireID(req.ID); err != nil {
		return nil, err
	}
	doc, err := s.svc.Reprocess(ctx, req.ID)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Warn("reprocess rejected", "doc_id", req.ID, "error", err)
	}
	return documentResponse(doc, err)
}

func (s *IntakeService) Delete(ctx context.Context, req *DocumentRequest) (*DeleteResponse, error) {
	if err := requireID(req.ID); err != nil {
		return nil, err
	}
	if err := s.svc.Delete(ctx, req.ID); err != nil {
		common.LoggerFromContext(ctx, s.logger).Warn("delete rejected", "doc_id", req.ID, "error", err)
		return nil, common.ToStatus(err)
	}
	return &DeleteResponse{ID: req.ID}, nil
}

func (s *IntakeService) Archive(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error) {
	if err := requireID(req.ID); err != nil {
		return nil, err
	}
	doc, err := s.svc.Archive(ctx, req.ID)
	return documentResponse(doc, err)
}

func (s *IntakeService) Resolve(ctx context.Context, req *ResolveRequest) (*DocumentResponse, error) {
	v := common.NewValidator().
		Field("id", req.ID, common.Required, common.UUID).
		Field("resolution.kind", string(req.Resolution.Kind), common.Required,
			common.OneOf(string(entity.DestinationExpense), string(entity.DestinationMovement)))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	doc, err := s.svc.Resolve(ctx, req.ID, req.Resolution)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Warn("resolve rejected", "doc_id", req.ID, "error", err)
	}
	return documentResponse(doc, err)
}

func (s *IntakeService) Remap(ctx context.Context, req *RemapRequest) (*DocumentResponse, error) {
	if err := requireID(req.ID); err != nil {
		return nil, err
	}
	doc, err := s.svc.Remap(ctx, req.ID, req.Mapping)
	return documentResponse(doc, err)
}

func requireID(id string) error {
	return common.ValidateAndReturnError(common.NewValidator().Field("id", id, common.Required, common.UUID))
}

func declaredType(raw string) constants.DocType {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return constants.ParseDocType(raw)
}

func documentResponse(doc *entity.IntakeDocument, err error) (*DocumentResponse, error) {
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &DocumentResponse{Document: doc}, nil
}
