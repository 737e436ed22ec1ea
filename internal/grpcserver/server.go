// Package grpcserver implements the ProcessService gRPC server.
//
// It delegates all business logic to process.Service and process.Aggregator
// and handles only the gRPC transport concerns: metadata extraction, error
// mapping, and message shapes. Messages travel in protobuf wire format
// (see codec.go and messages.go).
package grpcserver

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"corebridge/process-service/internal/process"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "corebridge.process.v1.ProcessService"

// Server implements ProcessServiceServer.
type Server struct {
	svc   *process.Service
	stats *process.Aggregator
}

// NewServer constructs a gRPC Server backed by svc and stats.
func NewServer(svc *process.Service, stats *process.Aggregator) *Server {
	return &Server{svc: svc, stats: stats}
}

// New returns a grpc.Server with ProcessService and the standard health
// service registered, instrumented with otelgrpc.
func New(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, srv)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// CreateProcess creates the APPLIED instance of an application.
func (s *Server) CreateProcess(ctx context.Context, in *CreateProcessRequest) (*Process, error) {
	req := process.CreateRequest{ApplicationID: in.ApplicationID, PostingID: in.PostingID, ApplicantID: in.ApplicantID}
	if err := req.Validate(); err != nil {
		return nil, toGRPCError(err)
	}
	var (
		inst *process.Instance
		err  error
	)
	if req.PostingID == 0 {
		inst, err = s.svc.CreateForApplication(ctx, req.ApplicationID)
	} else {
		inst, err = s.svc.CreateProcess(ctx, req.ApplicationID, req.PostingID, req.ApplicantID)
	}
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &Process{Instance: *inst}, nil
}

// GetProcess returns an instance by id.
func (s *Server) GetProcess(ctx context.Context, req *ProcessRef) (*Process, error) {
	inst, err := s.svc.Get(ctx, req.ProcessID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &Process{Instance: *inst}, nil
}

// GetProcessByApplication returns the instance of an application.
func (s *Server) GetProcessByApplication(ctx context.Context, req *ApplicationRef) (*Process, error) {
	inst, err := s.svc.GetByApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &Process{Instance: *inst}, nil
}

// Transition moves an instance to a new stage.
func (s *Server) Transition(ctx context.Context, req *TransitionMessage) (*Process, error) {
	tr, err := transitionRequest(ctx, &req.TransitionBody)
	if err != nil {
		return nil, err
	}
	inst, err := s.svc.Transition(ctx, req.ProcessID, tr)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &Process{Instance: *inst}, nil
}

// TransitionByApplication moves the instance of an application.
func (s *Server) TransitionByApplication(ctx context.Context, req *TransitionByApplicationMessage) (*Process, error) {
	tr, err := transitionRequest(ctx, &req.TransitionBody)
	if err != nil {
		return nil, err
	}
	inst, err := s.svc.TransitionByApplication(ctx, req.ApplicationID, tr)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &Process{Instance: *inst}, nil
}

// Withdraw deletes a still-APPLIED instance.
func (s *Server) Withdraw(ctx context.Context, req *ApplicationRef) (*Empty, error) {
	if err := s.svc.Withdraw(ctx, req.ApplicationID); err != nil {
		return nil, toGRPCError(err)
	}
	return &Empty{}, nil
}

// History returns the transition log of an instance.
func (s *Server) History(ctx context.Context, req *ProcessRef) (*HistoryList, error) {
	entries, err := s.svc.History(ctx, req.ProcessID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &HistoryList{Entries: entries}, nil
}

// HistoryByApplication returns the transition log of an application.
func (s *Server) HistoryByApplication(ctx context.Context, req *ApplicationRef) (*HistoryList, error) {
	entries, err := s.svc.HistoryByApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &HistoryList{Entries: entries}, nil
}

// ListByPosting returns a posting's instances.
func (s *Server) ListByPosting(ctx context.Context, req *PostingQuery) (*InstanceList, error) {
	var stage *process.Stage
	if req.Stage != "" {
		st, err := process.ParseStage(req.Stage)
		if err != nil {
			return nil, toGRPCError(err)
		}
		stage = &st
	}
	list, err := s.svc.ListByPosting(ctx, req.PostingID, stage)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &InstanceList{Processes: list}, nil
}

// ListByApplicant returns an applicant's instances.
func (s *Server) ListByApplicant(ctx context.Context, req *ApplicantRef) (*InstanceList, error) {
	list, err := s.svc.ListByApplicant(ctx, req.ApplicantID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &InstanceList{Processes: list}, nil
}

// PostingStats returns the funnel of one posting.
func (s *Server) PostingStats(ctx context.Context, req *PostingQuery) (*FunnelStats, error) {
	st, err := s.stats.PostingStats(ctx, req.PostingID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &FunnelStats{Stats: *st}, nil
}

// PostingSetStats returns the funnel over several postings.
func (s *Server) PostingSetStats(ctx context.Context, in *PostingSetQuery) (*FunnelStats, error) {
	req := process.PostingSetRequest{PostingIDs: in.PostingIDs}
	if err := req.Validate(); err != nil {
		return nil, toGRPCError(err)
	}
	st, err := s.stats.PostingSetStats(ctx, req.PostingIDs)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &FunnelStats{Stats: *st}, nil
}

// ApplicantStats returns the funnel of one applicant.
func (s *Server) ApplicantStats(ctx context.Context, req *ApplicantRef) (*FunnelStats, error) {
	st, err := s.stats.ApplicantStats(ctx, req.ApplicantID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &FunnelStats{Stats: *st}, nil
}

// ListStages returns the stage metadata.
func (s *Server) ListStages(context.Context, *Empty) (*StageList, error) {
	return &StageList{Stages: s.svc.Stages()}, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func transitionRequest(ctx context.Context, body *process.TransitionBody) (process.TransitionRequest, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return process.TransitionRequest{}, err
	}
	tr, err := body.Request(actor)
	if err != nil {
		return process.TransitionRequest{}, toGRPCError(err)
	}
	return tr, nil
}

// actorFromCtx extracts the optional x-user-id value forwarded by the
// Gateway via gRPC metadata.
func actorFromCtx(ctx context.Context) (*int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, nil
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(vals[0], 10, 64)
	if err != nil || id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "x-user-id metadata must be a positive integer")
	}
	return &id, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var (
		ve  *process.ValidationError
		ite *process.IllegalTransitionError
	)
	switch {
	case errors.Is(err, process.ErrPersistence):
		return status.Error(codes.Internal, "internal server error")
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.Is(err, process.ErrInvalidStage), errors.Is(err, process.ErrDirectoryUnavailable):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &ite):
		return status.Error(codes.FailedPrecondition, ite.Error())
	case errors.Is(err, process.ErrInstanceNotFound), errors.Is(err, process.ErrApplicationNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, process.ErrDuplicateApplication):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, process.ErrNotWithdrawable):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
