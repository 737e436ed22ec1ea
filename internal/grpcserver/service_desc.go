package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ProcessServiceServer is the server API of ProcessService.
type ProcessServiceServer interface {
	CreateProcess(context.Context, *CreateProcessRequest) (*Process, error)
	GetProcess(context.Context, *ProcessRef) (*Process, error)
	GetProcessByApplication(context.Context, *ApplicationRef) (*Process, error)
	Transition(context.Context, *TransitionMessage) (*Process, error)
	TransitionByApplication(context.Context, *TransitionByApplicationMessage) (*Process, error)
	Withdraw(context.Context, *ApplicationRef) (*Empty, error)
	History(context.Context, *ProcessRef) (*HistoryList, error)
	HistoryByApplication(context.Context, *ApplicationRef) (*HistoryList, error)
	ListByPosting(context.Context, *PostingQuery) (*InstanceList, error)
	ListByApplicant(context.Context, *ApplicantRef) (*InstanceList, error)
	PostingStats(context.Context, *PostingQuery) (*FunnelStats, error)
	PostingSetStats(context.Context, *PostingSetQuery) (*FunnelStats, error)
	ApplicantStats(context.Context, *ApplicantRef) (*FunnelStats, error)
	ListStages(context.Context, *Empty) (*StageList, error)
}

var _ ProcessServiceServer = (*Server)(nil)

// ServiceDesc describes ProcessService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProcessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateProcess", ProcessServiceServer.CreateProcess),
		unary("GetProcess", ProcessServiceServer.GetProcess),
		unary("GetProcessByApplication", ProcessServiceServer.GetProcessByApplication),
		unary("Transition", ProcessServiceServer.Transition),
		unary("TransitionByApplication", ProcessServiceServer.TransitionByApplication),
		unary("Withdraw", ProcessServiceServer.Withdraw),
		unary("History", ProcessServiceServer.History),
		unary("HistoryByApplication", ProcessServiceServer.HistoryByApplication),
		unary("ListByPosting", ProcessServiceServer.ListByPosting),
		unary("ListByApplicant", ProcessServiceServer.ListByApplicant),
		unary("PostingStats", ProcessServiceServer.PostingStats),
		unary("PostingSetStats", ProcessServiceServer.PostingSetStats),
		unary("ApplicantStats", ProcessServiceServer.ApplicantStats),
		unary("ListStages", ProcessServiceServer.ListStages),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corebridge/process/v1/process.proto",
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(ProcessServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(ProcessServiceServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(impl, ctx, req.(*Req))
			})
		},
	}
}

// Client calls ProcessService over conn using the protowire codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProcess(ctx context.Context, in *CreateProcessRequest, opts ...grpc.CallOption) (*Process, error) {
	return invoke[Process](ctx, c, "CreateProcess", in, opts...)
}

func (c *Client) GetProcess(ctx context.Context, in *ProcessRef, opts ...grpc.CallOption) (*Process, error) {
	return invoke[Process](ctx, c, "GetProcess", in, opts...)
}

func (c *Client) GetProcessByApplication(ctx context.Context, in *ApplicationRef, opts ...grpc.CallOption) (*Process, error) {
	return invoke[Process](ctx, c, "GetProcessByApplication", in, opts...)
}

func (c *Client) Transition(ctx context.Context, in *TransitionMessage, opts ...grpc.CallOption) (*Process, error) {
	return invoke[Process](ctx, c, "Transition", in, opts...)
}

func (c *Client) TransitionByApplication(ctx context.Context, in *TransitionByApplicationMessage, opts ...grpc.CallOption) (*Process, error) {
	return invoke[Process](ctx, c, "TransitionByApplication", in, opts...)
}

func (c *Client) Withdraw(ctx context.Context, in *ApplicationRef, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "Withdraw", in, opts...)
}

func (c *Client) History(ctx context.Context, in *ProcessRef, opts ...grpc.CallOption) (*HistoryList, error) {
	return invoke[HistoryList](ctx, c, "History", in, opts...)
}

func (c *Client) HistoryByApplication(ctx context.Context, in *ApplicationRef, opts ...grpc.CallOption) (*HistoryList, error) {
	return invoke[HistoryList](ctx, c, "HistoryByApplication", in, opts...)
}

func (c *Client) ListByPosting(ctx context.Context, in *PostingQuery, opts ...grpc.CallOption) (*InstanceList, error) {
	return invoke[InstanceList](ctx, c, "ListByPosting", in, opts...)
}

func (c *Client) ListByApplicant(ctx context.Context, in *ApplicantRef, opts ...grpc.CallOption) (*InstanceList, error) {
	return invoke[InstanceList](ctx, c, "ListByApplicant", in, opts...)
}

func (c *Client) PostingStats(ctx context.Context, in *PostingQuery, opts ...grpc.CallOption) (*FunnelStats, error) {
	return invoke[FunnelStats](ctx, c, "PostingStats", in, opts...)
}

func (c *Client) PostingSetStats(ctx context.Context, in *PostingSetQuery, opts ...grpc.CallOption) (*FunnelStats, error) {
	return invoke[FunnelStats](ctx, c, "PostingSetStats", in, opts...)
}

func (c *Client) ApplicantStats(ctx context.Context, in *ApplicantRef, opts ...grpc.CallOption) (*FunnelStats, error) {
	return invoke[FunnelStats](ctx, c, "ApplicantStats", in, opts...)
}

func (c *Client) ListStages(ctx context.Context, opts ...grpc.CallOption) (*StageList, error) {
	return invoke[StageList](ctx, c, "ListStages", &Empty{}, opts...)
}
