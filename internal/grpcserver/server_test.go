package grpcserver_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"corebridge/process-service/internal/grpcserver"
	"corebridge/process-service/internal/idgen"
	"corebridge/process-service/internal/process"
	"corebridge/process-service/internal/storage/sqlite"
)

func startServer(t *testing.T) (*grpcserver.Client, *grpc.ClientConn) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "process.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ids, err := idgen.NewSnowflake(1)
	require.NoError(t, err)

	svc := process.NewService(store, ids)
	gs, _ := grpcserver.New(grpcserver.NewServer(svc, process.NewAggregator(store)))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return grpcserver.NewClient(conn), conn
}

func TestProcessServiceFlow(t *testing.T) {
	client, _ := startServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-user-id", "77")

	inst, err := client.CreateProcess(ctx, &grpcserver.CreateProcessRequest{ApplicationID: 10, PostingID: 100, ApplicantID: 1000})
	require.NoError(t, err)
	assert.Equal(t, process.StageApplied, inst.CurrentStage)

	moved, err := client.Transition(ctx, &grpcserver.TransitionMessage{
		ProcessID:      inst.ID,
		TransitionBody: process.TransitionBody{ToStage: "DOCUMENT_REVIEW", Reason: "screening"},
	})
	require.NoError(t, err)
	assert.Equal(t, process.StageDocumentReview, moved.CurrentStage)

	moved, err = client.TransitionByApplication(ctx, &grpcserver.TransitionByApplicationMessage{
		ApplicationID:  10,
		TransitionBody: process.TransitionBody{ToStage: "DOCUMENT_PASS"},
	})
	require.NoError(t, err)
	assert.Equal(t, process.StageDocumentPass, moved.CurrentStage)

	hist, err := client.History(ctx, &grpcserver.ProcessRef{ProcessID: inst.ID})
	require.NoError(t, err)
	require.Len(t, hist.Entries, 3)
	require.NotNil(t, hist.Entries[0].ActorID)
	assert.Equal(t, int64(77), *hist.Entries[0].ActorID)

	list, err := client.ListByPosting(ctx, &grpcserver.PostingQuery{PostingID: 100, Stage: "DOCUMENT_PASS"})
	require.NoError(t, err)
	assert.Len(t, list.Processes, 1)

	st, err := client.PostingStats(ctx, &grpcserver.PostingQuery{PostingID: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)
	assert.Equal(t, int64(1), st.Interviewing)

	set, err := client.PostingSetStats(ctx, &grpcserver.PostingSetQuery{PostingIDs: []int64{100, 200}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Total)

	byApp, err := client.HistoryByApplication(ctx, &grpcserver.ApplicationRef{ApplicationID: 10})
	require.NoError(t, err)
	stage, err := process.Replay(byApp.Entries)
	require.NoError(t, err)
	assert.Equal(t, process.StageDocumentPass, stage)
	assert.Nil(t, byApp.Entries[len(byApp.Entries)-1].FromStage)

	got, err := client.GetProcessByApplication(ctx, &grpcserver.ApplicationRef{ApplicationID: 10})
	require.NoError(t, err)
	require.NotNil(t, got.PreviousStage)
	assert.Equal(t, process.StageDocumentReview, *got.PreviousStage)
	assert.True(t, got.StageChangedAt.Equal(moved.StageChangedAt))

	stages, err := client.ListStages(ctx)
	require.NoError(t, err)
	require.Len(t, stages.Stages, 16)
	assert.Equal(t, []process.Stage{process.StageDocumentReview}, stages.Stages[0].AllowedNext)
}

func TestProcessServiceErrors(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	_, err := client.GetProcess(ctx, &grpcserver.ProcessRef{ProcessID: 42})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.CreateProcess(ctx, &grpcserver.CreateProcessRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// No application directory is configured on this server.
	_, err = client.CreateProcess(ctx, &grpcserver.CreateProcessRequest{ApplicationID: 11})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.PostingSetStats(ctx, &grpcserver.PostingSetQuery{PostingIDs: []int64{100, -1}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	inst, err := client.CreateProcess(ctx, &grpcserver.CreateProcessRequest{ApplicationID: 10, PostingID: 100, ApplicantID: 1000})
	require.NoError(t, err)

	_, err = client.CreateProcess(ctx, &grpcserver.CreateProcessRequest{ApplicationID: 10, PostingID: 100, ApplicantID: 1000})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = client.Transition(ctx, &grpcserver.TransitionMessage{
		ProcessID: inst.ID, TransitionBody: process.TransitionBody{ToStage: "FINAL_PASS"},
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Transition(ctx, &grpcserver.TransitionMessage{
		ProcessID: inst.ID, TransitionBody: process.TransitionBody{ToStage: "HIRED"},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad := metadata.AppendToOutgoingContext(ctx, "x-user-id", "abc")
	_, err = client.Transition(bad, &grpcserver.TransitionMessage{
		ProcessID: inst.ID, TransitionBody: process.TransitionBody{ToStage: "DOCUMENT_REVIEW"},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Withdraw(ctx, &grpcserver.ApplicationRef{ApplicationID: 10})
	require.NoError(t, err)
	_, err = client.Withdraw(ctx, &grpcserver.ApplicationRef{ApplicationID: 10})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth(t *testing.T) {
	_, conn := startServer(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
