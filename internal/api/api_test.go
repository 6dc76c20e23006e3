package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-diagnose/internal/config"
	"github.com/miradorstack/mirador-diagnose/internal/engine"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

type fakeAnalyzer struct {
	lastRequest models.InvestigationRequest
	lastID      string
	err         error
	panicMsg    string
}

func (f *fakeAnalyzer) Investigate(_ context.Context, req models.InvestigationRequest) (models.InvestigationResult, error) {
	f.lastRequest = req
	if f.err != nil {
		return models.InvestigationResult{}, f.err
	}
	return models.InvestigationResult{
		InvestigationID: "inv-1",
		Diagnosis: models.Diagnosis{
			RootCause: models.RootCause{Type: "timeout", Confidence: 0.72, Description: "upstream timeout", Location: "unknown"},
			Evidence:  []string{"upstream timeout"},
		},
	}, nil
}

func (f *fakeAnalyzer) AnalyzePatterns(_ context.Context, id string) (models.PatternAnalysis, error) {
	f.lastID = id
	return models.PatternAnalysis{}, f.err
}

func (f *fakeAnalyzer) SynthesizeRootCause(_ context.Context, id string) (models.Diagnosis, error) {
	f.lastID = id
	return models.Diagnosis{}, f.err
}

func (f *fakeAnalyzer) GetDiagnosis(_ context.Context, id string) (models.Diagnosis, error) {
	f.lastID = id
	if f.err != nil {
		return models.Diagnosis{}, f.err
	}
	return models.Diagnosis{RootCause: models.RootCause{Type: "auth_issue", Confidence: 0.5}}, nil
}

func (f *fakeAnalyzer) GetPatternAnalysis(_ context.Context, id string) (models.PatternAnalysis, error) {
	f.lastID = id
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return models.PatternAnalysis{}, f.err
}

const investigationJSON = `{
  "problem": {"description": "checkout timeouts"},
  "data": {"sources": [{"source_name": "loki", "summary": "10 logs (5 ERROR)", "count": 10,
    "time_range": ["2025-03-14T09:00:00Z", "2025-03-14T09:10:00Z"]}]},
  "code_inspection": {"findings": [{"file": "api/handler.go", "line": 12, "function": "Serve"}]}
}`

func TestStructConversions(t *testing.T) {
	in := &structpb.Struct{}
	require.NoError(t, in.UnmarshalJSON([]byte(investigationJSON)))

	req, err := FromStruct[models.InvestigationRequest](in)
	require.NoError(t, err)
	require.Len(t, req.Data.Sources, 1)
	assert.Equal(t, 10, req.Data.Sources[0].Count)
	start, ok := req.Data.Sources[0].TimeRange.Start()
	require.True(t, ok)
	assert.Equal(t, "2025-03-14T09:00:00Z", start)
	require.NotNil(t, req.CodeInspection)
	assert.Equal(t, 12, req.CodeInspection.Findings[0].Line)

	out, err := ToStruct(models.RootCause{Type: "timeout", Confidence: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "timeout", out.GetFields()["type"].GetStringValue())

	_, err = FromStructInvestigationRef(&structpb.Struct{})
	assert.Error(t, err)
	_, err = FromStruct[models.InvestigationRequest](nil)
	assert.Error(t, err)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		kind utils.ErrorKind
		code codes.Code
		http int
	}{
		{utils.KindInvalid, codes.InvalidArgument, http.StatusBadRequest},
		{utils.KindNotFound, codes.NotFound, http.StatusNotFound},
		{utils.KindPrecondition, codes.FailedPrecondition, http.StatusPreconditionFailed},
		{utils.KindInternal, codes.Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := utils.NewKindError(tc.kind, "op", "msg", nil)
		assert.Equal(t, tc.code, status.Code(GRPCError(err)), "kind %s", tc.kind)
		assert.Equal(t, tc.http, HTTPStatus(err), "kind %s", tc.kind)
	}
	assert.Equal(t, codes.Internal, status.Code(GRPCError(errors.New("plain"))))
	assert.NoError(t, GRPCError(nil))
}

func dialBufconn(t *testing.T, analyzer IncidentAnalyzer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := zaptest.NewLogger(t)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(recoveryInterceptor(logger), loggingInterceptor(logger)))
	RegisterIncidentEngineServer(srv, NewGRPCHandler(analyzer, zaptest.NewLogger(t)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCInvestigate(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	conn := dialBufconn(t, analyzer)

	in := &structpb.Struct{}
	require.NoError(t, in.UnmarshalJSON([]byte(investigationJSON)))
	out := &structpb.Struct{}
	require.NoError(t, conn.Invoke(context.Background(), IncidentEngine_Investigate_FullMethodName, in, out))

	assert.Equal(t, "checkout timeouts", analyzer.lastRequest.Problem.Description)
	assert.Equal(t, "inv-1", out.GetFields()["investigation_id"].GetStringValue())
	rootCause := out.GetFields()["diagnosis"].GetStructValue().GetFields()["root_cause"].GetStructValue()
	assert.Equal(t, "timeout", rootCause.GetFields()["type"].GetStringValue())
	assert.InDelta(t, 0.72, rootCause.GetFields()["confidence"].GetNumberValue(), 1e-9)
}

func TestGRPCMapsServiceErrors(t *testing.T) {
	precondition := utils.NewKindError(utils.KindPrecondition, "op", "missing", engine.ErrMissingPrecondition)
	conn := dialBufconn(t, &fakeAnalyzer{err: precondition})

	ref, err := structpb.NewStruct(map[string]any{"investigation_id": "inv-9"})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), IncidentEngine_SynthesizeRootCause_FullMethodName, ref, &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = conn.Invoke(context.Background(), IncidentEngine_GetDiagnosis_FullMethodName, &structpb.Struct{}, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCRecoversFromPanics(t *testing.T) {
	conn := dialBufconn(t, &fakeAnalyzer{panicMsg: "boom"})

	ref, err := structpb.NewStruct(map[string]any{"investigation_id": "inv-1"})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), IncidentEngine_GetPatternAnalysis_FullMethodName, ref, &structpb.Struct{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func newTestRouter(t *testing.T, analyzer IncidentAnalyzer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(analyzer, zaptest.NewLogger(t))
}

func TestRESTInvestigate(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	r := newTestRouter(t, analyzer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/investigations", bytes.NewBufferString(investigationJSON))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var result models.InvestigationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "inv-1", result.InvestigationID)
	assert.Equal(t, "timeout", result.Diagnosis.RootCause.Type)
}

func TestRESTValidationAndLookups(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	r := newTestRouter(t, analyzer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/investigations", bytes.NewBufferString(`{"problem":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/investigations/inv-7/diagnosis", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inv-7", analyzer.lastID)
	assert.Contains(t, w.Body.String(), `"auth_issue"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRESTErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err    error
		method string
		path   string
		want   int
	}{
		"not found":    {utils.NewKindError(utils.KindNotFound, "op", "missing", nil), http.MethodGet, "/api/v1/investigations/x/patterns", http.StatusNotFound},
		"precondition": {utils.NewKindError(utils.KindPrecondition, "op", "missing", nil), http.MethodPost, "/api/v1/investigations/x/diagnosis", http.StatusPreconditionFailed},
		"internal":     {errors.New("disk on fire"), http.MethodPost, "/api/v1/investigations/x/patterns", http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRouter(t, &fakeAnalyzer{err: tc.err})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestServerLifecycleReportsHealth(t *testing.T) {
	cfg := config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}
	srv, err := NewServer(cfg, NewGRPCHandler(&fakeAnalyzer{}, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	go func() { _ = srv.Start() }()

	conn, err := grpc.NewClient(srv.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: IncidentEngineServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Equal(t, time.Second, srv.GracefulTimeout())

	srv.Shutdown(ctx)
}
