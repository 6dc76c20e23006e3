package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

// IncidentEngineServiceName is the fully-qualified gRPC service name.
const IncidentEngineServiceName = "mirador.diagnose.v1.IncidentEngine"

// Full method names of the IncidentEngine service.
const (
	IncidentEngine_Investigate_FullMethodName         = "/" + IncidentEngineServiceName + "/Investigate"
	IncidentEngine_AnalyzePatterns_FullMethodName     = "/" + IncidentEngineServiceName + "/AnalyzePatterns"
	IncidentEngine_SynthesizeRootCause_FullMethodName = "/" + IncidentEngineServiceName + "/SynthesizeRootCause"
	IncidentEngine_GetDiagnosis_FullMethodName        = "/" + IncidentEngineServiceName + "/GetDiagnosis"
	IncidentEngine_GetPatternAnalysis_FullMethodName  = "/" + IncidentEngineServiceName + "/GetPatternAnalysis"
)

// IncidentEngineServer is the gRPC surface. Payloads travel as google.protobuf.Struct
// using the same snake_case JSON shape as the REST API.
type IncidentEngineServer interface {
	Investigate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzePatterns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SynthesizeRootCause(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDiagnosis(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPatternAnalysis(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv IncidentEngineServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(IncidentEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IncidentEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// IncidentEngine_ServiceDesc describes the IncidentEngine service for grpc.Server.
var IncidentEngine_ServiceDesc = grpc.ServiceDesc{
	ServiceName: IncidentEngineServiceName,
	HandlerType: (*IncidentEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Investigate",
			Handler:    unaryHandler(IncidentEngine_Investigate_FullMethodName, IncidentEngineServer.Investigate),
		},
		{
			MethodName: "AnalyzePatterns",
			Handler:    unaryHandler(IncidentEngine_AnalyzePatterns_FullMethodName, IncidentEngineServer.AnalyzePatterns),
		},
		{
			MethodName: "SynthesizeRootCause",
			Handler:    unaryHandler(IncidentEngine_SynthesizeRootCause_FullMethodName, IncidentEngineServer.SynthesizeRootCause),
		},
		{
			MethodName: "GetDiagnosis",
			Handler:    unaryHandler(IncidentEngine_GetDiagnosis_FullMethodName, IncidentEngineServer.GetDiagnosis),
		},
		{
			MethodName: "GetPatternAnalysis",
			Handler:    unaryHandler(IncidentEngine_GetPatternAnalysis_FullMethodName, IncidentEngineServer.GetPatternAnalysis),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/diagnose/v1/incident_engine.proto",
}

// RegisterIncidentEngineServer registers srv on s.
func RegisterIncidentEngineServer(s grpc.ServiceRegistrar, srv IncidentEngineServer) {
	s.RegisterService(&IncidentEngine_ServiceDesc, srv)
}

// GRPCHandler adapts an IncidentAnalyzer to IncidentEngineServer.
type GRPCHandler struct {
	analyzer IncidentAnalyzer
	logger   *zap.Logger
}

// NewGRPCHandler constructs the gRPC adapter.
func NewGRPCHandler(analyzer IncidentAnalyzer, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{analyzer: analyzer, logger: utils.OrNop(logger)}
}

// Investigate seeds a scratchpad from the request and runs both stages.
func (h *GRPCHandler) Investigate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := FromStruct[models.InvestigationRequest](in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	h.logger.Debug("Investigate called", zap.String("investigation_id", req.InvestigationID), zap.Int("sources", len(req.Data.Sources)))
	result, err := h.analyzer.Investigate(ctx, req)
	return h.reply("Investigate", result, err)
}

// AnalyzePatterns runs the pattern analysis stage only.
func (h *GRPCHandler) AnalyzePatterns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := FromStructInvestigationRef(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	analysis, err := h.analyzer.AnalyzePatterns(ctx, id)
	return h.reply("AnalyzePatterns", analysis, err)
}

// SynthesizeRootCause runs the root cause stage only.
func (h *GRPCHandler) SynthesizeRootCause(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := FromStructInvestigationRef(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	diagnosis, err := h.analyzer.SynthesizeRootCause(ctx, id)
	return h.reply("SynthesizeRootCause", diagnosis, err)
}

// GetDiagnosis returns the stored diagnosis.
func (h *GRPCHandler) GetDiagnosis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := FromStructInvestigationRef(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	diagnosis, err := h.analyzer.GetDiagnosis(ctx, id)
	return h.reply("GetDiagnosis", diagnosis, err)
}

// GetPatternAnalysis returns the stored pattern analysis.
func (h *GRPCHandler) GetPatternAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := FromStructInvestigationRef(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	analysis, err := h.analyzer.GetPatternAnalysis(ctx, id)
	return h.reply("GetPatternAnalysis", analysis, err)
}

func (h *GRPCHandler) reply(method string, value any, err error) (*structpb.Struct, error) {
	if err != nil {
		h.logger.Warn("request failed", zap.String("method", method), zap.Error(err))
		return nil, GRPCError(err)
	}
	out, err := ToStruct(value)
	if err != nil {
		h.logger.Error("encode response failed", zap.String("method", method), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
