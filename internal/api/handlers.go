package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

// IncidentAnalyzer is the domain service exposed by both transports.
type IncidentAnalyzer interface {
	Investigate(ctx context.Context, req models.InvestigationRequest) (models.InvestigationResult, error)
	AnalyzePatterns(ctx context.Context, id string) (models.PatternAnalysis, error)
	SynthesizeRootCause(ctx context.Context, id string) (models.Diagnosis, error)
	GetDiagnosis(ctx context.Context, id string) (models.Diagnosis, error)
	GetPatternAnalysis(ctx context.Context, id string) (models.PatternAnalysis, error)
}

// ToStruct converts a JSON-serialisable domain value into a protobuf Struct.
func ToStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert payload: %w", err)
	}
	return out, nil
}

// FromStruct decodes a protobuf Struct into a domain value.
func FromStruct[T any](in *structpb.Struct) (T, error) {
	var out T
	if in == nil {
		return out, fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return out, fmt.Errorf("convert payload: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// InvestigationRef addresses an existing investigation.
type InvestigationRef struct {
	InvestigationID string `json:"investigation_id"`
}

// FromStructInvestigationRef extracts and validates an investigation id.
func FromStructInvestigationRef(in *structpb.Struct) (string, error) {
	ref, err := FromStruct[InvestigationRef](in)
	if err != nil {
		return "", err
	}
	if ref.InvestigationID == "" {
		return "", fmt.Errorf("investigation_id is required")
	}
	return ref.InvestigationID, nil
}

// GRPCError maps a service error onto a gRPC status.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch utils.KindOf(err) {
	case utils.KindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case utils.KindPrecondition:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// HTTPStatus maps a service error onto an HTTP status code.
func HTTPStatus(err error) int {
	switch utils.KindOf(err) {
	case utils.KindInvalid:
		return http.StatusBadRequest
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
