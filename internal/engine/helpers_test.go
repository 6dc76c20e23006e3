package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
)

var fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func incidentProblem() models.ProblemStatement {
	return models.ProblemStatement{
		Title:       "Checkout failures",
		Description: "Checkout requests failing since the 09:00 deploy",
	}
}

func incidentData() models.DataCollection {
	return models.DataCollection{Sources: []models.CollectedDataEntry{
		{
			SourceName: "kubernetes",
			Summary:    "100 logs (45 ERROR, 55 INFO), top error: 'NullPointerException at handler.go:42' (40x)",
			Count:      100,
			TimeRange:  "2025-03-14T09:02:00Z - 2025-03-14T09:20:00Z",
		},
		{
			SourceName: "prometheus",
			Summary:    "Latency spike detected at 2025-03-14T09:00:00Z",
			Count:      50,
			TimeRange:  "2025-03-14T09:00:00Z - 2025-03-14T09:20:00Z",
		},
	}}
}

func incidentCode() *models.CodeInspection {
	return &models.CodeInspection{Findings: []models.CodeInspectionFinding{{
		File:     "internal/checkout/handler.go",
		Line:     42,
		Function: "ProcessOrder",
		Analysis: "possible nil pointer dereference",
		GitBlame: models.GitBlame{Commit: "abc123", Author: "dev", Date: "2025-03-13"},
	}}}
}

func seedPad(t *testing.T, withCode bool) scratchpad.Scratchpad {
	t.Helper()
	ctx := context.Background()
	pad := scratchpad.NewMemoryStore().Pad("inv-test")
	require.NoError(t, scratchpad.Save(ctx, pad, scratchpad.ProblemDescription, incidentProblem()))
	require.NoError(t, scratchpad.Save(ctx, pad, scratchpad.DataCollected, incidentData()))
	if withCode {
		require.NoError(t, scratchpad.Save(ctx, pad, scratchpad.CodeInspection, incidentCode()))
	}
	return pad
}
