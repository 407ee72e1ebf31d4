package mcp

import (
	"context"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/manualkit/regent/agent"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/eligibility/store"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
)

type stubService struct{}

func (stubService) Complete(context.Context, string) (string, error) {
	return `{"tier": "simple", "queries": []}`, nil
}

func (stubService) Name() string { return "stub" }

type stubIndex struct{}

func (stubIndex) Search(context.Context, string, int) ([]retrieval.Hit, error) {
	return []retrieval.Hit{{Text: "Guidance passage.", SourceID: "DMHB-1", Score: 0.9}}, nil
}

func testEngine(t *testing.T) *agent.Engine {
	t.Helper()
	ctx := context.Background()
	st := store.NewInMemoryStore()
	err := st.Put(ctx, eligibility.Threshold{
		Topic: "debt_relief_order", Criterion: "total_debt", Value: 50000_00,
		Operator: symbolic.OpLE, Unit: symbolic.UnitCurrency,
		Citation: "DMHB-45", Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	cache := eligibility.NewCache(st)
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return agent.New(stubService{}, stubIndex{}, agent.WithCache(cache))
}

func TestNewServerConstructs(t *testing.T) {
	if server := NewServer(testEngine(t)); server == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestRebuildToolReportsCriteria(t *testing.T) {
	tl := &tools{engine: testEngine(t)}

	result, _, err := tl.rebuildTopic(context.Background(), nil, rebuildArgs{Topic: "debt_relief_order"})
	if err != nil {
		t.Fatalf("rebuildTopic: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, `"criteria": 1`) {
		t.Errorf("result = %s, want criteria count 1", text)
	}
	if !strings.Contains(text, `"topic": "debt_relief_order"`) {
		t.Errorf("result = %s, want topic echoed", text)
	}
}

func TestQueryToolPropagatesEngineError(t *testing.T) {
	tl := &tools{engine: testEngine(t)}

	_, _, err := tl.agenticQuery(context.Background(), nil, queryArgs{Question: "   "})
	if err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestJSONResultRendersIndentedText(t *testing.T) {
	result, structured, err := jsonResult(map[string]int{"criteria": 3})
	if err != nil {
		t.Fatalf("jsonResult: %v", err)
	}
	if structured != nil {
		t.Errorf("structured output = %v, want nil", structured)
	}
	if text := resultText(t, result); !strings.Contains(text, `"criteria": 3`) {
		t.Errorf("text = %q, want indented JSON", text)
	}
}

func resultText(t *testing.T, result *sdkmcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) != 1 {
		t.Fatal("expected exactly one content block")
	}
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want text", result.Content[0])
	}
	return text.Text
}
