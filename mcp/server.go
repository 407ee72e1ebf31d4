// Package mcp exposes the reasoning engine as Model Context Protocol tools,
// the integration surface for external chat frontends and workflow systems.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/manualkit/regent/agent"
)

// NewServer builds an MCP server with the engine's three operations
// registered as typed tools. Pair it with any SDK transport (stdio, HTTP).
func NewServer(engine *agent.Engine) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "regent",
		Version: "0.1.0",
		Title:   "regulatory manual reasoning engine",
	}, nil)

	t := &tools{engine: engine}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "agentic_query",
		Description: "Answer a question against the ingested regulatory manuals with citations and a confidence label",
	}, t.agenticQuery)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "eligibility_check",
		Description: "Evaluate client values against the cached eligibility rules of a topic, with near-miss detection",
	}, t.eligibilityCheck)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "rebuild_topic",
		Description: "Rebuild the cached thresholds and decision tree for a topic after the manual corpus changed",
	}, t.rebuildTopic)

	return server
}

type tools struct {
	engine *agent.Engine
}

type queryArgs struct {
	Question      string `json:"question" jsonschema:"Question to answer against the ingested manuals"`
	Topic         string `json:"topic,omitempty" jsonschema:"Optional topic hint to focus retrieval"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Cap on retrieval rounds, default 3"`
	TopK          int    `json:"top_k,omitempty" jsonschema:"Passages fetched per round, default 4"`
	ShowReasoning *bool  `json:"show_reasoning,omitempty" jsonschema:"Include the reasoning trail, default true"`
}

func (t *tools) agenticQuery(ctx context.Context, req *sdkmcp.CallToolRequest, a queryArgs) (*sdkmcp.CallToolResult, any, error) {
	resp, err := t.engine.Query(ctx, agent.QueryRequest{
		Question:      a.Question,
		Topic:         a.Topic,
		MaxIterations: a.MaxIterations,
		TopK:          a.TopK,
		ShowReasoning: a.ShowReasoning,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

type eligibilityArgs struct {
	Question       string             `json:"question" jsonschema:"Eligibility question being asked"`
	Topic          string             `json:"topic" jsonschema:"Topic whose cached rules to evaluate, e.g. debt_relief_order"`
	ClientValues   map[string]float64 `json:"client_values" jsonschema:"Client facts per criterion in major units, e.g. total_debt: 45000"`
	IncludeDiagram bool               `json:"include_diagram,omitempty" jsonschema:"Include a Mermaid flowchart of the decision tree"`
}

func (t *tools) eligibilityCheck(ctx context.Context, req *sdkmcp.CallToolRequest, a eligibilityArgs) (*sdkmcp.CallToolResult, any, error) {
	resp, err := t.engine.CheckEligibility(ctx, agent.EligibilityRequest{
		Question:       a.Question,
		Topic:          a.Topic,
		ClientValues:   a.ClientValues,
		IncludeDiagram: a.IncludeDiagram,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

type rebuildArgs struct {
	Topic string `json:"topic" jsonschema:"Topic to rebuild from the threshold store"`
}

func (t *tools) rebuildTopic(ctx context.Context, req *sdkmcp.CallToolRequest, a rebuildArgs) (*sdkmcp.CallToolResult, any, error) {
	resp, err := t.engine.Rebuild(ctx, a.Topic)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(resp)
}

// jsonResult renders a response struct as pretty-printed JSON text content.
func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
