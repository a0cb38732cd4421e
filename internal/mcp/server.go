// Package mcp implements the MCP server exposing AetherMart search and
// pipeline status as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/aethersync/internal/retrieval"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// QueueStats reports queue depth; *relational.Store satisfies it.
type QueueStats interface {
	QueueStats(ctx context.Context, queue types.Entity) (*types.QueueStats, error)
}

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	engine    *retrieval.Engine
	stats     provider.StatsReader
	queues    QueueStats
}

// Config contains server configuration.
type Config struct {
	Engine  *retrieval.Engine
	Stats   provider.StatsReader
	Queues  QueueStats
	Version string
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("mcp: search engine is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		engine: cfg.Engine,
		stats:  cfg.Stats,
		queues: cfg.Queues,
	}

	mcpServer := server.NewMCPServer(
		"aethersync",
		cfg.Version,
		server.WithLogging(),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("search_products",
		mcp.WithDescription("Find products semantically similar to a description"),
		mcp.WithString("query", mcp.Required(), mcp.Description("What the product should be, e.g. 'durable work gloves'")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
	), s.handleSearchProducts)

	mcpServer.AddTool(mcp.NewTool("search_reviews",
		mcp.WithDescription("Find reviews similar to a query. Sentiment words narrow the ratings: good/average/decent = 3, great/excellent/awesome/best = 4-5, poor/bad/terrible/worst = 1-2"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Review search, e.g. 'good battery life'")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
		mcp.WithArray("ratings", mcp.Description("Explicit rating filter, overrides the sentiment words"), mcp.Items(map[string]any{"type": "integer"})),
	), s.handleSearchReviews)

	mcpServer.AddTool(mcp.NewTool("search_customers",
		mcp.WithDescription("Find lookalike customers by purchase profile"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Purchase profile, e.g. 'buys electronics and books'")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
		mcp.WithBoolean("evidence", mcp.Description("Attach recent purchases and average rating (default true)")),
	), s.handleSearchCustomers)

	mcpServer.AddTool(mcp.NewTool("customer_evidence",
		mcp.WithDescription("Last 5 purchased products and average review rating of a customer"),
		mcp.WithNumber("customer_id", mcp.Required(), mcp.Description("Customer ID")),
	), s.handleCustomerEvidence)

	mcpServer.AddTool(mcp.NewTool("embedding_status",
		mcp.WithDescription("Embedded and pending row counts per entity"),
	), s.handleEmbeddingStatus)

	mcpServer.AddTool(mcp.NewTool("queue_status",
		mcp.WithDescription("Sync queue job counts per status"),
	), s.handleQueueStatus)
}

func (s *Server) handleSearchProducts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, errResult := s.search(ctx, req, types.EntityProduct, nil)
	if errResult != nil {
		return errResult, nil
	}

	formatted := make([]map[string]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		formatted = append(formatted, map[string]any{
			"product_id":  m.ID,
			"name":        m.Title,
			"description": m.Detail,
			"similarity":  round2(m.Similarity()),
		})
	}
	return jsonResult(formatted)
}

func (s *Server) handleSearchReviews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, errResult := s.search(ctx, req, types.EntityReview, ratingsArg(req))
	if errResult != nil {
		return errResult, nil
	}

	formatted := make([]map[string]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		formatted = append(formatted, map[string]any{
			"review_id":  m.ID,
			"rating":     m.Rating,
			"text":       m.Detail,
			"similarity": round2(m.Similarity()),
		})
	}
	return jsonResult(map[string]any{
		"rating_filter": res.Ratings,
		"results":       formatted,
	})
}

func (s *Server) handleSearchCustomers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, errResult := s.search(ctx, req, types.EntityCustomer, nil)
	if errResult != nil {
		return errResult, nil
	}
	withEvidence := req.GetBool("evidence", true)

	formatted := make([]map[string]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		entry := map[string]any{
			"customer_id": m.ID,
			"name":        m.Title,
			"profile":     m.Detail,
			"similarity":  round2(m.Similarity()),
		}
		if withEvidence {
			ev, err := s.engine.Evidence(ctx, m.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("evidence for customer %d failed: %v", m.ID, err)), nil
			}
			entry["evidence"] = evidenceMap(ev)
		}
		formatted = append(formatted, entry)
	}
	return jsonResult(formatted)
}

func (s *Server) handleCustomerEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("customer_id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	ev, err := s.engine.Evidence(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evidence failed: %v", err)), nil
	}
	return jsonResult(evidenceMap(ev))
}

func (s *Server) handleEmbeddingStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.stats == nil {
		return mcp.NewToolResultError("embedding status not available"), nil
	}
	result := make(map[string]any)
	for _, e := range types.AllEntities() {
		st, err := s.stats.EmbeddingStats(ctx, e)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get %s stats: %v", e, err)), nil
		}
		result[string(e)] = map[string]int{
			"total":    st.Total,
			"embedded": st.Embedded,
			"pending":  st.Pending,
		}
	}
	return jsonResult(result)
}

func (s *Server) handleQueueStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.queues == nil {
		return mcp.NewToolResultError("queue status not available"), nil
	}
	result := make(map[string]any)
	for _, e := range types.AllEntities() {
		st, err := s.queues.QueueStats(ctx, e)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get %s queue stats: %v", e, err)), nil
		}
		counts := make(map[string]int, len(st.Counts))
		for status, n := range st.Counts {
			counts[string(status)] = n
		}
		result[types.TableFor(e).QueueTable] = counts
	}
	return jsonResult(result)
}

// search runs a query; a non-nil result reports a tool error to the client.
func (s *Server) search(ctx context.Context, req mcp.CallToolRequest, entity types.Entity, ratings []int) (*retrieval.Result, *mcp.CallToolResult) {
	query := req.GetString("query", "")
	if query == "" {
		return nil, mcp.NewToolResultError("query is required")
	}
	res, err := s.engine.Search(ctx, retrieval.Request{
		Entity:  entity,
		Query:   query,
		Limit:   req.GetInt("limit", 0),
		Ratings: ratings,
	})
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err))
	}
	return res, nil
}

// ratingsArg reads the optional ratings array; JSON numbers arrive as float64.
func ratingsArg(req mcp.CallToolRequest) []int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := args["ratings"].([]any)
	if !ok {
		return nil
	}
	var out []int
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}

func evidenceMap(ev *types.CustomerEvidence) map[string]any {
	out := map[string]any{
		"customer_id":     ev.CustomerID,
		"recent_products": ev.RecentProducts,
		"average_rating":  nil,
	}
	if ev.HasRatings {
		out["average_rating"] = round2(ev.AverageRating)
	}
	return out
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
