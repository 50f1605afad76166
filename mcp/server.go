// ABOUTME: MCP tool server exposing the prediction pipelines to agents over stdio.
// ABOUTME: Tools read an image from disk, store it like an upload, and answer with the envelope plus CSV.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/pipeline"
	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/report"
)

const (
	PredictTool = "predict_mammogram"
	CompareTool = "compare_models"
)

// Server wraps the MCP SDK server and the pipelines its tools run.
type Server struct {
	MCPServer *sdkmcp.Server

	store     *artifact.Store
	pipelines *pipeline.Set
	debug     bool
	logger    log.Logger
}

// NewServer registers the prediction tools. The compare tool is only offered
// when the compare pipeline is configured. debug attaches diagnostics to every
// envelope.
func NewServer(version string, store *artifact.Store, pipelines *pipeline.Set, debug bool, logger log.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("mcp server requires an artifact store")
	}
	if pipelines == nil || pipelines.Predict == nil {
		return nil, errors.New("mcp server requires the predict pipeline")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		store:     store,
		pipelines: pipelines,
		debug:     debug,
		logger:    logger,
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "mammoscope", Version: version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        PredictTool,
		Description: "Classify a mammogram image as Benign or Malignant. Returns the result envelope and the result as CSV.",
	}, s.handlePredict)

	if s.pipelines.Compare != nil {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        CompareTool,
			Description: "Run the WOA and EWOA models on the same mammogram image and report whether they agree.",
		}, s.handleCompare)
	}
}

// --- Tool input/output types ---

type imageInput struct {
	ImagePath string `json:"image_path" jsonschema:"path of the image file on the server host"`
	Mock      bool   `json:"mock,omitempty" jsonschema:"return the canned result without running the engine"`
	Debug     bool   `json:"debug,omitempty" jsonschema:"attach engine diagnostics to the envelope"`
}

// PredictOutput is the text content of a predict_mammogram result.
type PredictOutput struct {
	Envelope predict.Envelope[predict.Result] `json:"envelope"`
	CSV      string                           `json:"csv,omitempty"`
}

// CompareOutput is the text content of a compare_models result.
type CompareOutput struct {
	Envelope predict.Envelope[predict.Comparison] `json:"envelope"`
	Agree    bool                                 `json:"agree"`
}

// Engine failures are reported inside the envelope with ok=false; only
// problems with the request itself become tool errors.
func (s *Server) handlePredict(ctx context.Context, _ *sdkmcp.CallToolRequest, input imageInput) (*sdkmcp.CallToolResult, any, error) {
	art, err := s.ingest(input.ImagePath)
	if err != nil {
		return nil, nil, err
	}
	res, tr, err := s.pipelines.Predict.Run(ctx, art, input.Mock)
	out := PredictOutput{Envelope: pipeline.Envelope(res, tr, err, s.debug || input.Debug)}
	if out.Envelope.OK {
		out.CSV = string(report.CSV(res))
	}
	return textResult(out)
}

func (s *Server) handleCompare(ctx context.Context, _ *sdkmcp.CallToolRequest, input imageInput) (*sdkmcp.CallToolResult, any, error) {
	art, err := s.ingest(input.ImagePath)
	if err != nil {
		return nil, nil, err
	}
	res, tr, err := s.pipelines.Compare.Run(ctx, art, input.Mock)
	out := CompareOutput{Envelope: pipeline.Envelope(res, tr, err, s.debug || input.Debug)}
	if out.Envelope.OK {
		out.Agree = res.Agree()
	}
	return textResult(out)
}

// ingest copies the image into the artifact store so the engine only ever
// sees server-generated paths.
func (s *Server) ingest(path string) (*artifact.Artifact, error) {
	if path == "" {
		return nil, errors.New("image_path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open image: %s is a directory", path)
	}
	art, err := s.store.Save(f, filepath.Base(path), info.Size())
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "store image", "path", path, "err", err)
		return nil, err
	}
	return art, nil
}

// textResult sends v as JSON text. The result types marshal to the engine's
// wire shapes, which an inferred output schema would not describe.
func textResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
