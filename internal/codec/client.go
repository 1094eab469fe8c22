package codec

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
)

// #region methods
// Full gRPC method names served by the Python inference service. Payloads are
// google.protobuf.Struct on both sides, so no generated stubs are needed.
const (
	MethodComplete = "/scenario.v1.Inference/Complete"
	MethodDetect   = "/scenario.v1.Inference/Detect"
	MethodHealth   = "/scenario.v1.Inference/Health"
)

// imagePlaceholder replaces image payloads in logged requests.
const imagePlaceholder = "<IMAGE_DATA_REMOVED>"

// #endregion methods

// #region types
// Image is one JPEG-encoded camera view.
type Image struct {
	Label string
	JPEG  []byte
}

// Request is one reasoning call.
type Request struct {
	Model       string
	System      string
	Text        string
	Images      []Image
	Temperature float64
	MaxTokens   int
}

// Completion holds the backend's answer to a reasoning call.
type Completion struct {
	Text      string
	Reasoning string
	Usage     *schema.Usage
}

// Sanitized returns the request as logged: image bytes replaced by a placeholder.
func (r Request) Sanitized() map[string]any {
	images := make([]any, len(r.Images))
	for i, img := range r.Images {
		images[i] = map[string]any{"label": img.Label, "data": imagePlaceholder}
	}
	return map[string]any{
		"model":       r.Model,
		"system":      r.System,
		"text":        r.Text,
		"images":      images,
		"temperature": r.Temperature,
		"max_tokens":  r.MaxTokens,
	}
}
// #endregion types

// #region config
// Config locates the inference services.
type Config struct {
	ReasonerAddr  string
	DetectorAddr  string // empty means the reasoner serves Detect too
	CallTimeout   time.Duration
	HealthTimeout time.Duration
}

// DefaultConfig returns backend defaults.
// Reads from env vars: CODEC_ADDR, DETECTOR_ADDR, CODEC_CALL_TIMEOUT (seconds).
func DefaultConfig() Config {
	cfg := Config{
		ReasonerAddr:  "localhost:50051",
		CallTimeout:   10 * time.Minute,
		HealthTimeout: 10 * time.Second,
	}
	if v := os.Getenv("CODEC_ADDR"); v != "" {
		cfg.ReasonerAddr = v
	}
	if v := os.Getenv("DETECTOR_ADDR"); v != "" {
		cfg.DetectorAddr = v
	}
	if v := os.Getenv("CODEC_CALL_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.CallTimeout = time.Duration(sec) * time.Second
		}
	}
	return cfg
}

// Detector returns the address that serves Detect.
func (c Config) Detector() string {
	if c.DetectorAddr != "" {
		return c.DetectorAddr
	}
	return c.ReasonerAddr
}
// #endregion config

// #region client-struct
// Client wraps the gRPC connection to the Python inference service.
type Client struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	timeout time.Duration
}
// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an injected connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithCallTimeout bounds every Complete and Detect call. Zero disables the bound.
func (c *Client) WithCallTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region health
// Health asks the service whether it is ready to serve.
func (c *Client) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, _ := structpb.NewStruct(map[string]any{})
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodHealth, req, resp, grpc.WaitForReady(true)); err != nil {
		return fmt.Errorf("health rpc: %w", err)
	}
	if status := resp.GetFields()["status"].GetStringValue(); status != "" && status != "ok" {
		return fmt.Errorf("health rpc: service status %q", status)
	}
	return nil
}
// #endregion health

// #region complete
// Complete sends a reasoning request and returns the raw completion.
func (c *Client) Complete(ctx context.Context, r Request) (Completion, error) {
	req, err := structpb.NewStruct(map[string]any{
		"model":       r.Model,
		"system":      r.System,
		"text":        r.Text,
		"images":      encodeImages(r.Images),
		"temperature": r.Temperature,
		"max_tokens":  r.MaxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("build complete request: %w", err)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodComplete, req, resp); err != nil {
		return Completion{}, fmt.Errorf("complete rpc: %w", err)
	}

	fields := resp.GetFields()
	out := Completion{
		Text:      fields["text"].GetStringValue(),
		Reasoning: fields["reasoning"].GetStringValue(),
	}
	if u := fields["usage"].GetStructValue(); u != nil {
		uf := u.GetFields()
		out.Usage = &schema.Usage{
			InputTokens:  int(uf["input_tokens"].GetNumberValue()),
			OutputTokens: int(uf["output_tokens"].GetNumberValue()),
			TotalTokens:  int(uf["total_tokens"].GetNumberValue()),
		}
	}
	return out, nil
}
// #endregion complete

// #region detect
// Detect runs the detector over the views and returns the inventory text.
func (c *Client) Detect(ctx context.Context, images []Image) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"images": encodeImages(images),
	})
	if err != nil {
		return "", fmt.Errorf("build detect request: %w", err)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodDetect, req, resp); err != nil {
		return "", fmt.Errorf("detect rpc: %w", err)
	}
	inv, ok := resp.GetFields()["inventory"]
	if !ok {
		return "", fmt.Errorf("detect rpc: response has no inventory")
	}
	return inv.GetStringValue(), nil
}
// #endregion detect

// #region helpers
func encodeImages(images []Image) []any {
	out := make([]any, len(images))
	for i, img := range images {
		out[i] = map[string]any{
			"label": img.Label,
			"data":  base64.StdEncoding.EncodeToString(img.JPEG),
		}
	}
	return out
}
// #endregion helpers
