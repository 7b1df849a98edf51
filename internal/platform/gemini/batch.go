package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/envutil"
	"github.com/yungbote/databanana-backend/internal/platform/httpx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

const keyPrefix = "request-"

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	PromptPrefix string
	Timeout      time.Duration
	Retries      int
}

func LoadConfig() Config {
	return Config{
		APIKey:       envutil.String("GEMINI_API_KEY", ""),
		BaseURL:      envutil.String("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		Model:        envutil.String("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		PromptPrefix: envutil.String("GEMINI_PROMPT_PREFIX", "Generate a high-quality image based on this prompt: "),
		Timeout:      envutil.Duration("GEMINI_TIMEOUT", 2*time.Minute),
		Retries:      envutil.Int("GEMINI_MAX_RETRIES", 3),
	}
}

// BatchClient drives the Gemini batch API for image generation. One request
// is sent per prompt, keyed by its position.
type BatchClient struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewBatchClient(log *logger.Logger, cfg Config) (*BatchClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("missing GEMINI_IMAGE_MODEL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &BatchClient{
		log:        log.With("service", "GeminiBatchClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type batchRequestItem struct {
	Request  generateContentRequest `json:"request"`
	Metadata map[string]string      `json:"metadata"`
}

type batchCreateRequest struct {
	Batch struct {
		DisplayName string `json:"displayName"`
		InputConfig struct {
			Requests struct {
				Requests []batchRequestItem `json:"requests"`
			} `json:"requests"`
		} `json:"inputConfig"`
	} `json:"batch"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type rpcStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type inlinedResponse struct {
	Response *generateContentResponse `json:"response,omitempty"`
	Error    *rpcStatus               `json:"error,omitempty"`
	Metadata map[string]string        `json:"metadata,omitempty"`
}

type batchOutput struct {
	ResponsesFile    string `json:"responsesFile,omitempty"`
	InlinedResponses struct {
		InlinedResponses []inlinedResponse `json:"inlinedResponses"`
	} `json:"inlinedResponses"`
}

// batchOperation covers both the long-running operation wrapper and the
// bare batch resource.
type batchOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	State    string `json:"state,omitempty"`
	Metadata struct {
		State  string      `json:"state"`
		Output batchOutput `json:"output"`
	} `json:"metadata"`
	Response *batchOutput `json:"response,omitempty"`
	Output   *batchOutput `json:"output,omitempty"`
	Error    *rpcStatus   `json:"error,omitempty"`
}

func (c *BatchClient) Submit(ctx context.Context, displayName string, prompts []string) (string, error) {
	if len(prompts) == 0 {
		return "", fmt.Errorf("no prompts to submit")
	}
	var req batchCreateRequest
	req.Batch.DisplayName = displayName
	items := make([]batchRequestItem, 0, len(prompts))
	for i, p := range prompts {
		items = append(items, batchRequestItem{
			Request: generateContentRequest{
				Contents:         []content{{Role: "user", Parts: []part{{Text: c.cfg.PromptPrefix + p}}}},
				GenerationConfig: map[string]any{"responseModalities": []string{"IMAGE"}},
			},
			Metadata: map[string]string{"key": keyPrefix + strconv.Itoa(i)},
		})
	}
	req.Batch.InputConfig.Requests.Requests = items

	// A lost response to a retried create would start a second billed batch,
	// so create is sent once and the caller decides what to do on failure.
	var op batchOperation
	path := "/v1beta/models/" + url.PathEscape(c.cfg.Model) + ":batchGenerateContent"
	if err := c.doJSONOnce(ctx, http.MethodPost, path, req, &op); err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("create batch: empty batch name in response")
	}
	c.log.Info("Gemini batch created", "batch", op.Name, "requests", len(prompts))
	return op.Name, nil
}

func (c *BatchClient) Describe(ctx context.Context, handle string) (pipeline.BatchDescriptor, error) {
	name := strings.TrimPrefix(strings.TrimSpace(handle), "/")
	if !strings.HasPrefix(name, "batches/") {
		return pipeline.BatchDescriptor{}, fmt.Errorf("invalid batch handle %q", handle)
	}
	var op batchOperation
	if err := c.doJSON(ctx, http.MethodGet, "/v1beta/"+name, nil, &op); err != nil {
		return pipeline.BatchDescriptor{}, fmt.Errorf("get batch: %w", err)
	}
	return descriptorFrom(handle, op), nil
}

func descriptorFrom(handle string, op batchOperation) pipeline.BatchDescriptor {
	desc := pipeline.BatchDescriptor{Handle: handle, State: op.Metadata.State}
	if desc.State == "" {
		desc.State = op.State
	}
	if op.Error != nil && desc.State == "" {
		desc.State = "BATCH_STATE_FAILED"
	}

	out := op.Response
	if out == nil {
		out = op.Output
	}
	if out == nil {
		out = &op.Metadata.Output
	}
	if out.ResponsesFile != "" {
		desc.ResultsFile = out.ResponsesFile
		return desc
	}
	for pos, r := range out.InlinedResponses.InlinedResponses {
		desc.Inline = append(desc.Inline, resultFrom(pos, r.Metadata["key"], r.Response, r.Error))
	}
	return desc
}

type fileLine struct {
	Key      string                   `json:"key"`
	Response *generateContentResponse `json:"response,omitempty"`
	Error    *rpcStatus               `json:"error,omitempty"`
}

// ReadResultsFile downloads a JSONL responses file. Each line carries the
// key it was submitted with.
func (c *BatchClient) ReadResultsFile(ctx context.Context, file string) ([]pipeline.BatchResult, error) {
	name := strings.TrimPrefix(strings.TrimSpace(file), "/")
	if name == "" {
		return nil, fmt.Errorf("empty responses file name")
	}
	var raw []byte
	err := httpx.Retry(ctx, c.cfg.Retries, time.Second, func(ctx context.Context) error {
		var err error
		raw, err = c.doRaw(ctx, http.MethodGet, "/download/v1beta/"+name+":download?alt=media", nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download responses file: %w", err)
	}

	var results []pipeline.BatchResult
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	pos := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var fl fileLine
		if err := json.Unmarshal(line, &fl); err != nil {
			return nil, fmt.Errorf("parse responses line %d: %w", pos, err)
		}
		results = append(results, resultFrom(pos, fl.Key, fl.Response, fl.Error))
		pos++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan responses file: %w", err)
	}
	return results, nil
}

// resultFrom picks the first inline image part of a response. The position
// is used when the key is missing or malformed.
func resultFrom(pos int, key string, resp *generateContentResponse, rerr *rpcStatus) pipeline.BatchResult {
	res := pipeline.BatchResult{Index: indexFromKey(key, pos)}
	if rerr != nil {
		res.Err = rerr.Message
		return res
	}
	if resp == nil {
		res.Err = "empty response"
		return res
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				res.Err = "invalid inline data: " + err.Error()
				return res
			}
			res.Data = data
			res.MimeType = p.InlineData.MimeType
			return res
		}
	}
	res.Err = "no image in response"
	return res
}

func indexFromKey(key string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(key, keyPrefix)); err == nil && strings.HasPrefix(key, keyPrefix) && n >= 0 {
		return n
	}
	return fallback
}

func (c *BatchClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	return httpx.Retry(ctx, c.cfg.Retries, time.Second, func(ctx context.Context) error {
		return c.doJSONOnce(ctx, method, path, body, out)
	})
}

func (c *BatchClient) doJSONOnce(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gemini decode error: %w", err)
	}
	return nil
}

func (c *BatchClient) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{Service: "gemini", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
