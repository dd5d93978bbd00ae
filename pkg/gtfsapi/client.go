package gtfsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gtfsviewer/internal/domain"
)

const (
	pathDatasets    = "/api/gtfs-folders"
	pathRoutes      = "/api/routes"
	pathRouteDetail = "/api/route-details"
	pathUpload      = "/api/upload"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a client for the GTFS API at baseURL. A zero timeout leaves
// requests bounded only by their context.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "gtfs_api"),
	}
}

// UploadResult is the upstream answer to a successful feed upload.
type UploadResult struct {
	Success  bool      `json:"success"`
	FolderID domain.ID `json:"folder_id"`
}

func (c *Client) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	const op = "list datasets"

	body, err := c.get(ctx, op, pathDatasets, nil)
	if err != nil {
		return nil, err
	}

	var datasets []domain.Dataset
	if err := c.decode(op, body, &datasets); err != nil {
		return nil, err
	}
	if datasets == nil {
		datasets = []domain.Dataset{}
	}
	return datasets, nil
}

func (c *Client) ListRoutes(ctx context.Context, datasetID string) ([]domain.Route, error) {
	const op = "list routes"

	if strings.TrimSpace(datasetID) == "" {
		return nil, fmt.Errorf("%s: dataset id is required: %w", op, ErrInvalidArgument)
	}

	params := url.Values{}
	params.Set("folder", datasetID)

	body, err := c.get(ctx, op, pathRoutes, params)
	if err != nil {
		return nil, err
	}

	var routes []domain.Route
	if err := c.decode(op, body, &routes); err != nil {
		return nil, err
	}
	if routes == nil {
		routes = []domain.Route{}
	}
	return routes, nil
}

func (c *Client) RouteDetail(ctx context.Context, datasetID, routeID, datetime string) (*domain.RouteDetail, error) {
	const op = "route detail"

	if strings.TrimSpace(datasetID) == "" || strings.TrimSpace(routeID) == "" || strings.TrimSpace(datetime) == "" {
		return nil, fmt.Errorf("%s: dataset, route and datetime are required: %w", op, ErrInvalidArgument)
	}

	params := url.Values{}
	params.Set("folder", datasetID)
	params.Set("route_id", routeID)
	params.Set("datetime", datetime)

	body, err := c.get(ctx, op, pathRouteDetail, params)
	if err != nil {
		return nil, err
	}

	var detail domain.RouteDetail
	if err := c.decode(op, body, &detail); err != nil {
		return nil, err
	}

	if len(detail.Shape) == 0 {
		c.logger.Info("route detail without shape",
			"folder", datasetID,
			"route_id", routeID,
			"datetime", datetime,
		)
		return nil, ErrNoShape
	}
	if len(detail.Stops) == 0 {
		c.logger.Warn("route detail without stops",
			"folder", datasetID,
			"route_id", routeID,
			"shape_points", len(detail.Shape),
		)
	}

	return &detail, nil
}

// Upload sends a zipped GTFS feed as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	const op = "upload"

	if strings.TrimSpace(filename) == "" || r == nil {
		return nil, fmt.Errorf("%s: file is required: %w", op, ErrInvalidArgument)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathUpload, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	body, err := c.do(req, op)
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if len(bytes.TrimSpace(body)) > 0 {
		if err := c.decode(op, body, &result); err != nil {
			return nil, err
		}
	}

	c.logger.Info("feed uploaded",
		"filename", filename,
		"folder_id", result.FolderID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &result, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	return c.do(req, op)
}

// do executes req and returns the raw body of a successful response. An
// {"error": ...} body wins over the status code.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "op", op, "url", req.URL.Redacted(), "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("reading response failed", "op", op, "status", resp.Status, "error", err)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}

	c.logger.Debug("response received",
		"op", op,
		"status_code", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"size_bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if msg, ok := errorMessage(body); ok {
		c.logger.Info("upstream reported error", "op", op, "status_code", resp.StatusCode, "message", msg)
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("unexpected status",
			"op", op,
			"status", resp.Status,
			"body", truncate(string(body), 2048),
		)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		c.logger.Debug("upstream sent non-JSON content type, parsing body as JSON",
			"op", op,
			"content_type", resp.Header.Get("Content-Type"),
		)
	}

	return body, nil
}

// decode parses body as JSON no matter what Content-Type the server set.
func (c *Client) decode(op string, body []byte, dest any) error {
	body = bytes.TrimPrefix(bytes.TrimSpace(body), []byte("\xef\xbb\xbf"))
	if err := json.Unmarshal(body, dest); err != nil {
		c.logger.Error("malformed response",
			"op", op,
			"error", err,
			"body", truncate(string(body), 2048),
		)
		return &TransportError{Op: op, Body: string(body), Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// errorMessage reports whether body carries an "error" field. A string is
// returned as is; any other non-empty value is returned as its JSON text.
func errorMessage(body []byte) (string, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return "", false
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}

	raw := bytes.TrimSpace(envelope.Error)
	switch string(raw) {
	case "", "null", "false", `""`, "{}", "[]":
		return "", false
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return string(raw), true
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
