package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	agentOwnerField = "registeredByUid"
)

var (
	errMissingBaseURL  = errors.New("remote base url is required")
	errMissingRootPath = errors.New("remote root path is required")
	noOpLogger         = zap.NewNop()
)

// ClientConfig configures the tree-store REST client.
type ClientConfig struct {
	BaseURL  string
	RootPath string
	Tokens   TokenSource
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client talks to the hierarchical remote store over its REST surface.
// One instance is shared process-wide; writes target distinct paths per
// entity, so no client-level locking is needed.
type Client struct {
	http   *resty.Client
	root   string
	tokens TokenSource
	logger *zap.Logger
}

// NewClient constructs a Client. Retry stays disabled at the transport level:
// the reconciliation engine owns retry semantics.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.RootPath == "" {
		return nil, errMissingRootPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		root:   cfg.RootPath,
		tokens: cfg.Tokens,
		logger: logger,
	}, nil
}

func (c *Client) request(ctx context.Context, path string) (*resty.Request, error) {
	request := c.http.R().SetContext(ctx)
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, &Error{Kind: KindRejected, Path: path, Err: err}
		}
		request.SetAuthToken(token)
	}
	return request, nil
}

func (c *Client) individualPath(cns string) string {
	return fmt.Sprintf("/%s/%s.json", c.root, SanitizeKey(cns))
}

func (c *Client) dosePath(cns, key string) string {
	return fmt.Sprintf("/%s/%s/vacinas/%s.json", c.root, SanitizeKey(cns), key)
}

// GetIndividualsByAgent fetches every individual owned by the agent uid.
// Records that fail to parse are logged and skipped; they never abort the
// batch.
func (c *Client) GetIndividualsByAgent(ctx context.Context, agentUID string) ([]IndividualRecord, error) {
	path := fmt.Sprintf("/%s.json", c.root)
	request, err := c.request(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := request.
		SetQueryParam("orderBy", fmt.Sprintf("%q", agentOwnerField)).
		SetQueryParam("equalTo", fmt.Sprintf("%q", agentUID)).
		Get(path)
	if failure := c.classify(path, resp, err); failure != nil {
		return nil, failure
	}

	body := resp.Body()
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	var tree map[string]json.RawMessage
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, &Error{Kind: KindDecode, Path: path, Err: err}
	}

	records := make([]IndividualRecord, 0, len(tree))
	for key, raw := range tree {
		var record IndividualRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			c.logger.Warn("skipping malformed individual record",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if record.CNS == "" {
			c.logger.Warn("skipping individual record without cns", zap.String("key", key))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// PutIndividual writes the individual's flat fields, preserving the vacinas
// child subtree (merge semantics, not replace).
func (c *Client) PutIndividual(ctx context.Context, cns string, record IndividualRecord) error {
	path := c.individualPath(cns)
	request, err := c.request(ctx, path)
	if err != nil {
		return err
	}
	resp, err := request.SetBody(record).Patch(path)
	return c.classify(path, resp, err)
}

// PutDose writes one dose under the individual's vacinas subtree.
func (c *Client) PutDose(ctx context.Context, cns, key string, record DoseRecord) error {
	path := c.dosePath(cns, key)
	request, err := c.request(ctx, path)
	if err != nil {
		return err
	}
	resp, err := request.SetBody(record).Put(path)
	return c.classify(path, resp, err)
}

// DeleteDose removes one dose node.
func (c *Client) DeleteDose(ctx context.Context, cns, key string) error {
	path := c.dosePath(cns, key)
	request, err := c.request(ctx, path)
	if err != nil {
		return err
	}
	resp, err := request.Delete(path)
	return c.classify(path, resp, err)
}

// DeleteIndividual removes the individual's whole subtree, nested dose data
// included.
func (c *Client) DeleteIndividual(ctx context.Context, cns string) error {
	path := c.individualPath(cns)
	request, err := c.request(ctx, path)
	if err != nil {
		return err
	}
	resp, err := request.Delete(path)
	return c.classify(path, resp, err)
}

// classify folds transport and HTTP outcomes into the failure taxonomy.
func (c *Client) classify(path string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindTransient, Path: path, Err: err}
	}
	if resp == nil {
		return &Error{Kind: KindTransient, Path: path, Err: errors.New("no response")}
	}
	status := resp.StatusCode()
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status >= http.StatusInternalServerError:
		return &Error{Kind: KindTransient, Path: path, Status: status, Err: fmt.Errorf("server error: %s", resp.Status())}
	default:
		return &Error{Kind: KindRejected, Path: path, Status: status, Err: fmt.Errorf("request rejected: %s", resp.Status())}
	}
}
