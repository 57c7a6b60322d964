// Package pinning talks to an HTTP pinning service: upload through the pinning
// API, read back through a public gateway. Server implements the same routes over
// any storage.CAS for local use.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/imagevault/cidutil"
	"xdao.co/imagevault/storage"
	"xdao.co/imagevault/storage/casregistry"
)

const (
	// PinPath is the upload route, relative to the API base URL.
	PinPath = "/pinning/pinFileToIPFS"
	// HeaderAPIKey and HeaderAPISecret carry the two service credentials.
	HeaderAPIKey    = "pinata_api_key"
	HeaderAPISecret = "pinata_secret_api_key"
	// FormField is the multipart field holding the file bytes.
	FormField = "file"
)

// PinResponse is the upload reply.
type PinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// API is the pinning API base URL, e.g. https://api.pinata.cloud.
	API string
	// Gateway is the read gateway base URL. Defaults to API.
	Gateway   string
	APIKey    string
	APISecret string
	// FileName is sent as the multipart file name. Defaults to "blob".
	FileName string
	HTTP     HTTPClient
}

// Client is a storage.CAS over a pinning service.
type Client struct {
	opts Options
}

var _ storage.CAS = (*Client)(nil)

func New(opts Options) (*Client, error) {
	opts.API = strings.TrimRight(strings.TrimSpace(opts.API), "/")
	if opts.API == "" {
		return nil, errors.New("pinning: api url is required")
	}
	opts.Gateway = strings.TrimRight(strings.TrimSpace(opts.Gateway), "/")
	if opts.Gateway == "" {
		opts.Gateway = opts.API
	}
	if opts.FileName == "" {
		opts.FileName = "blob"
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	return &Client{opts: opts}, nil
}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "pinning",
		Description: "HTTP pinning service (pinFileToIPFS) with gateway reads",
		Usage:       casregistry.UsageClient,
		Settings: []casregistry.Setting{
			{Key: "api", Usage: "pinning API base URL", Required: true},
			{Key: "gateway", Usage: "gateway base URL for reads (default: api)"},
			{Key: "api-key", Usage: "pinning API key"},
			{Key: "api-secret", Usage: "pinning API secret"},
			{Key: "timeout", Usage: "per-request deadline, e.g. 2m (default: none)"},
		},
		Open: func(settings map[string]string) (storage.CAS, func() error, error) {
			opts := Options{
				API:       settings["api"],
				Gateway:   settings["gateway"],
				APIKey:    settings["api-key"],
				APISecret: settings["api-secret"],
			}
			if v := strings.TrimSpace(settings["timeout"]); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "pinning: timeout %q", v)
				}
				opts.HTTP = &http.Client{Timeout: d}
			}
			c, err := New(opts)
			if err != nil {
				return nil, nil, err
			}
			return c, nil, nil
		},
	})
}

// Gateway returns the base URL reads are served from.
func (c *Client) Gateway() string { return c.opts.Gateway }

// Pin uploads data and returns the service's reply.
func (c *Client) Pin(ctx context.Context, data []byte) (PinResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(FormField, c.opts.FileName)
	if err != nil {
		return PinResponse{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return PinResponse{}, err
	}
	if err := mw.Close(); err != nil {
		return PinResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.API+PinPath, &body)
	if err != nil {
		return PinResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderAPIKey, c.opts.APIKey)
	req.Header.Set(HeaderAPISecret, c.opts.APISecret)

	resp, err := c.opts.HTTP.Do(req)
	if err != nil {
		return PinResponse{}, errors.Mark(errors.Wrap(err, "pinning: upload"), storage.ErrUnavailable)
	}
	defer resp.Body.Close()
	if err := statusError("upload", resp); err != nil {
		return PinResponse{}, err
	}

	var out PinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PinResponse{}, errors.Mark(errors.Wrap(err, "pinning: decode upload reply"), storage.ErrUnavailable)
	}
	return out, nil
}

// Put pins data and returns the CID the service assigned. Raw-codec CIDs are
// checked against data; other codecs are trusted as reported.
func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	resp, err := c.Pin(ctx, data)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cid.Decode(strings.TrimSpace(resp.IpfsHash))
	if err != nil {
		return cid.Undef, errors.Wrapf(storage.ErrInvalidCID, "pinning: reply hash %q", resp.IpfsHash)
	}
	if !cidutil.Verify(id, data) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	resp, err := c.fetch(ctx, http.MethodGet, id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError("fetch", resp); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "pinning: read body"), storage.ErrUnavailable)
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	resp, err := c.fetch(ctx, http.MethodHead, id)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode/100 == 2
}

func (c *Client) fetch(ctx context.Context, method string, id cid.Cid) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, cidutil.URI(c.opts.Gateway, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.HTTP.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "pinning: %s %s", strings.ToLower(method), id), storage.ErrUnavailable)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := errors.Newf("pinning: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Mark(err, storage.ErrNotFound)
	case http.StatusRequestEntityTooLarge:
		return errors.Mark(err, storage.ErrTooLarge)
	default:
		return errors.Mark(err, storage.ErrUnavailable)
	}
}
