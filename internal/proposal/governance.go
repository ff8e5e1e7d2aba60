package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

// GovernanceProposal is the subset of the governance API proposal document
// that the pipeline reads.
type GovernanceProposal struct {
	ProposalID uint64          `json:"proposal_id"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	URL        string          `json:"url"`
	Topic      json.RawMessage `json:"topic"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	ProposalTS int64           `json:"proposal_timestamp_seconds"`
}

// installCodePayload is the InstallCode action payload as rendered by the API.
type installCodePayload struct {
	CanisterID     string `json:"canister_id"`
	WasmModuleHash string `json:"wasm_module_hash"`
	ArgHash        string `json:"arg_hash"`
	InstallMode    string `json:"install_mode"`
}

var topicNames = map[string]int{
	"TOPIC_GOVERNANCE":                        4,
	"TOPIC_NODE_ADMIN":                        5,
	"TOPIC_SUBNET_MANAGEMENT":                 7,
	"TOPIC_NETWORK_CANISTER_MANAGEMENT":       8,
	"TOPIC_KYC":                               9,
	"TOPIC_PROTOCOL_CANISTER_MANAGEMENT":      17,
	"TOPIC_SERVICE_NERVOUS_SYSTEM_MANAGEMENT": 18,
}

// TopicID returns the numeric topic. The API renders topics either as an
// integer or as a TOPIC_* name; unknown names yield -1.
func (g GovernanceProposal) TopicID() int {
	raw := strings.TrimSpace(string(g.Topic))
	if raw == "" || raw == "null" {
		return -1
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	var name string
	if err := json.Unmarshal(g.Topic, &name); err != nil {
		return -1
	}
	if n, ok := topicNames[name]; ok {
		return n
	}
	if n, err := strconv.Atoi(name); err == nil {
		return n
	}
	return -1
}

// FromGovernance converts a governance API document into a Payload. Only an
// InstallCode action populates the build-related fields.
func FromGovernance(g GovernanceProposal) (Payload, error) {
	p := Payload{
		ProposalID: g.ProposalID,
		Title:      g.Title,
		Summary:    g.Summary,
		URL:        g.URL,
		Topic:      g.TopicID(),
		Action:     g.Action,
	}
	if !p.IsCodeInstall() {
		return p, nil
	}

	var ic installCodePayload
	if len(g.Payload) > 0 && string(g.Payload) != "null" {
		if err := json.Unmarshal(g.Payload, &ic); err != nil {
			return Payload{}, errors.WrapWithDetails(errors.EPayloadInvalid, "invalid InstallCode payload", err,
				map[string]string{"proposal_id": formatID(g.ProposalID)})
		}
	}
	p.ExpectedArtifactHash = strings.ToLower(strings.TrimSpace(ic.WasmModuleHash))
	p.ExpectedArgHash = strings.ToLower(strings.TrimSpace(ic.ArgHash))
	p.CanisterID = ic.CanisterID
	p.Commit = ExtractCommit(g.Summary)
	return p, nil
}

// Client fetches proposals from the governance REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Get fetches one proposal.
func (c *Client) Get(ctx context.Context, id uint64) (GovernanceProposal, error) {
	var g GovernanceProposal
	if err := c.getJSON(ctx, "/proposals/"+formatID(id), &g); err != nil {
		return GovernanceProposal{}, err
	}
	if g.ProposalID == 0 {
		g.ProposalID = id
	}
	return g, nil
}

// List fetches the most recent proposals, newest first.
func (c *Client) List(ctx context.Context, limit int) ([]GovernanceProposal, error) {
	if limit <= 0 {
		limit = 50
	}
	var page struct {
		Data []GovernanceProposal `json:"data"`
	}
	if err := c.getJSON(ctx, "/proposals?limit="+strconv.Itoa(limit), &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Fetch gets a proposal and converts it to a Payload.
func (c *Client) Fetch(ctx context.Context, id uint64) (Payload, error) {
	g, err := c.Get(ctx, id)
	if err != nil {
		return Payload{}, err
	}
	return FromGovernance(g)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	url := c.BaseURL + path
	details := map[string]string{"url": url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WrapWithDetails(errors.EProposalFetchFailed, "failed to build request", err, details)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return errors.WrapWithDetails(errors.EProposalFetchFailed, "governance API request failed", err, details)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.WrapWithDetails(errors.EProposalFetchFailed, "failed to read governance API response", err, details)
	}
	if resp.StatusCode != http.StatusOK {
		details["status"] = strconv.Itoa(resp.StatusCode)
		return errors.NewWithDetails(errors.EProposalFetchFailed,
			fmt.Sprintf("governance API returned %d", resp.StatusCode), details)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.WrapWithDetails(errors.EProposalFetchFailed, "invalid governance API response", err, details)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
