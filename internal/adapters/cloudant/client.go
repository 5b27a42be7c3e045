package cloudant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"app_insights/internal/adapters/rest"
	"app_insights/internal/domain"
)

const DefaultDB = "app_db"

type Client struct {
	base string
	db   string
	http *rest.Client
}

var _ domain.AppCatalog = (*Client)(nil)

// New builds a client for the account at base. An empty base means the
// hosted account URL derived from the username.
func New(base, user, pass, db string, rps int) (*Client, error) {
	if user == "" || pass == "" {
		return nil, errors.New("cloudant credentials are required")
	}
	if base == "" {
		base = "https://" + user + ".cloudant.com"
	}
	if db == "" {
		db = DefaultDB
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		db:   db,
		http: rest.New("cloudant", rps, rest.WithBasicAuth(user, pass)),
	}, nil
}

// Error is a CouchDB error document ({"error": ..., "reason": ...}).
type Error struct {
	Code   string `json:"error"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string { return "cloudant: " + e.Code + ": " + e.Reason }

// Authorize checks the credentials by listing databases.
func (c *Client) Authorize(ctx context.Context) error {
	var dbs []string
	return c.get(ctx, "all_dbs", c.base+"/_all_dbs", &dbs)
}

// AllDocs returns every document body of the apps database.
func (c *Client) AllDocs(ctx context.Context) ([]map[string]any, error) {
	var resp struct {
		Rows []struct {
			ID  string         `json:"id"`
			Doc map[string]any `json:"doc"`
		} `json:"rows"`
	}
	u := c.base + "/" + url.PathEscape(c.db) + "/_all_docs?include_docs=true"
	if err := c.get(ctx, "all_docs", u, &resp); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		// design documents are not apps
		if r.Doc == nil || strings.HasPrefix(r.ID, "_design/") {
			continue
		}
		out = append(out, r.Doc)
	}
	return out, nil
}

// PutDoc sets the fields of doc on document id, creating it when missing.
// Fields already stored and absent from doc are kept; the current _rev is
// carried over.
func (c *Client) PutDoc(ctx context.Context, id string, doc map[string]any) error {
	u := c.base + "/" + url.PathEscape(c.db) + "/" + url.PathEscape(id)

	var cur map[string]any
	err := c.get(ctx, "get_doc", u, &cur)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		cur = nil
	case err != nil:
		return err
	}

	body := make(map[string]any, len(cur)+len(doc)+1)
	for k, v := range cur {
		body[k] = v
	}
	for k, v := range doc {
		if k == "_rev" {
			continue
		}
		body[k] = v
	}
	body["_id"] = id
	if rev, _ := cur["_rev"].(string); rev != "" {
		body["_rev"] = rev
	} else {
		delete(body, "_rev")
	}

	var raw json.RawMessage
	if err := c.http.Put(ctx, "put_doc", u, body, &raw); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	return checkError(raw)
}

// get decodes url into out, surfacing error documents returned with 200.
func (c *Client) get(ctx context.Context, endpoint, url string, out any) error {
	var raw json.RawMessage
	if err := c.http.Get(ctx, endpoint, url, &raw); err != nil {
		return err
	}
	if err := checkError(raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnexpectedJSON, err)
	}
	return nil
}

func checkError(raw json.RawMessage) error {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var e Error
	if err := json.Unmarshal(b, &e); err != nil {
		return nil
	}
	if e.Code != "" && e.Reason != "" {
		return &e
	}
	return nil
}
