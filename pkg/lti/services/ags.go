// pkg/lti/services/ags.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

// AGS scopes.
const (
	ScopeLineItem         = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeLineItemReadOnly = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem.readonly"
	ScopeResultReadOnly   = "https://purl.imsglobal.org/spec/lti-ags/scope/result.readonly"
	ScopeScore            = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
)

// ===== Models (per IMS AGS 2.0, trimmed to what we use) =====

type LineItem struct {
	ID             string  `json:"id,omitempty"`
	ScoreMaximum   float64 `json:"scoreMaximum,omitempty"`
	Label          string  `json:"label,omitempty"`
	ResourceID     string  `json:"resourceId,omitempty"`
	ResourceLinkID string  `json:"resourceLinkId,omitempty"`
	Tag            string  `json:"tag,omitempty"`
	StartDateTime  string  `json:"startDateTime,omitempty"`
	EndDateTime    string  `json:"endDateTime,omitempty"`
}

type Score struct {
	UserID           string   `json:"userId"`
	Timestamp        string   `json:"timestamp"`
	ScoreGiven       *float64 `json:"scoreGiven,omitempty"`
	ScoreMaximum     *float64 `json:"scoreMaximum,omitempty"`
	ActivityProgress string   `json:"activityProgress"` // Initialized|Started|InProgress|Submitted|Completed
	GradingProgress  string   `json:"gradingProgress"`  // NotReady|Failed|Pending|PendingManual|FullyGraded
	Comment          string   `json:"comment,omitempty"`
}

type Result struct {
	ID            string   `json:"id,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	ResultScore   *float64 `json:"resultScore,omitempty"`
	ResultMaximum *float64 `json:"resultMaximum,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

// AGS is an assignment and grade services client bound to one launch.
type AGS struct {
	conn     *Connector
	endpoint lti.AGSEndpoint
}

func NewAGS(conn *Connector, ep lti.AGSEndpoint) *AGS {
	return &AGS{conn: conn, endpoint: ep}
}

// AGSForLaunch returns a client for the launch's AGS claim.
func AGSForLaunch(launch *lti.Launch, conn *Connector) (*AGS, error) {
	ep, ok := launch.AGS()
	if !ok {
		return nil, errors.New("ags: launch has no endpoint claim")
	}
	return NewAGS(conn, ep), nil
}

func (a *AGS) Endpoint() lti.AGSEndpoint { return a.endpoint }

// LineItems lists line items, optionally filtered.
func (a *AGS) LineItems(ctx context.Context, resourceID, resourceLinkID, tag string, limit int) ([]LineItem, error) {
	if a.endpoint.LineItems == "" {
		return nil, errors.New("ags: missing lineitems url")
	}
	scopes, err := a.scopes(ScopeLineItemReadOnly, ScopeLineItem)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(a.endpoint.LineItems)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if resourceID != "" {
		q.Set("resource_id", resourceID)
	}
	if resourceLinkID != "" {
		q.Set("resource_link_id", resourceLinkID)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitemcontainer+json")
	resp, err := a.conn.Do(ctx, req, scopes)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, httpErr("list line items", resp)
	}
	var out []LineItem
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateLineItem POSTs a new line item and returns the platform's copy.
func (a *AGS) CreateLineItem(ctx context.Context, li LineItem) (LineItem, error) {
	if a.endpoint.LineItems == "" {
		return LineItem{}, errors.New("ags: missing lineitems url")
	}
	if li.ScoreMaximum <= 0 {
		return LineItem{}, errors.New("ags: scoreMaximum required and > 0")
	}
	scopes, err := a.scopes(ScopeLineItem)
	if err != nil {
		return LineItem{}, err
	}
	body, _ := json.Marshal(li)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint.LineItems, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/vnd.ims.lis.v2.lineitem+json")
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitem+json")
	resp, err := a.conn.Do(ctx, req, scopes)
	if err != nil {
		return LineItem{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return LineItem{}, httpErr("create line item", resp)
	}
	var out LineItem
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LineItem{}, err
	}
	return out, nil
}

// FindOrCreateLineItem returns the first line item matching li's tag and
// resource id, creating it when none exists.
func (a *AGS) FindOrCreateLineItem(ctx context.Context, li LineItem) (LineItem, error) {
	items, err := a.LineItems(ctx, li.ResourceID, li.ResourceLinkID, li.Tag, 0)
	if err != nil {
		return LineItem{}, err
	}
	for _, it := range items {
		if it.Tag == li.Tag && it.ResourceID == li.ResourceID {
			return it, nil
		}
	}
	return a.CreateLineItem(ctx, li)
}

// PostScore posts a score to "{lineItemURL}/scores". An empty lineItemURL
// uses the launch's own line item.
func (a *AGS) PostScore(ctx context.Context, lineItemURL string, s Score) error {
	if lineItemURL == "" {
		lineItemURL = a.endpoint.LineItem
	}
	if lineItemURL == "" {
		return errors.New("ags: line item url required")
	}
	if s.UserID == "" {
		return errors.New("ags: score.userId required")
	}
	if s.Timestamp == "" {
		s.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if s.ActivityProgress == "" {
		s.ActivityProgress = "Completed"
	}
	if s.GradingProgress == "" {
		s.GradingProgress = "FullyGraded"
	}
	scopes, err := a.scopes(ScopeScore)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(s)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, withPathSuffix(lineItemURL, "/scores"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/vnd.ims.lis.v1.score+json")
	resp, err := a.conn.Do(ctx, req, scopes)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return httpErr("post score", resp)
	}
	return nil
}

// Results reads results for a line item, optionally for one user.
func (a *AGS) Results(ctx context.Context, lineItemURL, userID string) ([]Result, error) {
	if lineItemURL == "" {
		lineItemURL = a.endpoint.LineItem
	}
	if lineItemURL == "" {
		return nil, errors.New("ags: line item url required")
	}
	scopes, err := a.scopes(ScopeResultReadOnly)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(withPathSuffix(lineItemURL, "/results"))
	if err != nil {
		return nil, err
	}
	if userID != "" {
		q := u.Query()
		q.Set("user_id", userID)
		u.RawQuery = q.Encode()
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.resultcontainer+json")
	resp, err := a.conn.Do(ctx, req, scopes)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, httpErr("get results", resp)
	}
	var out []Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// scopes picks the first preferred scope the platform granted.
func (a *AGS) scopes(preferred ...string) ([]string, error) {
	for _, want := range preferred {
		for _, s := range a.endpoint.Scope {
			if s == want {
				return []string{want}, nil
			}
		}
	}
	return nil, errors.New("ags: missing scope " + preferred[0])
}

// withPathSuffix appends suffix to the path of u, keeping any query.
func withPathSuffix(u, suffix string) string {
	base, query, _ := strings.Cut(u, "?")
	out := strings.TrimRight(base, "/") + suffix
	if query != "" {
		out += "?" + query
	}
	return out
}
