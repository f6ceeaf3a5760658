// pkg/lti/services/nrps.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

const ScopeContextMembership = "https://purl.imsglobal.org/spec/lti-nrps/scope/contextmembership.readonly"

// Member is one entry of a membership container.
type Member struct {
	Status     string   `json:"status,omitempty"`
	UserID     string   `json:"user_id"`
	Roles      []string `json:"roles"`
	Name       string   `json:"name,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Email      string   `json:"email,omitempty"`
	Picture    string   `json:"picture,omitempty"`
}

type membershipContainer struct {
	ID      string   `json:"id"`
	Members []Member `json:"members"`
}

// NRPS is a names and roles client bound to one launch.
type NRPS struct {
	conn     *Connector
	endpoint lti.NRPSEndpoint
}

func NewNRPS(conn *Connector, ep lti.NRPSEndpoint) *NRPS {
	return &NRPS{conn: conn, endpoint: ep}
}

func NRPSForLaunch(launch *lti.Launch, conn *Connector) (*NRPS, error) {
	ep, ok := launch.NRPS()
	if !ok {
		return nil, errors.New("nrps: launch has no namesroleservice claim")
	}
	return NewNRPS(conn, ep), nil
}

// Members fetches every page of the context membership.
func (n *NRPS) Members(ctx context.Context) ([]Member, error) {
	var out []Member
	next := n.endpoint.ContextMembershipsURL
	for pages := 0; next != "" && pages < 100; pages++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		req.Header.Set("Accept", "application/vnd.ims.lti-nrps.v2.membershipcontainer+json")
		resp, err := n.conn.Do(ctx, req, []string{ScopeContextMembership})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			err := httpErr("get members", resp)
			resp.Body.Close()
			return nil, err
		}
		var page membershipContainer
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, page.Members...)
		next = nextLink(resp.Header.Values("Link"))
	}
	return out, nil
}

// nextLink extracts the rel="next" target from Link headers.
func nextLink(headers []string) string {
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
			for _, p := range segs[1:] {
				if strings.ReplaceAll(strings.TrimSpace(p), " ", "") == `rel="next"` {
					return target
				}
			}
		}
	}
	return ""
}
