package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/cookie"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/services"
)

// handleLogin accepts third party initiated login (GET or form POST) and
// redirects the browser to the platform's authorization endpoint.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Error: "bad form"})
		return
	}
	params := lti.LoginParamsFromValues(r.Form)
	redirect, err := a.Login.Initiate(r.Context(), cookie.New(w, r, a.Cookies), a.LaunchURL, params)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.Form.Get("redirect") == "script" {
		if err := redirect.WriteScript(w); err != nil {
			a.logger().WarnContext(r.Context(), "login redirect render failed", slog.String("error", err.Error()))
		}
		return
	}
	redirect.Do(w, r)
}

// handleLaunch validates the id_token form post.
func (a *API) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Error: "bad form"})
		return
	}
	jar := cookie.New(w, r, a.Cookies)
	launch, err := a.Validator.Validate(r.Context(), jar, lti.LaunchRequestFromValues(r.PostForm))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := jar.WriteState(SessionKeyPrefix+launch.ID(), launch.ID(), a.sessionTTL()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(launch))
}

// SessionKeyPrefix names the cookie that binds a launch id to the browser
// that completed the launch.
const SessionKeyPrefix = "lti1p3_session_"

func (a *API) sessionTTL() time.Duration {
	if a.SessionTTL > 0 {
		return a.SessionTTL
	}
	return 2 * time.Hour
}

// sessionLaunch loads the launch named in the URL, provided the request
// carries the session cookie written when that launch was validated. With
// staffOnly the launching user must also hold an instructor or admin role.
func (a *API) sessionLaunch(w http.ResponseWriter, r *http.Request, staffOnly bool) (*lti.Launch, bool) {
	launchID := chi.URLParam(r, "launchID")
	got, ok := cookie.New(w, r, a.Cookies).ReadState(SessionKeyPrefix + launchID)
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(launchID)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errResp{Error: "launch session required"})
		return nil, false
	}
	launch, err := a.Validator.FromCache(r.Context(), launchID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if staffOnly && !launch.IsStaff() {
		a.forbid(w, r, launch)
		return nil, false
	}
	return launch, true
}

func (a *API) forbid(w http.ResponseWriter, r *http.Request, launch *lti.Launch) {
	a.logger().WarnContext(r.Context(), "launch role not permitted",
		slog.String("launch_id", launch.ID()),
		slog.String("path", r.URL.Path))
	writeJSON(w, http.StatusForbidden, errResp{Error: "instructor role required"})
}

func (a *API) handleGetLaunch(w http.ResponseWriter, r *http.Request) {
	launch, ok := a.sessionLaunch(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(launch))
}

type lineItemReq struct {
	ScoreMaximum float64 `json:"scoreMaximum"`
	Label        string  `json:"label"`
	ResourceID   string  `json:"resourceId"`
	Tag          string  `json:"tag"`
}

type resourceReq struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Target   string            `json:"target"`
	Custom   map[string]string `json:"custom"`
	LineItem *lineItemReq      `json:"lineItem"`
}

// handleDeepLink answers a deep linking launch with the posted resources as
// an auto submitting form.
func (a *API) handleDeepLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resources []resourceReq `json:"resources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Error: "bad json"})
		return
	}
	launch, ok := a.sessionLaunch(w, r, true)
	if !ok {
		return
	}
	if !launch.IsDeepLinkLaunch() {
		writeJSON(w, http.StatusConflict, errResp{Error: "launch is not a deep linking request"})
		return
	}
	dl, err := launch.DeepLink()
	if err != nil {
		writeError(w, err)
		return
	}
	resources := make([]lti.DeepLinkResource, 0, len(req.Resources))
	for _, rr := range req.Resources {
		if strings.TrimSpace(rr.URL) == "" {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "resource url required"})
			return
		}
		res := lti.NewDeepLinkResource(rr.Title, rr.URL)
		if rr.Type != "" {
			res.Type = rr.Type
		}
		if rr.Target != "" {
			res.Target = rr.Target
		}
		for k, v := range rr.Custom {
			res.Custom[k] = v
		}
		if rr.LineItem != nil {
			res.LineItem = &lti.LineItem{
				ScoreMaximum: rr.LineItem.ScoreMaximum,
				Label:        rr.LineItem.Label,
				ResourceID:   rr.LineItem.ResourceID,
				Tag:          rr.LineItem.Tag,
			}
		}
		resources = append(resources, res)
	}
	if err := dl.WriteResponseForm(w, resources); err != nil {
		writeError(w, err)
	}
}

// handleScore posts a score to the launch's line item. Staff may grade any
// user; anyone else may only report their own progress without a score.
func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID           string   `json:"userId"`
		ScoreGiven       *float64 `json:"scoreGiven"`
		ScoreMaximum     *float64 `json:"scoreMaximum"`
		ActivityProgress string   `json:"activityProgress"`
		GradingProgress  string   `json:"gradingProgress"`
		Comment          string   `json:"comment"`
		LineItem         string   `json:"lineItem"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Error: "bad json"})
		return
	}
	launch, ok := a.sessionLaunch(w, r, false)
	if !ok {
		return
	}
	if !launch.IsStaff() {
		if (req.UserID != "" && req.UserID != launch.Subject()) ||
			req.ScoreGiven != nil || req.ScoreMaximum != nil || req.GradingProgress != "" || req.LineItem != "" {
			a.forbid(w, r, launch)
			return
		}
		req.GradingProgress = "Pending"
		if req.ActivityProgress == "" {
			req.ActivityProgress = "Submitted"
		}
	}
	ags, err := services.AGSForLaunch(launch, a.connector(launch.Registration()))
	if err != nil {
		writeJSON(w, http.StatusConflict, errResp{Error: err.Error()})
		return
	}
	if req.UserID == "" {
		req.UserID = launch.Subject()
	}
	score := services.Score{
		UserID:           req.UserID,
		ScoreGiven:       req.ScoreGiven,
		ScoreMaximum:     req.ScoreMaximum,
		ActivityProgress: req.ActivityProgress,
		GradingProgress:  req.GradingProgress,
		Comment:          req.Comment,
	}
	if err := ags.PostScore(r.Context(), req.LineItem, score); err != nil {
		a.logger().WarnContext(r.Context(), "score post failed", slog.String("launch_id", launch.ID()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errResp{Error: "score post failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMembers lists the context roster through NRPS.
func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	launch, ok := a.sessionLaunch(w, r, true)
	if !ok {
		return
	}
	nrps, err := services.NRPSForLaunch(launch, a.connector(launch.Registration()))
	if err != nil {
		writeJSON(w, http.StatusConflict, errResp{Error: err.Error()})
		return
	}
	members, err := nrps.Members(r.Context())
	if err != nil {
		a.logger().WarnContext(r.Context(), "membership fetch failed", slog.String("launch_id", launch.ID()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errResp{Error: "membership fetch failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

type deepLinkSummary struct {
	ReturnURL      string   `json:"return_url"`
	AcceptTypes    []string `json:"accept_types,omitempty"`
	AcceptMultiple bool     `json:"accept_multiple"`
}

type launchSummary struct {
	LaunchID       string            `json:"launch_id"`
	MessageType    string            `json:"message_type"`
	Issuer         string            `json:"iss"`
	ClientID       string            `json:"client_id"`
	DeploymentID   string            `json:"deployment_id"`
	Subject        string            `json:"sub,omitempty"`
	Roles          []string          `json:"roles,omitempty"`
	TargetLinkURI  string            `json:"target_link_uri,omitempty"`
	ResourceLinkID string            `json:"resource_link_id,omitempty"`
	ContextID      string            `json:"context_id,omitempty"`
	Custom         map[string]string `json:"custom,omitempty"`
	HasAGS         bool              `json:"has_ags"`
	HasNRPS        bool              `json:"has_nrps"`
	DeepLinking    *deepLinkSummary  `json:"deep_linking,omitempty"`
}

func summarize(l *lti.Launch) launchSummary {
	reg := l.Registration()
	s := launchSummary{
		LaunchID:       l.ID(),
		MessageType:    l.MessageType(),
		Issuer:         reg.Issuer,
		ClientID:       reg.ClientID,
		DeploymentID:   l.DeploymentID(),
		Subject:        l.Subject(),
		Roles:          l.Roles(),
		TargetLinkURI:  l.TargetLinkURI(),
		ResourceLinkID: l.ResourceLinkID(),
		ContextID:      l.ContextID(),
		Custom:         l.Custom(),
		HasAGS:         l.HasAGS(),
		HasNRPS:        l.HasNRPS(),
	}
	if l.IsDeepLinkLaunch() {
		if dl, err := l.DeepLink(); err == nil {
			st := dl.Settings()
			s.DeepLinking = &deepLinkSummary{ReturnURL: st.ReturnURL, AcceptTypes: st.AcceptTypes, AcceptMultiple: st.AcceptMultiple}
		}
	}
	return s
}

// IssuerJWKS resolves the key set for ?iss=...&client_id=... from the
// registration store and falls back to the tool's own keys.
func IssuerJWKS(store lti.RegistrationStore, fallback *lti.JWKS) func(*http.Request) (*lti.JWKS, error) {
	return func(r *http.Request) (*lti.JWKS, error) {
		iss := r.URL.Query().Get("iss")
		if iss == "" {
			if fallback == nil {
				return nil, errors.New("jwks: no tool key configured")
			}
			return fallback, nil
		}
		return lti.JWKSFromIssuer(r.Context(), store, iss, r.URL.Query().Get("client_id"))
	}
}
