// pkg/lti/deeplink.go
package lti

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"io"
	"net/http"
	"time"
)

// DeepLinkResponseTTL is the lifetime of a deep linking response token.
const DeepLinkResponseTTL = 600 * time.Second

// LineItem asks the platform to create a gradebook column for a resource.
type LineItem struct {
	ScoreMaximum float64
	Label        string
	ResourceID   string
	Tag          string
}

// DeepLinkResource is a content item returned to the platform.
type DeepLinkResource struct {
	Type     string
	Title    string
	URL      string
	LineItem *LineItem
	Custom   map[string]string
	// Target is the presentation document target.
	Target string
}

// NewDeepLinkResource returns a resource link presented in an iframe.
func NewDeepLinkResource(title, url string) DeepLinkResource {
	return DeepLinkResource{
		Type:   ContentTypeResourceLink,
		Title:  title,
		URL:    url,
		Custom: map[string]string{},
		Target: "iframe",
	}
}

// ContentItem renders the resource in the content item schema.
func (r DeepLinkResource) ContentItem() map[string]any {
	typ := r.Type
	if typ == "" {
		typ = ContentTypeResourceLink
	}
	target := r.Target
	if target == "" {
		target = "iframe"
	}
	custom := map[string]any{}
	for k, v := range r.Custom {
		custom[k] = v
	}
	item := map[string]any{
		"type":  typ,
		"title": r.Title,
		"url":   r.URL,
		"presentation": map[string]any{
			"documentTarget": target,
		},
		"custom": custom,
	}
	if r.LineItem != nil {
		li := map[string]any{
			"scoreMaximum": r.LineItem.ScoreMaximum,
			"label":        r.LineItem.Label,
		}
		if r.LineItem.ResourceID != "" {
			li["resourceId"] = r.LineItem.ResourceID
		}
		if r.LineItem.Tag != "" {
			li["tag"] = r.LineItem.Tag
		}
		item["lineItem"] = li
	}
	return item
}

// DeepLinkSettings is the deep_linking_settings claim of a request.
type DeepLinkSettings struct {
	ReturnURL                         string
	AcceptTypes                       []string
	AcceptPresentationDocumentTargets []string
	AcceptMediaTypes                  string
	AcceptMultiple                    bool
	AutoCreate                        bool
	Title                             string
	Text                              string
	// Data is opaque and must be echoed back unchanged.
	Data any
}

// ParseDeepLinkSettings reads the settings claim object.
func ParseDeepLinkSettings(m map[string]any) DeepLinkSettings {
	return DeepLinkSettings{
		ReturnURL:                         asString(m["deep_link_return_url"]),
		AcceptTypes:                       asStrings(m["accept_types"]),
		AcceptPresentationDocumentTargets: asStrings(m["accept_presentation_document_targets"]),
		AcceptMediaTypes:                  asString(m["accept_media_types"]),
		AcceptMultiple:                    asBool(m["accept_multiple"]),
		AutoCreate:                        asBool(m["auto_create"]),
		Title:                             asString(m["title"]),
		Text:                              asString(m["text"]),
		Data:                              m["data"],
	}
}

// DeepLink builds the signed response to a deep linking request.
type DeepLink struct {
	registration Registration
	deploymentID string
	settings     DeepLinkSettings
	now          func() time.Time
}

func NewDeepLink(reg Registration, deploymentID string, settings DeepLinkSettings) *DeepLink {
	return &DeepLink{registration: reg, deploymentID: deploymentID, settings: settings, now: time.Now}
}

func (d *DeepLink) Settings() DeepLinkSettings { return d.settings }

// ResponseClaims returns the unsigned response claims for resources.
func (d *DeepLink) ResponseClaims(resources []DeepLinkResource) (map[string]any, error) {
	nonce, err := responseNonce()
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(resources))
	for _, r := range resources {
		items = append(items, r.ContentItem())
	}
	now := d.now()
	return map[string]any{
		"iss":             d.registration.ClientID,
		"aud":             []string{d.registration.Issuer},
		"exp":             now.Add(DeepLinkResponseTTL).Unix(),
		"iat":             now.Unix(),
		"nonce":           nonce,
		ClaimDeploymentID: d.deploymentID,
		ClaimMessageType:  MessageDeepLinkResponse,
		ClaimVersion:      Version13,
		ClaimContentItems: items,
		ClaimDeepLinkData: d.settings.Data,
	}, nil
}

// ResponseJWT signs the response with the registration's tool key.
func (d *DeepLink) ResponseJWT(resources []DeepLinkResource) (string, error) {
	claims, err := d.ResponseClaims(resources)
	if err != nil {
		return "", err
	}
	kid, err := d.registration.KeyID()
	if err != nil {
		return "", err
	}
	key, err := ParsePrivateKey(d.registration.ToolPrivateKey)
	if err != nil {
		return "", err
	}
	return EncodeToken(claims, key, d.registration.SigningAlgorithm(), kid)
}

var responseFormTmpl = template.Must(template.New("deeplink").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Returning to platform</title></head>
<body>
<form id="auto_submit" action="{{.Action}}" method="POST">
  <input type="hidden" name="JWT" value="{{.JWT}}" />
  <input type="submit" name="Go" />
</form>
<script>document.getElementById('auto_submit').submit();</script>
</body></html>
`))

// WriteResponseForm renders an auto submitting form that posts the signed
// response to the platform's return URL.
func (d *DeepLink) WriteResponseForm(w io.Writer, resources []DeepLinkResource) error {
	if d.settings.ReturnURL == "" {
		return newError(KindMessageValidation, "Missing Deep Linking Return URL", nil)
	}
	jwt, err := d.ResponseJWT(resources)
	if err != nil {
		return err
	}
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return responseFormTmpl.Execute(w, struct {
		Action string
		JWT    string
	}{Action: d.settings.ReturnURL, JWT: jwt})
}

func responseNonce() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "nonce" + hex.EncodeToString(sum[:]), nil
}
