package lti

import (
	"reflect"
	"strings"
	"testing"
)

func TestDeepLinkResourceContentItem(t *testing.T) {
	r := NewDeepLinkResource("Quiz 1", "https://tool.example.com/quiz/1")
	got := r.ContentItem()
	want := map[string]any{
		"type":         "ltiResourceLink",
		"title":        "Quiz 1",
		"url":          "https://tool.example.com/quiz/1",
		"presentation": map[string]any{"documentTarget": "iframe"},
		"custom":       map[string]any{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("content item = %#v", got)
	}

	r.LineItem = &LineItem{ScoreMaximum: 10, Label: "Quiz 1"}
	r.Custom = map[string]string{"quiz": "1"}
	r.Target = "window"
	got = r.ContentItem()
	li := got["lineItem"].(map[string]any)
	if li["scoreMaximum"] != 10.0 || li["label"] != "Quiz 1" {
		t.Fatalf("line item = %v", li)
	}
	if got["presentation"].(map[string]any)["documentTarget"] != "window" {
		t.Fatalf("target not applied")
	}
}

func TestDeepLinkResponseRoundTrip(t *testing.T) {
	reg := testRegistration(t)
	reg.KID = "tool-kid"
	settings := ParseDeepLinkSettings(deepLinkClaims()[ClaimDeepLinking].(map[string]any))
	dl := NewDeepLink(reg, testDeploymentID, settings)

	resources := []DeepLinkResource{NewDeepLinkResource("Quiz 1", "https://tool.example.com/quiz/1")}
	tok, err := dl.ResponseJWT(resources)
	if err != nil {
		t.Fatalf("response jwt: %v", err)
	}

	key, _ := ParsePrivateKey(reg.ToolPrivateKey)
	claims, err := VerifyToken(tok, key.Public(), []string{"RS256"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	header, _, _ := DecodeUnverified(tok)
	if header["kid"] != "tool-kid" {
		t.Fatalf("kid = %v", header["kid"])
	}
	if claims["iss"] != testClientID {
		t.Errorf("iss = %v", claims["iss"])
	}
	if aud := asStrings(claims["aud"]); len(aud) != 1 || aud[0] != testIssuer {
		t.Errorf("aud = %v", claims["aud"])
	}
	if claims[ClaimDeploymentID] != testDeploymentID ||
		claims[ClaimMessageType] != MessageDeepLinkResponse ||
		claims[ClaimVersion] != Version13 ||
		claims[ClaimDeepLinkData] != "opaque" {
		t.Errorf("claims = %v", claims)
	}
	if n := asString(claims["nonce"]); !strings.HasPrefix(n, "nonce") || len(n) != len("nonce")+64 {
		t.Errorf("nonce = %q", n)
	}
	exp, iat := toFloat(claims["exp"]), toFloat(claims["iat"])
	if exp-iat != DeepLinkResponseTTL.Seconds() {
		t.Errorf("exp-iat = %v", exp-iat)
	}
	items, _ := claims[ClaimContentItems].([]any)
	if len(items) != 1 || !reflect.DeepEqual(items[0], resources[0].ContentItem()) {
		t.Errorf("content items = %#v", claims[ClaimContentItems])
	}
}

func TestDeepLinkResponseForm(t *testing.T) {
	reg := testRegistration(t)
	settings := ParseDeepLinkSettings(deepLinkClaims()[ClaimDeepLinking].(map[string]any))
	dl := NewDeepLink(reg, testDeploymentID, settings)

	var b strings.Builder
	if err := dl.WriteResponseForm(&b, nil); err != nil {
		t.Fatalf("form: %v", err)
	}
	html := b.String()
	if !strings.Contains(html, `action="https://platform.example.com/dl/return"`) || !strings.Contains(html, `name="JWT"`) {
		t.Fatalf("form = %s", html)
	}

	dl = NewDeepLink(reg, testDeploymentID, DeepLinkSettings{})
	if err := dl.WriteResponseForm(&b, nil); KindOf(err) != KindMessageValidation {
		t.Fatalf("missing return url: %v", err)
	}
}

func TestLaunchDeepLink(t *testing.T) {
	claims := deepLinkClaims()
	claims[ClaimDeploymentID] = testDeploymentID
	l := &Launch{claims: claims, registration: testRegistration(t)}
	if !l.IsDeepLinkLaunch() {
		t.Fatal("not a deep link launch")
	}
	dl, err := l.DeepLink()
	if err != nil {
		t.Fatal(err)
	}
	s := dl.Settings()
	if s.ReturnURL == "" || len(s.AcceptTypes) != 2 || s.Data != "opaque" {
		t.Fatalf("settings = %+v", s)
	}

	l = &Launch{claims: resourceLinkClaims("n")}
	if _, err := l.DeepLink(); err == nil {
		t.Fatal("resource link launch produced a deep link")
	}
}

func TestLaunchServiceClaims(t *testing.T) {
	claims := resourceLinkClaims("n")
	claims[ClaimAGSEndpoint] = map[string]any{
		"scope":     []any{"https://purl.imsglobal.org/spec/lti-ags/scope/score"},
		"lineitems": "https://platform.example.com/lineitems",
	}
	claims[ClaimNRPSService] = map[string]any{"context_memberships_url": "https://platform.example.com/members"}
	l := &Launch{claims: claims}

	if !l.HasAGS() || !l.HasNRPS() || l.HasGS() {
		t.Fatalf("has: ags=%v nrps=%v gs=%v", l.HasAGS(), l.HasNRPS(), l.HasGS())
	}
	ags, _ := l.AGS()
	if ags.LineItems != "https://platform.example.com/lineitems" || len(ags.Scope) != 1 {
		t.Fatalf("ags = %+v", ags)
	}
	nrps, _ := l.NRPS()
	if nrps.ContextMembershipsURL == "" {
		t.Fatalf("nrps = %+v", nrps)
	}
	if _, ok := l.GS(); ok {
		t.Fatal("unexpected groups service")
	}
	claims[ClaimMessageType] = MessageSubmissionReview
	if !l.IsSubmissionReviewLaunch() {
		t.Fatal("submission review not detected")
	}
}
