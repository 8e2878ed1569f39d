package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"coptic-quiz-service/internal/domain"
)

type client struct {
	t    *testing.T
	base string
	who  url.Values
}

func (ts *testServer) as(t *testing.T, userID, email string) *client {
	return &client{t: t, base: ts.URL, who: url.Values{"userId": {userID}, "name": {"User " + userID}, "email": {email}}}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	u, err := url.Parse(c.base + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	for k, v := range c.who {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(method, u.String(), &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAPIProfileAndOrganizationLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	admin := ts.as(t, "root", testAdmin)
	user := ts.as(t, "u1", "")

	var me domain.UserProfile
	if code := user.do("GET", "/api/me", nil, &me); code != http.StatusOK {
		t.Fatalf("get me: %d", code)
	}
	if me.ID != "u1" || me.XP != 0 || me.Level != 1 {
		t.Fatalf("unexpected profile %+v", me)
	}

	if code := user.do("POST", "/api/organizations", map[string]string{"name": "Rogue"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin create, got %d", code)
	}
	if code := admin.do("POST", "/api/organizations", map[string]string{"name": " "}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", code)
	}

	var a, b domain.Organization
	if code := admin.do("POST", "/api/organizations", map[string]string{"name": "St. Mark"}, &a); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if code := admin.do("POST", "/api/organizations", map[string]string{"name": "St. Mary"}, &b); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}

	var assigned domain.UserProfile
	if code := admin.do("PUT", "/api/users/u1/organization", map[string]string{"organizationId": a.ID}, &assigned); code != http.StatusOK {
		t.Fatalf("assign: %d", code)
	}
	if assigned.OrganizationName != "St. Mark" {
		t.Fatalf("expected denormalized name, got %+v", assigned)
	}

	if code := admin.do("DELETE", "/api/organizations/"+a.ID, nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 deleting an organization in use, got %d", code)
	}
	if code := admin.do("PUT", "/api/users/u1/organization", map[string]string{"organizationId": b.ID}, nil); code != http.StatusOK {
		t.Fatalf("reassign: %d", code)
	}
	if code := admin.do("DELETE", "/api/organizations/"+a.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204 after reassigning, got %d", code)
	}
	if code := admin.do("DELETE", "/api/organizations/"+a.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for a deleted organization, got %d", code)
	}

	var renamed domain.Organization
	if code := admin.do("PATCH", "/api/organizations/"+b.ID, map[string]string{"description": "Youth"}, &renamed); code != http.StatusOK {
		t.Fatalf("patch: %d", code)
	}
	if renamed.Name != "St. Mary" || renamed.Description != "Youth" {
		t.Fatalf("expected name kept on partial update, got %+v", renamed)
	}
}

func TestAPIAdminScopeAndMembers(t *testing.T) {
	ts := newTestServer(t, "")
	admin := ts.as(t, "root", testAdmin)
	lead := ts.as(t, "lead", "")

	var org domain.Organization
	admin.do("POST", "/api/organizations", map[string]string{"name": "St. Mark"}, &org)
	lead.do("GET", "/api/me", nil, nil)

	if code := lead.do("GET", "/api/users?organizationId="+org.ID, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 before scope grant, got %d", code)
	}
	if code := admin.do("PUT", "/api/users/lead/admin-scope", map[string]string{"organizationId": org.ID}, nil); code != http.StatusOK {
		t.Fatalf("grant scope: %d", code)
	}
	if code := lead.do("PUT", "/api/users/lead/organization", map[string]string{"organizationId": org.ID}, nil); code != http.StatusOK {
		t.Fatalf("org admin assigning into own org: %d", code)
	}
	var members []domain.UserProfile
	if code := lead.do("GET", "/api/users?organizationId="+org.ID, nil, &members); code != http.StatusOK {
		t.Fatalf("list members: %d", code)
	}
	if len(members) != 1 || members[0].ID != "lead" {
		t.Fatalf("unexpected members %+v", members)
	}
	if code := lead.do("GET", "/api/users", nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for global member list, got %d", code)
	}
	var managed []domain.Organization
	if code := lead.do("GET", "/api/organizations?managed=true", nil, &managed); code != http.StatusOK || len(managed) != 1 {
		t.Fatalf("managed organizations: %d %+v", code, managed)
	}
}

func TestAPILeaderboardAndCatalog(t *testing.T) {
	ts := newTestServer(t, "")
	for _, id := range []string{"u1", "u2", "u3"} {
		ts.as(t, id, "").do("GET", "/api/me", nil, nil)
	}
	ctx := context.Background()
	for id, xp := range map[string]int{"u1": 10, "u2": 30, "u3": 20} {
		if _, err := ts.profiles.ApplyXP(ctx, id, xp); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	user := ts.as(t, "u1", "")
	var lb domain.Leaderboard
	if code := user.do("GET", "/api/leaderboard?limit=2", nil, &lb); code != http.StatusOK {
		t.Fatalf("leaderboard: %d", code)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "u2" || lb.Entries[1].UserID != "u3" {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}
	if code := user.do("GET", "/api/leaderboard?limit=zero", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", code)
	}

	var cat catalogPayload
	if code := user.do("GET", "/api/catalog", nil, &cat); code != http.StatusOK {
		t.Fatalf("catalog: %d", code)
	}
	if len(cat.Activities) != 3 || len(cat.Letters) == 0 || len(cat.Words) == 0 {
		t.Fatalf("unexpected catalog %+v", cat)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/me")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
