package http

import (
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/infra/memory"
	"coptic-quiz-service/internal/round"
)

const testAdmin = "admin@example.org"

type testServer struct {
	*httptest.Server
	profiles *app.ProfileService
	orgs     *app.OrganizationService
}

// newTestServer wires memory stores behind the full mux. An empty secret
// means identities come from query parameters.
func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	db := memory.NewDB()
	users := memory.NewProfileStore(db)
	profiles := app.NewProfileService(users, memory.NewHistoryStore(db))
	orgs := app.NewOrganizationService(memory.NewOrganizationStore(db), users, profiles, app.NewPolicy([]string{testAdmin}))
	generator := round.NewGenerator(catalog.Default(), rand.New(rand.NewPCG(3, 5)))
	activity := app.NewActivityService(memory.NewSessionStore(), generator, profiles)

	auth := NewAuthenticator(secret, "")
	mux := http.NewServeMux()
	NewAPIHandler(auth, profiles, orgs, catalog.Default()).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(auth, profiles, orgs, activity).ServeWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, profiles: profiles, orgs: orgs}
}
