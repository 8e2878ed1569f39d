package http

import (
	"context"
	"net/http"
	"strconv"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/domain"
)

// APIHandler serves the JSON API for profiles, organizations, leaderboards
// and the catalog.
type APIHandler struct {
	auth     *Authenticator
	profiles *app.ProfileService
	orgs     *app.OrganizationService
	catalog  *catalog.Catalog
}

func NewAPIHandler(auth *Authenticator, profiles *app.ProfileService, orgs *app.OrganizationService, cat *catalog.Catalog) *APIHandler {
	return &APIHandler{auth: auth, profiles: profiles, orgs: orgs, catalog: cat}
}

// Register adds the API routes to mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/me", h.getMe)
	mux.HandleFunc("GET /api/me/history", h.getHistory)
	mux.HandleFunc("PUT /api/me/organization", h.chooseOrganization)
	mux.HandleFunc("GET /api/leaderboard", h.getLeaderboard)
	mux.HandleFunc("GET /api/organizations", h.listOrganizations)
	mux.HandleFunc("POST /api/organizations", h.createOrganization)
	mux.HandleFunc("PATCH /api/organizations/{id}", h.updateOrganization)
	mux.HandleFunc("DELETE /api/organizations/{id}", h.deleteOrganization)
	mux.HandleFunc("GET /api/users", h.listUsers)
	mux.HandleFunc("PUT /api/users/{id}/organization", h.assignOrganization)
	mux.HandleFunc("PUT /api/users/{id}/admin-scope", h.setAdminScope)
	mux.HandleFunc("GET /api/catalog", h.getCatalog)
}

// caller resolves the request identity and makes sure a profile exists.
func (h *APIHandler) caller(ctx context.Context, r *http.Request) (domain.UserProfile, error) {
	identity, err := h.auth.Identify(r)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return h.profiles.EnsureProfile(ctx, identity)
}

func (h *APIHandler) getMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *APIHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.profiles.History(r.Context(), me.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type organizationChoice struct {
	OrganizationID string `json:"organizationId"`
}

func (h *APIHandler) chooseOrganization(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body organizationChoice
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.orgs.ChooseOrganization(r.Context(), me.ID, body.OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, err := h.caller(r.Context(), r); err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, domain.NewValidationError("invalid query",
				domain.FieldError{Field: "limit", Error: "must be a positive integer"}))
			return
		}
		limit = n
	}
	lb, err := h.orgs.ListLeaderboard(r.Context(), domain.OrganizationScope(r.URL.Query().Get("organizationId")))
	if err != nil {
		writeError(w, err)
		return
	}
	if limit > 0 && len(lb.Entries) > limit {
		lb.Entries = lb.Entries[:limit]
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var orgs []domain.Organization
	if r.URL.Query().Get("managed") == "true" {
		orgs, err = h.orgs.ManagedOrganizations(r.Context(), domain.ActorFromProfile(me))
	} else {
		orgs, err = h.orgs.ListOrganizations(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

type organizationBody struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *APIHandler) createOrganization(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body organizationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	org, err := h.orgs.CreateOrganization(r.Context(), domain.ActorFromProfile(me), deref(body.Name), deref(body.Description))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// updateOrganization keeps fields absent from the body.
func (h *APIHandler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body organizationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	actor := domain.ActorFromProfile(me)
	name, description := deref(body.Name), deref(body.Description)
	if body.Name == nil || body.Description == nil {
		current, err := h.orgs.Organization(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if body.Name == nil {
			name = current.Name
		}
		if body.Description == nil {
			description = current.Description
		}
	}
	org, err := h.orgs.UpdateOrganization(r.Context(), actor, id, name, description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *APIHandler) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orgs.DeleteOrganization(r.Context(), domain.ActorFromProfile(me), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	scope := domain.OrganizationScope(r.URL.Query().Get("organizationId"))
	users, err := h.orgs.ListMembers(r.Context(), domain.ActorFromProfile(me), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) assignOrganization(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body organizationChoice
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.orgs.AssignMember(r.Context(), domain.ActorFromProfile(me), r.PathValue("id"), body.OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// setAdminScope grants org-admin scope; an empty organizationId revokes it.
func (h *APIHandler) setAdminScope(w http.ResponseWriter, r *http.Request) {
	me, err := h.caller(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body organizationChoice
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.orgs.SetOrgAdmin(r.Context(), domain.ActorFromProfile(me), r.PathValue("id"), body.OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type catalogPayload struct {
	Activities []domain.ActivityKind `json:"activities"`
	Letters    []domain.Letter       `json:"letters"`
	Words      []domain.Word         `json:"words"`
}

func (h *APIHandler) getCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogPayload{
		Activities: domain.Activities,
		Letters:    h.catalog.Letters(),
		Words:      h.catalog.Words(),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
