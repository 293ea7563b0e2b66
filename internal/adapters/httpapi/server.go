package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ijara-kitoblar/library-bot/internal/app/authz"
	"github.com/ijara-kitoblar/library-bot/internal/app/notify"
	"github.com/ijara-kitoblar/library-bot/internal/app/registry"
	"github.com/ijara-kitoblar/library-bot/internal/app/subscription"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Server holds the application services the API delegates to.
type Server struct {
	Registry *registry.Service
	Authz    *authz.Service
	Subs     *subscription.Service
	Notifier *notify.Service
}

func NewServer(reg *registry.Service, az *authz.Service, subs *subscription.Service, notifier *notify.Service) *Server {
	return &Server{Registry: reg, Authz: az, Subs: subs, Notifier: notifier}
}

type memberDTO struct {
	ID              string     `json:"id"`
	ExternalAccount *int64     `json:"externalAccount,omitempty"`
	GivenName       string     `json:"givenName"`
	FamilyName      string     `json:"familyName"`
	Phone           string     `json:"phone"`
	BirthYear       int        `json:"birthYear"`
	Affiliation     string     `json:"affiliation"`
	Plan            string     `json:"plan"`
	PlanExpiry      *time.Time `json:"planExpiry,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toMemberDTO(m domain.Member) memberDTO {
	dto := memberDTO{
		ID:          string(m.ID),
		GivenName:   m.GivenName,
		FamilyName:  m.FamilyName,
		Phone:       m.Phone,
		BirthYear:   m.BirthYear,
		Affiliation: m.Affiliation,
		Plan:        string(m.Plan),
		PlanExpiry:  m.PlanExpiry,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ExternalAccount != nil {
		v := int64(*m.ExternalAccount)
		dto.ExternalAccount = &v
	}
	return dto
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Registry.Statistics(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	ac, err := s.Authz.Count(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": map[string]any{
			"total":      st.Total,
			"free":       st.Free,
			"money":      st.Money,
			"premium":    st.Premium,
			"linked":     st.Linked,
			"averageAge": st.AverageAge,
		},
		"admins": map[string]any{
			"total":   ac.Total,
			"super":   ac.Super,
			"regular": ac.Regular,
		},
	})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	var (
		ms  []domain.Member
		err error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		ms, err = s.Registry.Search(r.Context(), q)
	} else {
		includeInactive := r.URL.Query().Get("includeInactive") == "true"
		ms, err = s.Registry.List(r.Context(), includeInactive)
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]memberDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMemberDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type registerBody struct {
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
	Phone       string `json:"phone"`
	BirthYear   int    `json:"birthYear"`
	Affiliation string `json:"affiliation"`
}

// handleRegisterMember covers front-desk registration: no messaging account
// is attached, the member links one later through the bot.
func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", "invalid JSON body", nil)
		return
	}
	m, err := s.Registry.Register(r.Context(), registry.RegisterInput{
		GivenName:   body.GivenName,
		FamilyName:  body.FamilyName,
		Phone:       body.Phone,
		BirthYear:   body.BirthYear,
		Affiliation: body.Affiliation,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.Registry.LookupByMemberID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// handlePatchMember applies a partial profile correction. Absent fields are
// untouched; explicit nulls are rejected since all profile data is mandatory.
func (s *Server) handlePatchMember(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", "invalid JSON body", nil)
		return
	}

	var patch registry.ProfilePatch
	if err := patchString(raw, "givenName", &patch.GivenName); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", err.Error(), nil)
		return
	}
	if err := patchString(raw, "familyName", &patch.FamilyName); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", err.Error(), nil)
		return
	}
	if err := patchString(raw, "phone", &patch.Phone); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", err.Error(), nil)
		return
	}
	if err := patchInt(raw, "birthYear", &patch.BirthYear); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", err.Error(), nil)
		return
	}
	if err := patchString(raw, "affiliation", &patch.Affiliation); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", err.Error(), nil)
		return
	}

	m, err := s.Registry.UpdateProfile(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

func (s *Server) handleActivateMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.Registry.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

func (s *Server) handleDeactivateMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.Registry.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

type setPlanBody struct {
	Plan         string `json:"plan"`
	DurationDays int    `json:"durationDays"`
}

// handleSetPlan is the dashboard counterpart of the bot's /approve command.
func (s *Server) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	var body setPlanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "MALFORMED_BODY", "invalid JSON body", nil)
		return
	}
	m, err := s.Subs.SetPlan(r.Context(), chi.URLParam(r, "id"), body.Plan, body.DurationDays)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	notifyBody := fmt.Sprintf("Your %s subscription is active", m.Plan)
	if m.PlanExpiry != nil {
		notifyBody += fmt.Sprintf(" until %s", m.PlanExpiry.Format("2006-01-02"))
	}
	notifyBody += ". Enjoy!"
	notified, _ := s.Notifier.Notify(r.Context(), m, domain.NotificationApproved, notifyBody)

	writeJSON(w, http.StatusOK, map[string]any{
		"member":   toMemberDTO(m),
		"notified": notified,
	})
}

func (s *Server) handleMemberNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be 1..200", nil)
			return
		}
		limit = n
	}
	recs, err := s.Notifier.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	type notifDTO struct {
		ID     string    `json:"id"`
		Kind   string    `json:"kind"`
		Body   string    `json:"body"`
		SentAt time.Time `json:"sentAt"`
	}
	out := make([]notifDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, notifDTO{
			ID:     rec.ID,
			Kind:   string(rec.Kind),
			Body:   rec.Body,
			SentAt: rec.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	as, err := s.Authz.ListAdmins(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	type adminDTO struct {
		MemberID    string    `json:"memberId"`
		DisplayName string    `json:"displayName"`
		IsSuper     bool      `json:"isSuper"`
		AddedAt     time.Time `json:"addedAt"`
	}
	out := make([]adminDTO, 0, len(as))
	for _, a := range as {
		out = append(out, adminDTO{
			MemberID:    string(a.MemberID),
			DisplayName: a.DisplayName,
			IsSuper:     a.IsSuper,
			AddedAt:     a.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": out})
}

func patchString(raw map[string]json.RawMessage, key string, dst *registry.Optional[string]) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if string(v) == "null" {
		*dst = registry.Null[string]()
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return fmt.Errorf("%s must be a string", key)
	}
	*dst = registry.Some(s)
	return nil
}

func patchInt(raw map[string]json.RawMessage, key string, dst *registry.Optional[int]) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if string(v) == "null" {
		*dst = registry.Null[int]()
		return nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return fmt.Errorf("%s must be an integer", key)
	}
	*dst = registry.Some(n)
	return nil
}
