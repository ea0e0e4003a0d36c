package enrollment_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/email"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
	"github.com/dmitrymomot/sobernest/svc/enrollment"
)

const token = "enroll-secret"

type nopSender struct{}

func (nopSender) SendEmail(context.Context, email.SendEmailParams) (string, error) {
	return uuid.NewString(), nil
}

type setup struct {
	router http.Handler
	store  *workflow.MemoryStore
	user   user.User
}

func newSetup(t *testing.T) *setup {
	t.Helper()

	s := &setup{
		store: workflow.NewMemoryStore(),
		user:  user.User{ID: uuid.New(), Email: "tenant@example.com", Role: user.RoleTenant},
	}
	for _, trigger := range []workflow.Trigger{workflow.TriggerUserSignup, workflow.TriggerProviderSignup, workflow.TriggerApplicationSubmitted} {
		require.NoError(t, s.store.SaveWorkflow(context.Background(), workflow.Workflow{
			ID:      uuid.New(),
			Name:    string(trigger),
			Trigger: trigger,
			Active:  true,
			Steps:   []workflow.Step{{Subject: "Welcome", BodyHTML: "<p>Hi</p>", Active: true}},
		}))
	}

	users := user.NewMemoryStore(s.user)
	discard := slog.New(slog.DiscardHandler)
	engine := workflow.NewEngine(s.store, users, nopSender{}, workflow.WithLogger(discard))

	r := chi.NewRouter()
	enrollment.NewHandler(engine, users, token, discard).Mount(r)
	s.router = r
	return s
}

func (s *setup) post(body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, enrollment.Path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_EnrollsExternalTriggers(t *testing.T) {
	t.Parallel()

	for _, trigger := range []workflow.Trigger{workflow.TriggerUserSignup, workflow.TriggerProviderSignup, workflow.TriggerApplicationSubmitted} {
		t.Run(string(trigger), func(t *testing.T) {
			t.Parallel()
			s := newSetup(t)

			rec := s.post(`{"user_id":"`+s.user.ID.String()+`","trigger":"`+string(trigger)+`"}`, token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"enrolled":1}`, rec.Body.String())
			assert.Len(t, s.store.Enrollments(s.user.ID), 1)

			// Already enrolled.
			rec = s.post(`{"user_id":"`+s.user.ID.String()+`","trigger":"`+string(trigger)+`"}`, token)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"enrolled":0}`, rec.Body.String())
		})
	}
}

func TestHandler_Rejections(t *testing.T) {
	t.Parallel()

	s := newSetup(t)
	known := s.user.ID.String()

	tests := []struct {
		name string
		body string
		auth string
		want int
	}{
		{"missing token", `{"user_id":"` + known + `","trigger":"user_signup"}`, "", http.StatusUnauthorized},
		{"wrong token", `{"user_id":"` + known + `","trigger":"user_signup"}`, "nope", http.StatusUnauthorized},
		{"malformed body", `{`, token, http.StatusBadRequest},
		{"billing trigger", `{"user_id":"` + known + `","trigger":"subscription_started"}`, token, http.StatusBadRequest},
		{"unknown trigger", `{"user_id":"` + known + `","trigger":"birthday"}`, token, http.StatusBadRequest},
		{"missing user", `{"trigger":"user_signup"}`, token, http.StatusBadRequest},
		{"unknown user", `{"user_id":"` + uuid.NewString() + `","trigger":"user_signup"}`, token, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.post(tt.body, tt.auth).Code)
		})
	}
	assert.Empty(t, s.store.Enrollments(s.user.ID))
}

func TestNewHandler_RequiresToken(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		enrollment.NewHandler(workflow.NewEngine(workflow.NewMemoryStore(), user.NewMemoryStore(), nopSender{}), user.NewMemoryStore(), "", nil)
	})
}
