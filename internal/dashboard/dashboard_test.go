package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guildwarden/internal/analytics"
	"guildwarden/internal/guildconfig"
	"guildwarden/internal/kv"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/storage"
)

const (
	testGuild = "111111111111111111"
	testUser  = "222222222222222222"
)

type fakeConfigs struct {
	sections map[string]map[string]any
	updates  []map[string]any
}

func (f *fakeConfigs) GetSection(_ context.Context, _, section string) (map[string]any, error) {
	if section == "bogus" {
		return nil, guildconfig.ErrUnknownSection
	}
	return f.sections[section], nil
}

func (f *fakeConfigs) UpdateSection(_ context.Context, _, section string, partial map[string]any) (map[string]any, error) {
	if _, bad := partial["maxWarnings"]; bad {
		return nil, &guildconfig.ValidationError{Errors: []guildconfig.FieldError{{
			Field:   "moderation.maxWarnings",
			Message: "must be at most 100",
		}}}
	}
	f.updates = append(f.updates, partial)
	return guildconfig.Merge(f.sections[section], partial), nil
}

type fakeSchedules struct {
	created []scheduler.CreateRequest
	list    []storage.ScheduledMessage
}

func (f *fakeSchedules) List(context.Context, string) ([]storage.ScheduledMessage, error) {
	return f.list, nil
}

func (f *fakeSchedules) Create(_ context.Context, req scheduler.CreateRequest) (int64, error) {
	if req.RunAt == nil && req.IntervalMinutes == 0 && req.CronExpression == "" {
		return 0, scheduler.ErrNoSchedule
	}
	f.created = append(f.created, req)
	return int64(len(f.created)), nil
}

func (f *fakeSchedules) Delete(_ context.Context, _ string, id int64) (bool, error) {
	return id == 1, nil
}

type fakeStats struct {
	since time.Time
}

func (f *fakeStats) Report(_ context.Context, _ string, since time.Time) (analytics.Report, error) {
	f.since = since
	return analytics.Report{Since: since, Total: 3, ByAction: map[string]int{"warn": 3}}, nil
}

type harness struct {
	server    *Server
	configs   *fakeConfigs
	schedules *fakeSchedules
	stats     *fakeStats
	cookie    *http.Cookie
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		configs: &fakeConfigs{sections: map[string]map[string]any{
			"automod": {"enabled": true, "capsFilter": map[string]any{"enabled": false, "threshold": 0.7}},
		}},
		schedules: &fakeSchedules{},
		stats:     &fakeStats{},
	}
	h.server = NewServer(h.configs, h.schedules, h.stats, kv.NewMemory(), opts, zap.NewNop())

	session, err := h.server.sessions.Create(context.Background(), testUser, "mod", []string{testGuild})
	require.NoError(t, err)
	h.cookie = &http.Cookie{Name: sessionCookie, Value: session.ID}
	return h
}

func (h *harness) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPIRequiresSession(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(http.MethodGet, "/api/me", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/me", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testUser, decode(t, rec)["userId"])
}

func TestGuildAccessDenied(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(http.MethodGet, "/api/guilds/999999999999999999/config/automod", "", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetConfigSection(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(http.MethodGet, "/api/guilds/"+testGuild+"/config/automod", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["enabled"])

	rec = h.do(http.MethodGet, "/api/guilds/"+testGuild+"/config/welcome", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/guilds/"+testGuild+"/config/bogus", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchConfigSection(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(http.MethodPatch, "/api/guilds/"+testGuild+"/config/automod",
		`{"capsFilter":{"enabled":true}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	caps := body["data"].(map[string]any)["capsFilter"].(map[string]any)
	assert.Equal(t, true, caps["enabled"])
	assert.Equal(t, 0.7, caps["threshold"])
	require.Len(t, h.configs.updates, 1)
}

func TestPatchConfigSectionValidationFailure(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(http.MethodPatch, "/api/guilds/"+testGuild+"/config/moderation", `{"maxWarnings":500}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Validation failed", body["error"])
	details := body["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "moderation.maxWarnings", details[0].(map[string]any)["field"])

	rec = h.do(http.MethodPatch, "/api/guilds/"+testGuild+"/config/moderation", `[1,2]`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.configs.updates)
}

func TestCreateScheduled(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(http.MethodPost, "/api/guilds/"+testGuild+"/scheduled",
		`{"channelId":"333333333333333333","message":"hi","intervalMinutes":30,"guildId":"1","createdBy":"1"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["data"].(map[string]any)["id"])

	require.Len(t, h.schedules.created, 1)
	assert.Equal(t, testGuild, h.schedules.created[0].GuildID)
	assert.Equal(t, testUser, h.schedules.created[0].CreatedBy)

	rec = h.do(http.MethodPost, "/api/guilds/"+testGuild+"/scheduled",
		`{"channelId":"333333333333333333","message":"hi"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteScheduled(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(http.MethodDelete, "/api/guilds/"+testGuild+"/scheduled/1", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodDelete, "/api/guilds/"+testGuild+"/scheduled/42", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, "/api/guilds/"+testGuild+"/scheduled/abc", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScheduledUsesCamelCase(t *testing.T) {
	h := newHarness(t, Options{})
	interval := 15
	h.schedules.list = []storage.ScheduledMessage{{
		ID:              7,
		GuildID:         testGuild,
		ChannelID:       "333333333333333333",
		Message:         "hello",
		IntervalMinutes: &interval,
		Enabled:         true,
	}}

	rec := h.do(http.MethodGet, "/api/guilds/"+testGuild+"/scheduled", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "333333333333333333", out[0]["channelId"])
	assert.Equal(t, float64(15), out[0]["intervalMinutes"])
}

func TestModStatsDays(t *testing.T) {
	h := newHarness(t, Options{})

	before := time.Now()
	rec := h.do(http.MethodGet, "/api/guilds/"+testGuild+"/modstats?days=365", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, before.AddDate(0, 0, -maxStatDays), h.stats.since, time.Minute)

	rec = h.do(http.MethodGet, "/api/guilds/"+testGuild+"/modstats?days=zero", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RequestsPerMinute: 2})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", "", true).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", "", true).Code)
	rec := h.do(http.MethodGet, "/api/me", "", true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestOAuthLoginFlow(t *testing.T) {
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
		case "/users/@me":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"` + testUser + `","username":"mod"}`))
		case "/users/@me/guilds":
			_, _ = w.Write([]byte(`[
				{"id":"` + testGuild + `","name":"A","owner":false,"permissions":"32"},
				{"id":"444444444444444444","name":"B","owner":false,"permissions":"0"},
				{"id":"555555555555555555","name":"C","owner":true,"permissions":"0"}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer discord.Close()

	h := newHarness(t, Options{
		BaseURL:  "http://dash.example",
		APIBase:  discord.URL,
		AuthURL:  discord.URL + "/authorize",
		TokenURL: discord.URL + "/token",
	})

	rec := h.do(http.MethodGet, "/auth/login", "", false)
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	rec = h.do(http.MethodGet, "/auth/callback?state=forged&code=abc", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/auth/callback?state="+state+"&code=abc", "", false)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://dash.example/", rec.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	session, err := h.server.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, testUser, session.UserID)
	assert.ElementsMatch(t, []string{testGuild, "555555555555555555"}, session.Guilds)

	rec = h.do(http.MethodGet, "/auth/callback?state="+state+"&code=abc", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "state must be single use")
}
