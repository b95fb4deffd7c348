package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dietlog/config"
	"dietlog/controllers"
	"dietlog/middlewares"
	"dietlog/services"
	"dietlog/utils"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const cookieName = "userSession"

type testApp struct {
	router *gin.Engine
	signer *utils.SessionSigner
	hub    *services.RealtimeHub
}

func newTestApp(t *testing.T, limiter *middlewares.RateLimiter) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	signer := utils.NewSessionSigner("test-secret", 7*24*time.Hour)
	cookies := middlewares.NewSessionCookies(signer, cookieName, false)
	store := services.NewMealStore(db)
	hub := services.NewRealtimeHub()

	r := SetupRouter(Deps{
		Meals: controllers.NewMealController(
			services.NewMealService(store, hub),
			services.NewSummaryService(store),
			cookies,
			log,
		),
		Realtime: controllers.NewRealtimeController(hub),
		Cookies:  cookies,
		Limiter:  limiter,
		Log:      log,
	})
	return &testApp{router: r, signer: signer, hub: hub}
}

func (a *testApp) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

type mealJSON struct {
	ID           string  `json:"id"`
	OwnerSession string  `json:"owner_session"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	OccurredAt   string  `json:"occurred_at"`
	InDiet       bool    `json:"in_diet"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// createMeal posts a meal and returns it with the cookie to use from then on.
func (a *testApp) createMeal(t *testing.T, cookie *http.Cookie, body map[string]any) (mealJSON, *http.Cookie) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/meals", body, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var meal mealJSON
	decodeData(t, rec, &meal)
	if c := sessionCookie(rec); c != nil {
		cookie = c
	}
	return meal, cookie
}

func TestCreateMeal_SetsSessionCookie(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(t, http.MethodPost, "/meals", map[string]any{"name": "Breakfast", "in_diet": true}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)

	session, err := app.signer.Parse(cookie.Value)
	require.NoError(t, err)

	var meal mealJSON
	decodeData(t, rec, &meal)
	assert.NotEmpty(t, meal.ID)
	assert.Equal(t, session, meal.OwnerSession)
	assert.Nil(t, meal.Description)
}

func TestCreateMeal_ReusesPresentedSession(t *testing.T) {
	app := newTestApp(t, nil)
	first, cookie := app.createMeal(t, nil, map[string]any{"name": "Breakfast", "in_diet": true})

	rec := app.do(t, http.MethodPost, "/meals", map[string]any{"name": "Lunch", "in_diet": true}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	var second mealJSON
	decodeData(t, rec, &second)
	assert.Equal(t, first.OwnerSession, second.OwnerSession)
}

func TestCreateMeal_IgnoresOwnerInBody(t *testing.T) {
	app := newTestApp(t, nil)

	meal, cookie := app.createMeal(t, nil, map[string]any{
		"name":          "Breakfast",
		"in_diet":       true,
		"owner_session": "hijacked",
		"id":            "chosen-id",
	})

	session, err := app.signer.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, session, meal.OwnerSession)
	assert.NotEqual(t, "chosen-id", meal.ID)
}

func TestCreateMeal_WithAllFields(t *testing.T) {
	app := newTestApp(t, nil)

	meal, _ := app.createMeal(t, nil, map[string]any{
		"name":        "Breakfast",
		"description": "Coffee and bread",
		"occurred_at": "2023-08-15T12:12:00.000Z",
		"in_diet":     true,
	})

	assert.Equal(t, "Breakfast", meal.Name)
	require.NotNil(t, meal.Description)
	assert.Equal(t, "Coffee and bread", *meal.Description)
	assert.True(t, meal.InDiet)
	occurred, err := time.Parse(time.RFC3339Nano, meal.OccurredAt)
	require.NoError(t, err)
	assert.True(t, occurred.Equal(time.Date(2023, 8, 15, 12, 12, 0, 0, time.UTC)))
}

func TestCreateMeal_Rejects(t *testing.T) {
	app := newTestApp(t, nil)

	for name, body := range map[string]any{
		"missing name":    map[string]any{"in_diet": true},
		"missing in_diet": map[string]any{"name": "Lunch"},
		"bad timestamp":   map[string]any{"name": "Lunch", "in_diet": true, "occurred_at": "noon"},
		"malformed json":  `{"name":`,
		"wrong type":      map[string]any{"name": "Lunch", "in_diet": "yes"},
	} {
		rec := app.do(t, http.MethodPost, "/meals", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Nil(t, sessionCookie(rec), name)
	}
}

func TestCreateMeal_TamperedCookieGetsFreshSession(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(t, http.MethodPost, "/meals", map[string]any{"name": "Lunch", "in_diet": true},
		&http.Cookie{Name: cookieName, Value: "not-a-jwt"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, sessionCookie(rec))
}

func TestSessionRequired(t *testing.T) {
	app := newTestApp(t, nil)
	meal, _ := app.createMeal(t, nil, map[string]any{"name": "Lunch", "in_diet": true})

	forged := &http.Cookie{Name: cookieName, Value: "forged"}
	for _, cookie := range []*http.Cookie{nil, forged} {
		for _, req := range []struct{ method, path string }{
			{http.MethodGet, "/meals"},
			{http.MethodGet, "/meals/summary"},
			{http.MethodGet, "/meals/" + meal.ID},
			{http.MethodPut, "/meals/" + meal.ID},
			{http.MethodDelete, "/meals/" + meal.ID},
		} {
			rec := app.do(t, req.method, req.path, map[string]any{"name": "x"}, cookie)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", req.method, req.path)
			assert.JSONEq(t, `{"error":"Unauthorized."}`, rec.Body.String())
		}
	}
}

func TestGetMeal(t *testing.T) {
	app := newTestApp(t, nil)
	created, cookie := app.createMeal(t, nil, map[string]any{"name": "Breakfast", "description": "Eggs", "in_diet": true})
	_, otherCookie := app.createMeal(t, nil, map[string]any{"name": "Burger", "in_diet": false})

	rec := app.do(t, http.MethodGet, "/meals/"+created.ID, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var got mealJSON
	decodeData(t, rec, &got)
	assert.Equal(t, created, got)

	rec = app.do(t, http.MethodGet, "/meals/"+created.ID, nil, otherCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Breakfast")

	rec = app.do(t, http.MethodGet, "/meals/does-not-exist", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMeal(t *testing.T) {
	app := newTestApp(t, nil)
	created, cookie := app.createMeal(t, nil, map[string]any{
		"name":        "Breakfesta",
		"description": "Coffee",
		"in_diet":     true,
	})

	rec := app.do(t, http.MethodPut, "/meals/"+created.ID, map[string]any{
		"name":          "Breakfast",
		"description":   "Bread, egg and coffee",
		"owner_session": "hijacked",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated mealJSON
	decodeData(t, rec, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.OwnerSession, updated.OwnerSession)
	assert.Equal(t, "Breakfast", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "Bread, egg and coffee", *updated.Description)
	assert.True(t, updated.InDiet)
	assert.Equal(t, created.OccurredAt, updated.OccurredAt)

	rec = app.do(t, http.MethodPatch, "/meals/"+created.ID, map[string]any{"in_diet": false}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &updated)
	assert.False(t, updated.InDiet)
	assert.Equal(t, "Breakfast", updated.Name)

	rec = app.do(t, http.MethodPut, "/meals/"+created.ID, map[string]any{"name": ""}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPut, "/meals/missing", map[string]any{"name": "x"}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMeal_OtherSession(t *testing.T) {
	app := newTestApp(t, nil)
	created, _ := app.createMeal(t, nil, map[string]any{"name": "Lunch", "in_diet": true})
	_, other := app.createMeal(t, nil, map[string]any{"name": "Dinner", "in_diet": true})

	rec := app.do(t, http.MethodPut, "/meals/"+created.ID, map[string]any{"name": "Mine now"}, other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteMeal(t *testing.T) {
	app := newTestApp(t, nil)
	created, cookie := app.createMeal(t, nil, map[string]any{"name": "Breakfast", "in_diet": true})
	_, other := app.createMeal(t, nil, map[string]any{"name": "Hamburger", "in_diet": false})

	rec := app.do(t, http.MethodDelete, "/meals/"+created.ID, nil, other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodDelete, "/meals/"+created.ID, nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	for _, c := range []*http.Cookie{cookie, other} {
		rec = app.do(t, http.MethodGet, "/meals/"+created.ID, nil, c)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestListMeals(t *testing.T) {
	app := newTestApp(t, nil)
	_, cookie := app.createMeal(t, nil, map[string]any{
		"name":        "Breakfast",
		"description": "2 boiled eggs",
		"occurred_at": "2023-08-15T08:00:00Z",
		"in_diet":     true,
	})
	app.createMeal(t, cookie, map[string]any{
		"name":        "Lunch",
		"description": "rice, beans and salad",
		"occurred_at": "2023-08-15T12:00:00Z",
		"in_diet":     true,
	})
	app.createMeal(t, nil, map[string]any{"name": "Someone else's", "in_diet": false})

	rec := app.do(t, http.MethodGet, "/meals", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var meals []mealJSON
	decodeData(t, rec, &meals)
	require.Len(t, meals, 2)
	assert.Equal(t, "Lunch", meals[0].Name)
	assert.Equal(t, "Breakfast", meals[1].Name)
}

func TestSummary(t *testing.T) {
	app := newTestApp(t, nil)

	// most recent first: in, in, out, in
	var cookie *http.Cookie
	for _, m := range []map[string]any{
		{"name": "Breakfast", "in_diet": true, "occurred_at": "2023-08-15T08:00:00Z"},
		{"name": "Acai", "in_diet": false, "occurred_at": "2023-08-15T10:00:00Z"},
		{"name": "Lunch", "in_diet": true, "occurred_at": "2023-08-15T12:00:00Z"},
		{"name": "Dinner", "in_diet": true, "occurred_at": "2023-08-15T19:00:00Z"},
	} {
		_, cookie = app.createMeal(t, cookie, m)
	}

	rec := app.do(t, http.MethodGet, "/meals/summary", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"data":{"total_meals":4,"in_diet_count":3,"out_diet_count":1,"best_in_diet_streak":2}}`,
		rec.Body.String())
}

func TestSummary_NoMeals(t *testing.T) {
	app := newTestApp(t, nil)
	signed, err := app.signer.Sign(utils.NewSessionToken())
	require.NoError(t, err)

	rec := app.do(t, http.MethodGet, "/meals/summary", nil, &http.Cookie{Name: cookieName, Value: signed})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"data":{"total_meals":0,"in_diet_count":0,"out_diet_count":0,"best_in_diet_streak":0}}`,
		rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	app := newTestApp(t, middlewares.NewRateLimiter(0.001, 1, log))

	rec := app.do(t, http.MethodPost, "/meals", map[string]any{"name": "Lunch", "in_diet": true}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodPost, "/meals", map[string]any{"name": "Lunch", "in_diet": true}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	app.createMeal(t, nil, map[string]any{"name": "Lunch", "in_diet": true})
	rec = app.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dietlog_meals_operations_total{operation="create",outcome="ok"}`)
}

func TestMealEventsStream(t *testing.T) {
	app := newTestApp(t, nil)
	_, cookie := app.createMeal(t, nil, map[string]any{"name": "Breakfast", "in_diet": true})
	session, err := app.signer.Parse(cookie.Value)
	require.NoError(t, err)

	srv := httptest.NewServer(app.router)
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Add("Cookie", cookie.String())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/meals/events", header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return app.hub.Subscribers(session) == 1 }, time.Second, 10*time.Millisecond)

	created, _ := app.createMeal(t, cookie, map[string]any{"name": "Lunch", "in_diet": true})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var event struct {
		Kind string   `json:"kind"`
		Data mealJSON `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "meal.created", event.Kind)
	assert.Equal(t, created.ID, event.Data.ID)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/meals/events", nil)
	assert.Error(t, err)
}
