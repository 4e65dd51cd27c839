package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servio/internal/config"
	"servio/internal/database"
	"servio/internal/domain"
	"servio/internal/middleware"
	"servio/internal/modules/appointments"
	"servio/internal/modules/auth"
	"servio/internal/modules/availability"
	"servio/internal/modules/feed"
	jwtsvc "servio/internal/pkg/jwt"
	"servio/internal/repository"
	"servio/internal/schedule"
)

type testSuite struct {
	router   *gin.Engine
	db       *gorm.DB
	listings *repository.ListingRepository
	appts    *repository.AppointmentRepository
}

type apiResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   *errorDetail   `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func setupSuite(t *testing.T) *testSuite {
	log := zap.NewNop()

	db, err := database.Connect(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: ":memory:",
	}, log)
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, repository.Migrate(db), "Failed to migrate")

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	listingRepo := repository.NewListingRepository(db)
	ruleRepo := repository.NewAvailabilityRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	apptRepo := repository.NewAppointmentRepository(db)
	exceptionRepo := repository.NewRecurrenceExceptionRepository(db)

	jwtService := jwtsvc.New("test_secret_key_32_characters_min", 24*time.Hour)
	clock := schedule.SystemClock()

	hub := feed.NewHub()
	notifier := feed.NewNotifier(hub, log)

	expander := schedule.NewExpander(log, clock)
	overlay := schedule.NewPendingOverlay(schedule.DefaultOverlayTTL, clock)

	authService := auth.NewService(userRepo, tokenRepo, jwtService, "test-pepper", 24*time.Hour)
	authHandler := auth.NewHandler(authService)

	apptService := appointments.NewService(apptRepo, exceptionRepo, listingRepo, userRepo, notifier, expander, clock, log)
	apptHandler := appointments.NewHandler(apptService)

	availService := availability.NewService(slotRepo, ruleRepo, listingRepo, apptRepo, exceptionRepo, notifier, overlay, clock, log)
	availHandler := availability.NewHandler(availService)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	authHandler.RegisterPublicRoutes(v1)

	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(jwtService))
	{
		authHandler.RegisterProtectedRoutes(protected)
		apptHandler.RegisterRoutes(protected)
		availHandler.RegisterRoutes(protected)
	}

	return &testSuite{router: r, db: db, listings: listingRepo, appts: apptRepo}
}

func (s *testSuite) request(t *testing.T, method, path string, body any, token string) *apiResponse {
	t.Helper()
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(buf))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "status=%d body=%s", w.Code, w.Body.String())
	return &resp
}

func (s *testSuite) registerAndLogin(t *testing.T, email, role string) (int64, string) {
	t.Helper()
	resp := s.request(t, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"name":     "Test " + role,
		"email":    email,
		"password": "secret123",
		"role":     role,
	}, "")
	require.True(t, resp.Success, "register failed: %+v", resp.Error)

	resp = s.request(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": "secret123",
	}, "")
	require.True(t, resp.Success, "login failed: %+v", resp.Error)

	user := resp.Data["user"].(map[string]any)
	return int64(user["id"].(float64)), resp.Data["access_token"].(string)
}

func (s *testSuite) createListing(t *testing.T, providerID int64, title string, minutes int) int64 {
	t.Helper()
	l := &domain.Listing{
		ProviderID:      providerID,
		Title:           title,
		DurationMinutes: minutes,
		PricePerVisit:   50,
		IsActive:        true,
		WeeklyTemplate:  mustJSON(t, domain.DefaultWeeklyTemplate()),
	}
	require.NoError(t, s.listings.Create(context.Background(), l))
	return l.ID
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// nextWeekdayAfter returns midnight UTC of the next such weekday strictly
// after the given day.
func nextWeekdayAfter(after time.Time, day time.Weekday) time.Time {
	d := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func TestRecurringBookingFlow(t *testing.T) {
	suite := setupSuite(t)

	providerID, providerToken := suite.registerAndLogin(t, "maria@test.com", "provider")
	clientID, clientToken := suite.registerAndLogin(t, "dana@test.com", "client")

	for day := 1; day <= 5; day++ {
		resp := suite.request(t, http.MethodPost, "/api/v1/availability/rules", map[string]any{
			"day_of_week": day,
			"start_time":  "09:00",
			"end_time":    "17:00",
		}, providerToken)
		require.True(t, resp.Success, "save rule failed: %+v", resp.Error)
	}

	listingID := suite.createListing(t, providerID, "Home cleaning", 120)

	// Client books a weekly Tuesday visit.
	anchor := nextWeekdayAfter(time.Now().UTC(), time.Tuesday)
	start := anchor.Add(10 * time.Hour)

	resp := suite.request(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"provider_id":     providerID,
		"client_id":       clientID,
		"listing_id":      listingID,
		"start_time":      start.Format(time.RFC3339),
		"end_time":        start.Add(time.Hour).Format(time.RFC3339),
		"recurrence_type": "weekly",
	}, clientToken)
	require.True(t, resp.Success, "create appointment failed: %+v", resp.Error)
	appt := resp.Data["appointment"].(map[string]any)
	ruleID := int64(appt["id"].(float64))
	assert.Equal(t, "pending", appt["status"])

	// The base row is represented by its expansion, so the whole calendar
	// is virtual at this point.
	calendarPath := fmt.Sprintf("/api/v1/calendar?from=%s&to=%s",
		anchor.Format("2006-01-02"),
		anchor.AddDate(0, 0, 28).Format("2006-01-02"))
	resp = suite.request(t, http.MethodGet, calendarPath, nil, clientToken)
	require.True(t, resp.Success, "calendar failed: %+v", resp.Error)
	instances := resp.Data["appointments"].([]any)
	require.GreaterOrEqual(t, len(instances), 4)
	for _, raw := range instances {
		inst := raw.(map[string]any)
		assert.Equal(t, "virtual_instance", inst["source_type"])
	}

	// Materializing one occurrence as a real row replaces its virtual twin
	// without changing the calendar's length.
	matStart := anchor.AddDate(0, 0, 21).Add(10 * time.Hour)
	ruleRef := ruleID
	materialized := &domain.Appointment{
		ProviderID:          providerID,
		ClientID:            clientID,
		ListingID:           listingID,
		StartTime:           matStart,
		EndTime:             matStart.Add(time.Hour),
		Status:              domain.AppointmentConfirmed,
		RecurrenceType:      domain.RecurrenceWeekly,
		IsRecurringInstance: true,
		RuleID:              &ruleRef,
		AnchorStartDate:     anchor,
	}
	require.NoError(t, suite.appts.Create(context.Background(), materialized))

	resp = suite.request(t, http.MethodGet, calendarPath, nil, clientToken)
	require.True(t, resp.Success)
	merged := resp.Data["appointments"].([]any)
	assert.Len(t, merged, len(instances))

	realSeen := false
	for _, raw := range merged {
		inst := raw.(map[string]any)
		if inst["start_time"].(string) == matStart.Format(time.RFC3339) {
			realSeen = true
			assert.Equal(t, "appointment", inst["source_type"])
			assert.Equal(t, float64(materialized.ID), inst["appointment_id"])
		}
	}
	assert.True(t, realSeen, "materialized occurrence should win over its virtual twin")
	instances = merged

	// Cancelling one occurrence removes exactly that one.
	skipDate := anchor.AddDate(0, 0, 7)
	resp = suite.request(t, http.MethodPost, fmt.Sprintf("/api/v1/recurring/%d/occurrences/cancel", ruleID), map[string]any{
		"date": skipDate.Format("2006-01-02"),
	}, clientToken)
	require.True(t, resp.Success, "cancel occurrence failed: %+v", resp.Error)

	resp = suite.request(t, http.MethodGet, calendarPath, nil, clientToken)
	require.True(t, resp.Success)
	after := resp.Data["appointments"].([]any)
	assert.Equal(t, len(instances)-1, len(after))
	for _, raw := range after {
		inst := raw.(map[string]any)
		assert.NotContains(t, inst["start_time"].(string), skipDate.Format("2006-01-02"))
	}

	// Deleting the exception restores the occurrence.
	resp = suite.request(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/recurring/%d/occurrences?date=%s", ruleID, skipDate.Format("2006-01-02")),
		nil, clientToken)
	require.True(t, resp.Success, "restore occurrence failed: %+v", resp.Error)

	resp = suite.request(t, http.MethodGet, calendarPath, nil, clientToken)
	require.True(t, resp.Success)
	assert.Len(t, resp.Data["appointments"].([]any), len(instances))

	// Another recurring request on the series weekday sees the pattern
	// collision on the slot grid.
	dayPath := fmt.Sprintf("/api/v1/providers/%d/slots?listing_id=%d&date=%s&recurrence=weekly",
		providerID, listingID, anchor.AddDate(0, 0, 14).Format("2006-01-02"))
	resp = suite.request(t, http.MethodGet, dayPath, nil, clientToken)
	require.True(t, resp.Success, "day slots failed: %+v", resp.Error)
	slots := resp.Data["slots"].([]any)
	require.NotEmpty(t, slots)

	foundConflict := false
	for _, raw := range slots {
		slot := raw.(map[string]any)
		if reason, ok := slot["conflict_reason"].(string); ok && reason == "recurring_conflict" {
			foundConflict = true
			assert.False(t, slot["is_available"].(bool))
		}
	}
	assert.True(t, foundConflict, "expected a recurring collision on the series weekday")
}

func TestSlotToggleFlow(t *testing.T) {
	suite := setupSuite(t)

	providerID, providerToken := suite.registerAndLogin(t, "pat@test.com", "provider")

	resp := suite.request(t, http.MethodPost, "/api/v1/availability/rules", map[string]any{
		"day_of_week": 3,
		"start_time":  "10:00",
		"end_time":    "12:00",
	}, providerToken)
	require.True(t, resp.Success, "save rule failed: %+v", resp.Error)

	listingID := suite.createListing(t, providerID, "Tutoring", 60)

	wednesday := nextWeekdayAfter(time.Now().UTC(), time.Wednesday)
	dayPath := fmt.Sprintf("/api/v1/providers/%d/slots?listing_id=%d&date=%s",
		providerID, listingID, wednesday.Format("2006-01-02"))

	resp = suite.request(t, http.MethodGet, dayPath, nil, providerToken)
	require.True(t, resp.Success, "day slots failed: %+v", resp.Error)
	slots := resp.Data["slots"].([]any)
	require.Len(t, slots, 4) // 10:00-12:00 on the half-hour grid

	target := slots[0].(map[string]any)
	require.True(t, target["is_available"].(bool))

	resp = suite.request(t, http.MethodPatch, "/api/v1/availability/slots", map[string]any{
		"listing_id": listingID,
		"start_time": target["start_time"],
		"available":  false,
	}, providerToken)
	require.True(t, resp.Success, "toggle failed: %+v", resp.Error)

	resp = suite.request(t, http.MethodGet, dayPath, nil, providerToken)
	require.True(t, resp.Success)
	slots = resp.Data["slots"].([]any)
	toggled := slots[0].(map[string]any)
	assert.False(t, toggled["is_available"].(bool))

	// Deletion is the explicit opposite of ensure: the row goes away, a
	// second delete finds nothing, and the next read re-ensures the grid.
	delPath := fmt.Sprintf("/api/v1/availability/slots?listing_id=%d&start_time=%s",
		listingID, url.QueryEscape(target["start_time"].(string)))
	resp = suite.request(t, http.MethodDelete, delPath, nil, providerToken)
	require.True(t, resp.Success, "delete slot failed: %+v", resp.Error)

	resp = suite.request(t, http.MethodDelete, delPath, nil, providerToken)
	require.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	resp = suite.request(t, http.MethodGet, dayPath, nil, providerToken)
	require.True(t, resp.Success)
	require.Len(t, resp.Data["slots"].([]any), 4)
}

func TestAuthRefreshFlow(t *testing.T) {
	suite := setupSuite(t)

	_, _ = suite.registerAndLogin(t, "kim@test.com", "client")

	resp := suite.request(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email":    "kim@test.com",
		"password": "secret123",
	}, "")
	require.True(t, resp.Success)
	refresh := resp.Data["refresh_token"].(string)

	resp = suite.request(t, http.MethodPost, "/api/v1/auth/refresh", map[string]any{
		"refresh_token": refresh,
	}, "")
	require.True(t, resp.Success, "refresh failed: %+v", resp.Error)
	assert.NotEmpty(t, resp.Data["refresh_token"])

	// Replaying the consumed token is rejected.
	resp = suite.request(t, http.MethodPost, "/api/v1/auth/refresh", map[string]any{
		"refresh_token": refresh,
	}, "")
	require.False(t, resp.Success)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}
