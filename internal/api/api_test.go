package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/abuiliazeed/financial-projections/internal/auth"
	"github.com/abuiliazeed/financial-projections/internal/config"
	"github.com/abuiliazeed/financial-projections/internal/lib/jwt"
	"github.com/abuiliazeed/financial-projections/internal/projection"
	"github.com/abuiliazeed/financial-projections/internal/storage/sqlstore"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type APITestSuite struct {
	suite.Suite
	store   *sqlstore.Storage
	clock   *fakeClock
	handler http.Handler
}

func (s *APITestSuite) SetupTest() {
	store, err := sqlstore.New(context.Background(), sqlstore.DriverSQLite, ":memory:")
	require.NoError(s.T(), err)
	s.store = store

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authSvc, err := auth.New(store, logger, auth.WithCost(bcrypt.MinCost))
	require.NoError(s.T(), err)

	s.clock = &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := jwt.New([]byte("test-secret"), jwt.WithClock(s.clock.Now))
	require.NoError(s.T(), err)

	cfg := &config.Config{Env: config.EnvLocal, ApiHost: "localhost", ApiPort: 8080}
	server := New(cfg, logger, store, authSvc, codec, projection.New(store))
	s.handler = server.Handler()
}

func (s *APITestSuite) TearDownTest() {
	s.store.Close()
}

func (s *APITestSuite) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *APITestSuite) decode(rr *httptest.ResponseRecorder, v any) {
	require.NoError(s.T(), json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

// signupAndLogin registers a user and returns its session cookie.
func (s *APITestSuite) signupAndLogin(username, password string) *http.Cookie {
	rr := s.do(http.MethodPost, "/api/auth/signup", AuthRequest{Username: username, Password: password}, nil)
	require.Equal(s.T(), http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(http.MethodPost, "/api/auth/login", AuthRequest{Username: username, Password: password}, nil)
	require.Equal(s.T(), http.StatusOK, rr.Code, rr.Body.String())

	cookie := sessionCookie(rr)
	require.NotNil(s.T(), cookie)
	return cookie
}

func (s *APITestSuite) createType(cookie *http.Cookie, path, name string) int64 {
	rr := s.do(http.MethodPost, path, map[string]string{"name": name}, cookie)
	require.Equal(s.T(), http.StatusCreated, rr.Code, rr.Body.String())

	var et struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	s.decode(rr, &et)
	return et.ID
}

func (s *APITestSuite) TestScenario() {
	cookie := s.signupAndLogin("alice", "secret1")

	rentID := s.createType(cookie, "/api/expense-types", "Rent")
	assert.Equal(s.T(), int64(1), rentID)

	rr := s.do(http.MethodPost, "/api/expenses", map[string]any{
		"year": 2024, "month": 3, "expenseTypeId": rentID, "amount": 1200.50,
	}, cookie)
	require.Equal(s.T(), http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(s.T(),
		`{"id":1,"year":2024,"month":3,"expenseTypeId":1,"amount":1200.50}`,
		rr.Body.String())

	rr = s.do(http.MethodGet, "/api/projections?year=2024", nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code, rr.Body.String())

	var months []struct {
		Month         int     `json:"month"`
		TotalRevenue  float64 `json:"totalRevenue"`
		TotalExpenses float64 `json:"totalExpenses"`
		NetProfit     float64 `json:"netProfit"`
	}
	s.decode(rr, &months)
	require.Len(s.T(), months, 12)
	assert.Equal(s.T(), 3, months[2].Month)
	assert.Equal(s.T(), 1200.50, months[2].TotalExpenses)
	assert.Equal(s.T(), -1200.50, months[2].NetProfit)
	assert.Zero(s.T(), months[0].TotalExpenses)
}

func (s *APITestSuite) TestSignup() {
	rr := s.do(http.MethodPost, "/api/auth/signup", AuthRequest{Username: "alice", Password: "secret1"}, nil)
	require.Equal(s.T(), http.StatusCreated, rr.Code)

	var resp SignupResponse
	s.decode(rr, &resp)
	assert.Equal(s.T(), "User registered successfully", resp.Message)
	assert.Positive(s.T(), resp.UserID)

	rr = s.do(http.MethodPost, "/api/auth/signup", AuthRequest{Username: "alice", Password: "another1"}, nil)
	assert.Equal(s.T(), http.StatusConflict, rr.Code)
	assert.JSONEq(s.T(), `{"error":"Username is already taken"}`, rr.Body.String())
}

func (s *APITestSuite) TestSignupValidation() {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing fields", AuthRequest{}, "Username and password are required"},
		{"short password", AuthRequest{Username: "bob", Password: "12345"}, "Password must be at least 6 characters long"},
		{"short multibyte password", AuthRequest{Username: "carol", Password: "ééé"}, "Password must be at least 6 characters long"},
		{"not json", "{", "Invalid request body"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(http.MethodPost, "/api/auth/signup", tt.body, nil)
			assert.Equal(s.T(), http.StatusBadRequest, rr.Code)

			var resp errorResponse
			s.decode(rr, &resp)
			assert.Equal(s.T(), tt.want, resp.Error)
		})
	}
}

func (s *APITestSuite) TestLoginSetsCookie() {
	rr := s.do(http.MethodPost, "/api/auth/signup", AuthRequest{Username: "alice", Password: "secret1"}, nil)
	require.Equal(s.T(), http.StatusCreated, rr.Code)

	rr = s.do(http.MethodPost, "/api/auth/login", AuthRequest{Username: "alice", Password: "secret1"}, nil)
	require.Equal(s.T(), http.StatusOK, rr.Code)

	var resp LoginResponse
	s.decode(rr, &resp)
	assert.Equal(s.T(), "Login successful", resp.Message)
	assert.Equal(s.T(), "alice", resp.User.Username)

	cookie := sessionCookie(rr)
	require.NotNil(s.T(), cookie)
	assert.True(s.T(), cookie.HttpOnly)
	assert.Equal(s.T(), http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(s.T(), 3600, cookie.MaxAge)
	assert.Equal(s.T(), "/", cookie.Path)
	assert.False(s.T(), cookie.Secure)
}

func (s *APITestSuite) TestLoginFailuresLookTheSame() {
	s.signupAndLogin("alice", "secret1")

	wrong := s.do(http.MethodPost, "/api/auth/login", AuthRequest{Username: "alice", Password: "nope-nope"}, nil)
	unknown := s.do(http.MethodPost, "/api/auth/login", AuthRequest{Username: "mallory", Password: "secret1"}, nil)

	assert.Equal(s.T(), http.StatusUnauthorized, wrong.Code)
	assert.Equal(s.T(), http.StatusUnauthorized, unknown.Code)
	assert.Equal(s.T(), wrong.Body.String(), unknown.Body.String())
	assert.JSONEq(s.T(), `{"error":"Invalid username or password"}`, wrong.Body.String())
	assert.Nil(s.T(), sessionCookie(wrong))
}

func (s *APITestSuite) TestMe() {
	cookie := s.signupAndLogin("alice", "secret1")

	rr := s.do(http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.JSONEq(s.T(), `{"id":1,"username":"alice"}`, rr.Body.String())
}

func (s *APITestSuite) TestGate() {
	cookie := s.signupAndLogin("alice", "secret1")

	s.Run("api without cookie", func() {
		rr := s.do(http.MethodGet, "/api/expense-types", nil, nil)
		assert.Equal(s.T(), http.StatusUnauthorized, rr.Code)
		assert.JSONEq(s.T(), `{"error":"Unauthorized"}`, rr.Body.String())
	})

	s.Run("page without cookie", func() {
		rr := s.do(http.MethodGet, "/dashboard", nil, nil)
		assert.Equal(s.T(), http.StatusFound, rr.Code)
		assert.Equal(s.T(), "/login", rr.Header().Get("Location"))
	})

	s.Run("unknown path is protected", func() {
		rr := s.do(http.MethodGet, "/admin", nil, nil)
		assert.Equal(s.T(), http.StatusFound, rr.Code)

		rr = s.do(http.MethodGet, "/api/nothing-here", nil, nil)
		assert.Equal(s.T(), http.StatusUnauthorized, rr.Code)
	})

	s.Run("public pages", func() {
		for _, path := range []string{"/", "/login", "/signup"} {
			rr := s.do(http.MethodGet, path, nil, nil)
			assert.Equal(s.T(), http.StatusOK, rr.Code, path)
			assert.Contains(s.T(), rr.Header().Get("Content-Type"), "text/html")
		}
	})

	s.Run("public paths are matched exactly", func() {
		rr := s.do(http.MethodGet, "/login/../dashboard-copy", nil, nil)
		assert.NotEqual(s.T(), http.StatusOK, rr.Code)

		rr = s.do(http.MethodGet, "/loginx", nil, nil)
		assert.Equal(s.T(), http.StatusFound, rr.Code)
	})

	s.Run("valid cookie", func() {
		rr := s.do(http.MethodGet, "/dashboard", nil, cookie)
		assert.Equal(s.T(), http.StatusOK, rr.Code)

		rr = s.do(http.MethodGet, "/api/expense-types", nil, cookie)
		assert.Equal(s.T(), http.StatusOK, rr.Code)
		assert.JSONEq(s.T(), `[]`, rr.Body.String())
	})

	s.Run("garbage cookie is cleared", func() {
		rr := s.do(http.MethodGet, "/api/expenses", nil, &http.Cookie{Name: SessionCookieName, Value: "garbage"})
		assert.Equal(s.T(), http.StatusUnauthorized, rr.Code)

		cleared := sessionCookie(rr)
		require.NotNil(s.T(), cleared)
		assert.Empty(s.T(), cleared.Value)
		assert.Negative(s.T(), cleared.MaxAge)
	})

	s.Run("authenticated unknown api path", func() {
		rr := s.do(http.MethodGet, "/api/nothing-here", nil, cookie)
		assert.Equal(s.T(), http.StatusNotFound, rr.Code)
	})
}

func (s *APITestSuite) TestExpiredSession() {
	cookie := s.signupAndLogin("alice", "secret1")

	s.clock.now = s.clock.now.Add(time.Hour)

	rr := s.do(http.MethodGet, "/api/projections?year=2024", nil, cookie)
	assert.Equal(s.T(), http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/dashboard", nil, cookie)
	assert.Equal(s.T(), http.StatusFound, rr.Code)
	assert.Equal(s.T(), "/login", rr.Header().Get("Location"))
}

func (s *APITestSuite) TestLogout() {
	cookie := s.signupAndLogin("alice", "secret1")

	rr := s.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)

	cleared := sessionCookie(rr)
	require.NotNil(s.T(), cleared)
	assert.Empty(s.T(), cleared.Value)
}

func (s *APITestSuite) TestIsolation() {
	alice := s.signupAndLogin("alice", "secret1")
	bob := s.signupAndLogin("bob", "secret2")

	rentID := s.createType(alice, "/api/expense-types", "Rent")
	salaryID := s.createType(alice, "/api/revenue-types", "Salary")
	bobFood := s.createType(bob, "/api/expense-types", "Food")

	rr := s.do(http.MethodPost, "/api/revenues", map[string]any{
		"year": 2024, "month": 1, "revenueTypeId": salaryID, "amount": "5000",
	}, alice)
	require.Equal(s.T(), http.StatusCreated, rr.Code, rr.Body.String())
	var revenue struct {
		ID int64 `json:"id"`
	}
	s.decode(rr, &revenue)

	s.Run("bob cannot see alice's rows", func() {
		rr := s.do(http.MethodGet, "/api/expense-types", nil, bob)
		assert.JSONEq(s.T(), fmt.Sprintf(`[{"id":%d,"name":"Food"}]`, bobFood), rr.Body.String())

		rr = s.do(http.MethodGet, "/api/revenues", nil, bob)
		assert.JSONEq(s.T(), `[]`, rr.Body.String())
	})

	s.Run("bob cannot rename or delete alice's type", func() {
		rr := s.do(http.MethodPut, "/api/expense-types", map[string]any{"id": rentID, "name": "Mine"}, bob)
		assert.Equal(s.T(), http.StatusNotFound, rr.Code)

		rr = s.do(http.MethodDelete, fmt.Sprintf("/api/expense-types?id=%d", rentID), nil, bob)
		assert.Equal(s.T(), http.StatusNotFound, rr.Code)
	})

	s.Run("bob cannot update or delete alice's entry", func() {
		rr := s.do(http.MethodPut, "/api/revenues", map[string]any{
			"id": revenue.ID, "year": 2024, "month": 1, "revenueTypeId": salaryID, "amount": 1,
		}, bob)
		assert.Equal(s.T(), http.StatusNotFound, rr.Code)

		rr = s.do(http.MethodDelete, fmt.Sprintf("/api/revenues?id=%d", revenue.ID), nil, bob)
		assert.Equal(s.T(), http.StatusNotFound, rr.Code)
	})

	s.Run("alice cannot book against bob's type", func() {
		rr := s.do(http.MethodPost, "/api/expenses", map[string]any{
			"year": 2024, "month": 1, "expenseTypeId": bobFood, "amount": 10,
		}, alice)
		assert.Equal(s.T(), http.StatusBadRequest, rr.Code)
		assert.JSONEq(s.T(), `{"error":"Invalid expense type"}`, rr.Body.String())
	})

	s.Run("alice's projection ignores bob", func() {
		rr := s.do(http.MethodPost, "/api/expenses", map[string]any{
			"year": 2024, "month": 1, "expenseTypeId": bobFood, "amount": 99,
		}, bob)
		require.Equal(s.T(), http.StatusCreated, rr.Code)

		rr = s.do(http.MethodGet, "/api/projections?year=2024", nil, alice)
		require.Equal(s.T(), http.StatusOK, rr.Code)
		assert.True(s.T(), strings.HasPrefix(rr.Body.String(),
			`[{"month":1,"totalRevenue":5000.00,"totalExpenses":0.00,"netProfit":5000.00}`), rr.Body.String())
	})
}

func (s *APITestSuite) TestTypeLifecycle() {
	cookie := s.signupAndLogin("alice", "secret1")
	id := s.createType(cookie, "/api/expense-types", "Rent")

	rr := s.do(http.MethodPut, "/api/expense-types", map[string]any{"id": id, "name": "Housing"}, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.JSONEq(s.T(), fmt.Sprintf(`{"id":%d,"name":"Housing"}`, id), rr.Body.String())

	rr = s.do(http.MethodPost, "/api/expenses", map[string]any{
		"year": 2024, "month": 5, "expenseTypeId": id, "amount": 10,
	}, cookie)
	require.Equal(s.T(), http.StatusCreated, rr.Code)
	var entry struct {
		ID int64 `json:"id"`
	}
	s.decode(rr, &entry)

	rr = s.do(http.MethodDelete, fmt.Sprintf("/api/expense-types?id=%d", id), nil, cookie)
	assert.Equal(s.T(), http.StatusConflict, rr.Code)

	rr = s.do(http.MethodDelete, fmt.Sprintf("/api/expenses?id=%d", entry.ID), nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.JSONEq(s.T(), `{"message":"Expense deleted successfully"}`, rr.Body.String())

	rr = s.do(http.MethodDelete, fmt.Sprintf("/api/expense-types?id=%d", id), nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.JSONEq(s.T(), `{"message":"Expense type deleted successfully"}`, rr.Body.String())

	rr = s.do(http.MethodDelete, "/api/expense-types", nil, cookie)
	assert.Equal(s.T(), http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/api/expense-types", map[string]string{"name": "   "}, cookie)
	assert.Equal(s.T(), http.StatusBadRequest, rr.Code)
}

func (s *APITestSuite) TestEntryValidationAndFilters() {
	cookie := s.signupAndLogin("alice", "secret1")
	rent := s.createType(cookie, "/api/expense-types", "Rent")
	food := s.createType(cookie, "/api/expense-types", "Food")

	invalid := []map[string]any{
		{"year": 2024, "month": 13, "expenseTypeId": rent, "amount": 1},
		{"year": 2024, "month": 0, "expenseTypeId": rent, "amount": 1},
		{"year": 2024, "month": 1, "expenseTypeId": rent},
		{"year": 2024, "month": 1, "expenseTypeId": rent, "amount": -5},
		{"year": 2024, "month": 1, "amount": 1},
		{"year": 2024, "month": 1, "expenseTypeId": rent, "amount": "abc"},
		{"year": 2024, "month": 1, "expenseTypeId": rent, "amount": "1000000000001"},
	}
	for i, body := range invalid {
		rr := s.do(http.MethodPost, "/api/expenses", body, cookie)
		assert.Equal(s.T(), http.StatusBadRequest, rr.Code, "case %d: %s", i, rr.Body.String())
	}

	for _, e := range []map[string]any{
		{"year": 2024, "month": 1, "expenseTypeId": rent, "amount": 1000},
		{"year": 2024, "month": 2, "expenseTypeId": food, "amount": "12.345"},
		{"year": 2023, "month": 2, "expenseTypeId": food, "amount": 3},
	} {
		rr := s.do(http.MethodPost, "/api/expenses", e, cookie)
		require.Equal(s.T(), http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := s.do(http.MethodGet, fmt.Sprintf("/api/expenses?year=2024&expenseTypeId=%d", food), nil, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.JSONEq(s.T(), fmt.Sprintf(
		`[{"id":2,"year":2024,"month":2,"amount":12.35,"expenseTypeId":%d,"expenseTypeName":"Food"}]`, food),
		rr.Body.String())

	rr = s.do(http.MethodGet, "/api/expenses?month=2", nil, cookie)
	var listed []entryResponse
	s.decode(rr, &listed)
	assert.Len(s.T(), listed, 2)

	rr = s.do(http.MethodGet, "/api/expenses?year=abc", nil, cookie)
	assert.Equal(s.T(), http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPut, "/api/expenses", map[string]any{
		"id": 1, "year": 2024, "month": 6, "expenseTypeId": food, "amount": 7,
	}, cookie)
	require.Equal(s.T(), http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(s.T(), fmt.Sprintf(
		`{"id":1,"year":2024,"month":6,"expenseTypeId":%d,"amount":7.00}`, food), rr.Body.String())

	rr = s.do(http.MethodGet, "/api/projections", nil, cookie)
	assert.Equal(s.T(), http.StatusBadRequest, rr.Code)
	assert.JSONEq(s.T(), `{"error":"Year is required"}`, rr.Body.String())
}

func (s *APITestSuite) TestResponseHeaders() {
	rr := s.do(http.MethodGet, "/", nil, nil)
	assert.NotEmpty(s.T(), rr.Header().Get("X-Request-ID"))
	assert.Equal(s.T(), "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(s.T(), "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(s.T(), rr.Header().Get("Content-Security-Policy"))
}

func (s *APITestSuite) TestUnsupportedMethodIsJSON() {
	cookie := s.signupAndLogin("alice", "secret1")

	rr := s.do(http.MethodPatch, "/api/expenses", nil, cookie)
	require.Equal(s.T(), http.StatusMethodNotAllowed, rr.Code)
	assert.Contains(s.T(), rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(s.T(), `{"error":"Method not allowed"}`, rr.Body.String())
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestSecureCookieInProd(t *testing.T) {
	codec, err := jwt.New([]byte("secret"))
	require.NoError(t, err)

	server := &APIServer{config: &config.Config{Env: config.EnvProd}, tokens: codec}
	rr := httptest.NewRecorder()
	server.setSessionCookie(rr, "token")

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}
