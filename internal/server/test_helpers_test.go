package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arvoredolab/arvoredo/backend/internal/auth"
	"github.com/arvoredolab/arvoredo/backend/internal/trees"
	"github.com/arvoredolab/arvoredo/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type testEnvironment struct {
	handler     http.Handler
	tokenIssuer *auth.TokenIssuer
	userService *users.Service
	treeService *trees.Service
	db          *gorm.DB
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:arvoredo_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &trees.TreeRecord{}, &trees.SequenceCounter{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "arvoredo-test",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Tokens:     tokenIssuer,
		Lockouts:   users.NewMemoryLockoutStore(),
		BcryptCost: 4,
	})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}

	treeStore, err := trees.NewStore(db)
	if err != nil {
		t.Fatalf("failed to construct tree store: %v", err)
	}
	treeService, err := trees.NewService(trees.ServiceConfig{
		Store:      treeStore,
		IDProvider: trees.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct tree service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: tokenIssuer,
		UserService:  userService,
		TreeService:  treeService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testEnvironment{
		handler:     handler,
		tokenIssuer: tokenIssuer,
		userService: userService,
		treeService: treeService,
		db:          db,
	}
}

func (env *testEnvironment) issueToken(t *testing.T, actor auth.Actor) string {
	t.Helper()
	token, err := env.tokenIssuer.IssueAccessToken(actor)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func surveyorActor() auth.Actor {
	return auth.Actor{
		ID:       1,
		Username: "surveyor",
		Email:    "surveyor@example.com",
		FullName: "Field Surveyor",
	}
}

func adminActor() auth.Actor {
	return auth.Actor{
		ID:       2,
		Username: "admin",
		Email:    "admin@example.com",
		FullName: "Site Admin",
		IsAdmin:  true,
	}
}

func (env *testEnvironment) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}
