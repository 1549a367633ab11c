package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/arvoredolab/arvoredo/backend/internal/trees"
)

func TestCreateTreeEndpoint(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	recorder := env.do(t, http.MethodPost, "/api/trees", token, map[string]interface{}{
		"localId":     "tree-1",
		"cidade":      "Curitiba",
		"nomePopular": "Ipê",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["message"] != "Tree registered successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}
	data, _ := body["data"].(map[string]interface{})
	if data["uniqueId"] != "tree-1" {
		t.Fatalf("unexpected unique id %v", data["uniqueId"])
	}
	if data["id"] != float64(1) {
		t.Fatalf("unexpected sequence id %v", data["id"])
	}
	if data["userName"] != "Field Surveyor" {
		t.Fatalf("unexpected user name %v", data["userName"])
	}
}

func TestCreateTreeEndpointDuplicate(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	payload := map[string]interface{}{"localId": "tree-dup"}
	if first := env.do(t, http.MethodPost, "/api/trees", token, payload); first.Code != http.StatusCreated {
		t.Fatalf("expected first create to succeed, got %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/api/trees", token, payload)
	if second.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", second.Code)
	}
	if body := decodeBody(t, second); body["message"] != "Tree with this ID already exists" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestCreateTreeEndpointValidation(t *testing.T) {
	env := newTestEnvironment(t)
	badActor := surveyorActor()
	badActor.Email = "not-an-email"
	token := env.issueToken(t, badActor)

	recorder := env.do(t, http.MethodPost, "/api/trees", token, map[string]interface{}{
		"localId": "tree-invalid",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["message"] != "Validation failed" {
		t.Fatalf("unexpected message %v", body["message"])
	}
	data, _ := body["data"].(map[string]interface{})
	fieldErrors, _ := data["errors"].([]interface{})
	if len(fieldErrors) != 1 {
		t.Fatalf("expected 1 field error, got %v", data["errors"])
	}
}

func TestUpdateTreeEndpoint(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	env.do(t, http.MethodPost, "/api/trees", token, map[string]interface{}{
		"localId": "tree-upd",
		"cidade":  "Curitiba",
	})

	updated := env.do(t, http.MethodPut, "/api/trees/tree-upd", token, map[string]interface{}{
		"nomePopular": "Jacarandá",
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updated.Code, updated.Body.String())
	}
	body := decodeBody(t, updated)
	if body["message"] != "Tree updated successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}
	data, _ := body["data"].(map[string]interface{})
	if data["nomePopular"] != "Jacarandá" || data["cidade"] != "Curitiba" {
		t.Fatalf("unexpected record %v", data)
	}
}

func TestUpdateTreeEndpointNotFound(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	recorder := env.do(t, http.MethodPut, "/api/trees/missing", token, map[string]interface{}{
		"cidade": "Curitiba",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["message"] != "Tree not found" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestDeleteTreeEndpoint(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	env.do(t, http.MethodPost, "/api/trees", token, map[string]interface{}{"localId": "tree-del"})

	deleted := env.do(t, http.MethodDelete, "/api/trees/tree-del", token, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleted.Code)
	}
	if body := decodeBody(t, deleted); body["message"] != "Tree deleted successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}

	missing := env.do(t, http.MethodDelete, "/api/trees/tree-del", token, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", missing.Code)
	}
}

func TestListTreesEndpointPaginates(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	actor := trees.Actor{ID: 1, Username: "surveyor", Email: "surveyor@example.com"}
	for i := 0; i < 25; i++ {
		_, err := env.treeService.CreateTree(context.Background(), trees.TreeSubmission{
			LocalID: fmt.Sprintf("list-%02d", i),
		}, actor)
		if err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}

	recorder := env.do(t, http.MethodGet, "/api/trees?page=2&limit=10", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["total"] != float64(25) {
		t.Fatalf("expected total 25, got %v", body["total"])
	}
	if body["page"] != float64(2) || body["limit"] != float64(10) {
		t.Fatalf("unexpected pagination metadata %v %v", body["page"], body["limit"])
	}
	data, _ := body["data"].([]interface{})
	if len(data) != 10 {
		t.Fatalf("expected 10 records, got %d", len(data))
	}
}

func TestUserTreesEndpointFiltersByPathUser(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	first := trees.Actor{ID: 1, Username: "one", Email: "one@example.com"}
	second := trees.Actor{ID: 5, Username: "five", Email: "five@example.com"}
	if _, err := env.treeService.CreateTree(context.Background(), trees.TreeSubmission{LocalID: "mine"}, first); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := env.treeService.CreateTree(context.Background(), trees.TreeSubmission{LocalID: "theirs"}, second); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	recorder := env.do(t, http.MethodGet, "/api/users/5/trees", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	data, _ := body["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected 1 record, got %d", len(data))
	}
	record, _ := data[0].(map[string]interface{})
	if record["uniqueId"] != "theirs" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	recorder := env.do(t, http.MethodPost, "/api/trees/sync", token, map[string]interface{}{
		"deviceId": "device-1",
		"trees": []map[string]interface{}{
			{"localId": "sync-a", "cidade": "Curitiba"},
			{"localId": "sync-b"},
		},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["success"] != true {
		t.Fatalf("expected success true, got %v", body["success"])
	}
	if body["serverTimestamp"] == "" {
		t.Fatalf("expected server timestamp")
	}
	results, _ := body["results"].(map[string]interface{})
	succeeded, _ := results["success"].([]interface{})
	if len(succeeded) != 2 {
		t.Fatalf("expected 2 successes, got %v", results)
	}
	first, _ := succeeded[0].(map[string]interface{})
	if first["localId"] != "sync-a" || first["id"] != float64(1) || first["uniqueId"] != "sync-a" {
		t.Fatalf("unexpected success entry %v", first)
	}
	if errored, _ := results["errors"].([]interface{}); len(errored) != 0 {
		t.Fatalf("expected empty errors bucket, got %v", errored)
	}
	if conflicts, _ := results["conflicts"].([]interface{}); len(conflicts) != 0 {
		t.Fatalf("expected empty conflicts bucket, got %v", conflicts)
	}
}

func TestSyncEndpointRejectsInvalidBatch(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	missingDevice := env.do(t, http.MethodPost, "/api/trees/sync", token, map[string]interface{}{
		"trees": []map[string]interface{}{{"localId": "sync-a"}},
	})
	if missingDevice.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without device id, got %d", missingDevice.Code)
	}

	missingTrees := env.do(t, http.MethodPost, "/api/trees/sync", token, map[string]interface{}{
		"deviceId": "device-1",
	})
	if missingTrees.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without trees, got %d", missingTrees.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	env.do(t, http.MethodPost, "/api/trees", token, map[string]interface{}{
		"localId":   "dash-1",
		"cidade":    "Curitiba",
		"estado":    "PR",
		"latitude":  "-25.4284",
		"longitude": "-49.2733",
	})

	recorder := env.do(t, http.MethodGet, "/api/dashboard", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	data, _ := body["data"].(map[string]interface{})
	stats, _ := data["stats"].(map[string]interface{})
	if stats["totalTrees"] != float64(1) || stats["totalCities"] != float64(1) {
		t.Fatalf("unexpected stats %v", stats)
	}
	points, _ := data["mapPoints"].([]interface{})
	if len(points) != 1 {
		t.Fatalf("expected 1 map point, got %v", data["mapPoints"])
	}
}

func TestUserAdminEndpointsRequireAdmin(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, surveyorActor())

	recorder := env.do(t, http.MethodGet, "/api/users", token, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["message"] != "Admin privileges required" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestUserAdminEndpoints(t *testing.T) {
	env := newTestEnvironment(t)
	adminToken := env.issueToken(t, adminActor())

	registered := env.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"username": "jsilva",
		"password": "segredo123",
		"email":    "jsilva@example.com",
		"fullName": "Joana Silva",
	})
	if registered.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", registered.Code)
	}
	registeredBody := decodeBody(t, registered)
	account, _ := registeredBody["user"].(map[string]interface{})
	accountID := int64(account["id"].(float64))

	listed := env.do(t, http.MethodGet, "/api/users", adminToken, nil)
	if listed.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listed.Code)
	}

	updated := env.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d", accountID), adminToken, map[string]interface{}{
		"fullName": "Joana Atualizada",
		"email":    "jsilva@example.com",
		"username": "jsilva",
		"isAdmin":  false,
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updated.Code, updated.Body.String())
	}

	deleted := env.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", accountID), adminToken, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleted.Code)
	}
	missing := env.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", accountID), adminToken, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", missing.Code)
	}
}
