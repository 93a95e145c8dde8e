//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opcdev/opc-evaluator/internal/checklist"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")

// newClient returns an HTTP client with a cookie jar so the advisor session
// cookie survives across calls.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Timeout: 15 * time.Second, Jar: jar}
}

// waitForAppReady polls /healthz until the server answers or the deadline
// passes, skipping the test when the stack is not up.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	healthz := strings.TrimSuffix(baseURL, "/v1") + "/healthz"
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(healthz)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Skip("app not reachable; skipping E2E")
}

// loginIfConfigured establishes an advisor session when credentials are
// provided. With auth stubbed on the server no session is needed.
func loginIfConfigured(t *testing.T, client *http.Client) {
	t.Helper()
	email := os.Getenv("E2E_ADVISOR_EMAIL")
	password := os.Getenv("E2E_ADVISOR_PASSWORD")
	if email == "" || password == "" {
		return
	}
	status, _ := postJSON(t, client, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, "advisor login failed")
}

func postJSON(t *testing.T, client *http.Client, path string, payload any) (int, map[string]any) {
	t.Helper()
	return doJSON(t, client, http.MethodPost, path, payload)
}

func putJSON(t *testing.T, client *http.Client, path string, payload any) (int, map[string]any) {
	t.Helper()
	return doJSON(t, client, http.MethodPut, path, payload)
}

func getJSON(t *testing.T, client *http.Client, path string) (int, map[string]any) {
	t.Helper()
	return doJSON(t, client, http.MethodGet, path, nil)
}

func doJSON(t *testing.T, client *http.Client, method, path string, payload any) (int, map[string]any) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// catalogAnswers builds a full answer sheet: every item answered yes except
// the first noCount, which get a "no" plus an observation.
func catalogAnswers(noCount int) []map[string]any {
	var out []map[string]any
	n := 0
	for _, sec := range checklist.Sections {
		for _, item := range sec.Items {
			yes := n >= noCount
			ans := map[string]any{
				"sectionId": sec.ID,
				"itemId":    item.ID,
				"answer":    yes,
			}
			if !yes {
				ans["observation"] = fmt.Sprintf("Observação E2E %d", n)
			}
			n++
			out = append(out, ans)
		}
	}
	return out
}

// createFinalizedPonderation drives a student through draft, answers and
// finalization, returning the student, evaluation and ponderation ids.
func createFinalizedPonderation(t *testing.T, client *http.Client, noCount int) (string, string, string) {
	t.Helper()

	status, body := postJSON(t, client, "/students", map[string]string{
		"name":  fmt.Sprintf("Aluno E2E %d", time.Now().UnixNano()),
		"email": fmt.Sprintf("aluno%d@e2e.local", time.Now().UnixNano()),
	})
	require.Equal(t, http.StatusCreated, status, "create student: %#v", body)
	studentID, _ := body["id"].(string)
	require.NotEmpty(t, studentID)

	status, body = postJSON(t, client, "/evaluations", map[string]string{"studentId": studentID})
	require.Equal(t, http.StatusCreated, status, "create evaluation: %#v", body)
	evalID, _ := body["id"].(string)
	require.NotEmpty(t, evalID)

	status, body = putJSON(t, client, "/evaluations/"+evalID+"/items", map[string]any{
		"items": catalogAnswers(noCount),
	})
	require.Equal(t, http.StatusOK, status, "save items: %#v", body)

	status, body = postJSON(t, client, "/evaluations/"+evalID+"/finalize", nil)
	require.Equal(t, http.StatusOK, status, "finalize: %#v", body)
	pondID, _ := body["ponderationId"].(string)
	require.NotEmpty(t, pondID)
	return studentID, evalID, pondID
}
