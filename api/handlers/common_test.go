// Common test helpers
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/backend"
	"github.com/meghashyamc/aleph/validation"
	"github.com/stretchr/testify/require"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

// testFiles are created relative to the test home directory.
var testFiles = map[string]string{
	"Desktop/report.pdf":                           "quarterly numbers",
	"Desktop/notes.txt":                            "meeting notes",
	"Desktop/drafts/report_draft.doc":              "draft",
	"Documents/thesis.doc":                         "chapter one",
	"Applications/Spotify.app/Contents/Info.plist": "<plist/>",
}

type testCase struct {
	name           string
	requestHeaders map[string]string
	requestBody    map[string]any
	queryParams    map[string]string
	expectedStatus int
	expectedPaths  []string
}

type testServer struct {
	router *gin.Engine
	home   string
}

func setupTestServer(t *testing.T, assert *require.Assertions) *testServer {
	base, err := filepath.EvalSymlinks(t.TempDir())
	assert.NoError(err)
	home := filepath.Join(base, "home")

	for relPath, content := range testFiles {
		fullPath := filepath.Join(home, relPath)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		assert.NoError(err, "could not create test sub-directory")
		err = os.WriteFile(fullPath, []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}

	cfg, err := config.Load("test")
	assert.NoError(err, "could not load config")
	cfg.Set("paths.home", home)
	cfg.Set("paths.cache_root", filepath.Join(base, "cache"))
	cfg.Set("paths.apps_root", filepath.Join(home, "Applications"))

	testLogger := logger.Discard()
	service, err := backend.New(testLogger, cfg)
	assert.NoError(err, "could not create backend")
	t.Cleanup(func() {
		assert.NoError(service.Close(), "could not close backend")
	})

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupSearch(router, testLogger, service, validator)
	SetupOpen(router, testLogger, service, validator)
	SetupIndex(router, testLogger, service, validator)

	return &testServer{router: router, home: home}
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		values := url.Values{}
		for key, value := range queryParams {
			values.Set(key, value)
		}
		endpoint = endpoint + "?" + values.Encode()
	}

	var body *bytes.Buffer
	if requestBodyMap != nil {
		jsonBody, err := json.Marshal(requestBodyMap)
		assert.NoError(err)
		body = bytes.NewBuffer(jsonBody)
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequest(method, endpoint, body)
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

// resultPaths decodes a {"data":{"results":[...]}} body into the result paths, in order.
func resultPaths(assert *require.Assertions, body []byte) []string {
	var decoded struct {
		Data struct {
			Results []struct {
				Path string `json:"path"`
				Icon string `json:"icon"`
			} `json:"results"`
		} `json:"data"`
	}
	assert.NoError(json.Unmarshal(body, &decoded))
	assert.NotNil(decoded.Data.Results, "results are always a list")

	paths := make([]string, 0, len(decoded.Data.Results))
	for _, result := range decoded.Data.Results {
		assert.NotEmpty(result.Icon)
		paths = append(paths, result.Path)
	}
	return paths
}
