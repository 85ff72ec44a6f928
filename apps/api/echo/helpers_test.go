package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/curricula/apps/api/echo"
	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
	"github.com/trezcool/curricula/storage/database/inmem"
	"github.com/trezcool/curricula/tests"
)

var (
	ctx  = context.Background()
	conf = &core.Config{
		AppName:   "Curricula",
		TestMode:  true,
		SecretKey: "test-secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}
)

type httpErr struct {
	Error string `json:"error"`
}

func setup(t *testing.T) (echoapi.Server, *curriculum.Catalog, curriculum.Repository) {
	t.Helper()
	repo := inmemdb.NewCurriculumRepository(inmemdb.Open())
	catalog := curriculum.NewCatalog(repo, testutil.Logger())
	app := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         testutil.Logger(),
		Catalog:        catalog,
		DisableReqLogs: true,
	})
	return app, catalog, repo
}

func getToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf.SecretKey, echoapi.NewClaims(conf, subject, subject, roles...))
	require.NoError(t, err)
	return token
}

func newAuthRequest(method, path, token string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		_ = json.NewEncoder(&body).Encode(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

// serve runs one request against app and decodes the JSON answer into out.
func serve(t *testing.T, app http.Handler, req *http.Request, rec *httptest.ResponseRecorder, out interface{}) int {
	t.Helper()
	app.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}
