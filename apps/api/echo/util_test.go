package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/edusmart/assessment/apps/api/echo"
	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/student"
	"github.com/edusmart/assessment/tests"
)

type httpErr struct {
	Error string `json:"error"`
}

func setup(t *testing.T) (*Server, *testutil.Env, *core.Config) {
	conf := core.NewTestConfig()
	env := testutil.NewEnv(t)

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	srv := NewServer(ServerDeps{
		Conf:        conf,
		Logger:      env.Logger,
		AttemptSvc:  env.AttemptSvc,
		Enrollments: env.Sync,
		Validate:    validate,
		Translator:  translator,
	})
	return srv, env, conf
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func studentToken(t *testing.T, conf *core.Config, stdt student.Student) string {
	return getToken(t, conf, NewClaims(conf, stdt.ID, stdt.Name, stdt.Email, RoleStudent))
}

func teacherToken(t *testing.T, conf *core.Config) string {
	return getToken(t, conf, NewClaims(conf, "teacher-1", "Teacher", "teacher@test.edu", RoleTeacher))
}

func getToken(t *testing.T, conf *core.Config, claims *Claims) string {
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}
