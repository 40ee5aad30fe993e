package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/SimonWaldherr/tinyodbc"
)

const secret = "test-secret"

func newTestServer(t *testing.T, auth authConfig) *server {
	t.Helper()
	s, err := tinyodbc.Connect(context.Background(), "Driver={SQLite3};Database=:memory:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return newServer(s, auth)
}

func createTestJWT(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("Failed to create test JWT: %v", err)
	}
	return token
}

func post(t *testing.T, h http.Handler, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestValidateJWT(t *testing.T) {
	a := authConfig{JWTSecret: secret, Issuer: "tinyodbc"}
	exp := time.Now().Add(time.Hour).Unix()

	good := createTestJWT(t, secret, jwt.MapClaims{"sub": "alice", "iss": "tinyodbc", "exp": exp})
	if sub, err := a.validate(good); err != nil || sub != "alice" {
		t.Fatalf("validate = %q, %v", sub, err)
	}
	byName := createTestJWT(t, secret, jwt.MapClaims{"name": "bob", "iss": "tinyodbc", "exp": exp})
	if sub, err := a.validate(byName); err != nil || sub != "bob" {
		t.Fatalf("name claim fallback = %q, %v", sub, err)
	}

	bad := []string{
		createTestJWT(t, "other", jwt.MapClaims{"sub": "alice", "iss": "tinyodbc", "exp": exp}),
		createTestJWT(t, secret, jwt.MapClaims{"sub": "alice", "iss": "elsewhere", "exp": exp}),
		createTestJWT(t, secret, jwt.MapClaims{"iss": "tinyodbc", "exp": exp}),
		createTestJWT(t, secret, jwt.MapClaims{"sub": "alice", "iss": "tinyodbc", "exp": time.Now().Add(-time.Hour).Unix()}),
		"not-a-token",
	}
	for i, tok := range bad {
		if _, err := a.validate(tok); err == nil {
			t.Errorf("token %d should be rejected", i)
		}
	}
}

func TestBearer(t *testing.T) {
	if tok, err := bearer("Bearer abc"); err != nil || tok != "abc" {
		t.Fatalf("bearer = %q, %v", tok, err)
	}
	if tok, err := bearer("bearer  abc "); err != nil || tok != "abc" {
		t.Fatalf("bearer lower-case = %q, %v", tok, err)
	}
	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, err := bearer(h); err == nil {
			t.Errorf("bearer(%q) should fail", h)
		}
	}
}

func TestHTTPExecAndQuery(t *testing.T) {
	srv := newTestServer(t, authConfig{})
	h := srv.routes()

	rec := post(t, h, "/api/exec", `{"sql":"create table users (id INTEGER, name VARCHAR(20))"}`, "")
	var er execResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || !er.Success {
		t.Fatalf("create: %s", rec.Body.String())
	}
	rec = post(t, h, "/api/exec", `{"sql":"insert into users values (?, ?)","params":[7,"\"ann\""]}`, "")
	er = execResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || !er.Success || er.RowsAffected != 1 {
		t.Fatalf("insert: %s", rec.Body.String())
	}

	rec = post(t, h, "/api/query", `{"sql":"select id, name from users"}`, "")
	var qr queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &qr); err != nil {
		t.Fatalf("query response: %v: %s", err, rec.Body.String())
	}
	if qr.Error != "" || qr.Count != 1 {
		t.Fatalf("query: %s", rec.Body.String())
	}
	if strings.Join(qr.Columns, ",") != "id,name" {
		t.Fatalf("columns = %v", qr.Columns)
	}
	if got := string(qr.Rows[0]); got != `{"id":7,"name":"ann"}` {
		t.Fatalf("row = %s", got)
	}

	rec = post(t, h, "/api/query", `{"sql":"commit"}`, "")
	qr = queryResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &qr)
	if qr.Error == "" {
		t.Fatalf("sentinel query should fail: %s", rec.Body.String())
	}
}

func TestHTTPMethodAndBody(t *testing.T) {
	h := newTestServer(t, authConfig{}).routes()
	req := httptest.NewRequest(http.MethodGet, "/api/exec", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/exec = %d", rec.Code)
	}
	if rec := post(t, h, "/api/query", "{", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON = %d", rec.Code)
	}
}

func TestHTTPAuth(t *testing.T) {
	h := newTestServer(t, authConfig{JWTSecret: secret}).routes()
	body := `{"sql":"select 1 as one"}`
	if rec := post(t, h, "/api/query", body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", rec.Code)
	}
	if rec := post(t, h, "/api/query", body, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", rec.Code)
	}
	tok := createTestJWT(t, secret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	if rec := post(t, h, "/api/query", body, tok); rec.Code != http.StatusOK {
		t.Fatalf("valid token = %d: %s", rec.Code, rec.Body.String())
	}

	// status stays open
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"dbms":"SQLite"`)) {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	srv := newTestServer(t, authConfig{JWTSecret: secret})
	lis := bufconn.Listen(1 << 20)
	gs := srv.grpcServer()
	go gs.Serve(lis)
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var resp queryResponse
	err = conn.Invoke(ctx, "/tinyodbc.TinyODBC/Query", &queryRequest{SQL: "select 1 as one"}, &resp)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("call without token = %v", err)
	}

	tok := createTestJWT(t, secret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	var er execResponse
	if err := conn.Invoke(ctx, "/tinyodbc.TinyODBC/Exec", &execRequest{SQL: "create table t (id INTEGER)"}, &er); err != nil || !er.Success {
		t.Fatalf("Exec = %+v, %v", er, err)
	}
	if err := conn.Invoke(ctx, "/tinyodbc.TinyODBC/Exec", &execRequest{SQL: "insert into t values (?)", Params: []json.RawMessage{json.RawMessage("3")}}, &er); err != nil || !er.Success {
		t.Fatalf("insert = %+v, %v", er, err)
	}
	resp = queryResponse{}
	if err := conn.Invoke(ctx, "/tinyodbc.TinyODBC/Query", &queryRequest{SQL: "select id from t"}, &resp); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Count != 1 || string(resp.Rows[0]) != `{"id":3}` {
		t.Fatalf("Query = %+v", resp)
	}
}
