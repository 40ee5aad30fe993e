package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/SimonWaldherr/tinyodbc"
	"github.com/SimonWaldherr/tinyodbc/internal/exporter"
)

// Flags
var (
	flagDSN       = flag.String("dsn", "Driver={SQLite3};Database=:memory:", "DSN (dameng://, odbc:// or a driver connection string)")
	flagConfig    = flag.String("config", "", "YAML config file; overrides -dsn")
	flagHTTP      = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC      = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagJWTSecret = flag.String("jwt-secret", os.Getenv("TINYODBC_JWT_SECRET"), "HS256 secret; enables bearer auth when set")
	flagJWTIssuer = flag.String("jwt-issuer", "", "Expected token issuer (optional)")
	flagVerbose   = flag.Bool("v", false, "Verbose logging")
)

// HTTP types
type execRequest struct {
	SQL    string            `json:"sql"`
	Params []json.RawMessage `json:"params,omitempty"`
}
type execResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	RowsAffected uint64 `json:"rows_affected,omitempty"`
	LastInsertID any    `json:"last_insert_id,omitempty"`
	Duration     string `json:"duration"`
}

type queryRequest = execRequest

type queryResponse struct {
	SQL      string            `json:"sql"`
	Columns  []string          `json:"columns"`
	Rows     []json.RawMessage `json:"rows"`
	Error    string            `json:"error,omitempty"`
	Duration string            `json:"duration"`
	Count    int               `json:"count"`
}

// gRPC JSON codec
type jsonCodec struct{}

func init() { encoding.RegisterCodec(jsonCodec{}) }

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// gRPC service interface and descriptors (manual, no protobuf)
type TinyODBCServer interface {
	Exec(context.Context, *execRequest) (*execResponse, error)
	Query(context.Context, *queryRequest) (*queryResponse, error)
}

func registerTinyODBCServer(s *grpc.Server, srv TinyODBCServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "tinyodbc.TinyODBC",
		HandlerType: (*TinyODBCServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Exec", Handler: _TinyODBC_Exec_Handler},
			{MethodName: "Query", Handler: _TinyODBC_Query_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "tinyodbc",
	}, srv)
}

func _TinyODBC_Exec_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(execRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TinyODBCServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tinyodbc.TinyODBC/Exec"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TinyODBCServer).Exec(ctx, req.(*execRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TinyODBC_Query_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(queryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TinyODBCServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tinyodbc.TinyODBC/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TinyODBCServer).Query(ctx, req.(*queryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server state
type server struct {
	s       *tinyodbc.Session
	hb      *tinyodbc.Heartbeat
	auth    authConfig
	started time.Time
}

func newServer(s *tinyodbc.Session, auth authConfig) *server {
	return &server{s: s, hb: tinyodbc.NewHeartbeat(0), auth: auth, started: time.Now()}
}

// params decodes request parameters from their JSON form.
func params(raw []json.RawMessage) ([]tinyodbc.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]tinyodbc.Value, len(raw))
	for i, r := range raw {
		v, err := tinyodbc.FromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// TinyODBCServer implementation
func (s *server) Exec(ctx context.Context, req *execRequest) (*execResponse, error) {
	start := time.Now()
	ps, err := params(req.Params)
	if err != nil {
		return &execResponse{Success: false, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	res, err := s.s.Exec(ctx, req.SQL, ps)
	if err != nil {
		return &execResponse{Success: false, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	resp := &execResponse{Success: true, RowsAffected: res.RowsAffected, Duration: time.Since(start).String()}
	if !res.LastInsertID.IsNull() {
		resp.LastInsertID = res.LastInsertID
	}
	return resp, nil
}

func (s *server) Query(ctx context.Context, req *queryRequest) (*queryResponse, error) {
	start := time.Now()
	ps, err := params(req.Params)
	if err != nil {
		return &queryResponse{SQL: req.SQL, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	rows, err := s.s.Query(ctx, req.SQL, ps)
	if err != nil {
		return &queryResponse{SQL: req.SQL, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	t := exporter.FromMaps(rows)
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		b, err := tinyodbc.MapOf(r).MarshalJSON()
		if err != nil {
			return &queryResponse{SQL: req.SQL, Error: err.Error(), Duration: time.Since(start).String()}, nil
		}
		out = append(out, b)
	}
	return &queryResponse{
		SQL:      req.SQL,
		Columns:  t.Columns,
		Rows:     out,
		Duration: time.Since(start).String(),
		Count:    len(out),
	}, nil
}

// HTTP handlers
func (s *server) handleExec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Exec(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Query(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"ok":             true,
		"time":           time.Now().Format(time.RFC3339),
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"session":        s.s.ID(),
		"dbms":           s.s.Banner(),
		"in_transaction": s.s.InTransaction(),
	}
	if st, ok := s.hb.Status(s.s.ID()); ok {
		ping := map[string]any{"at": st.At.Format(time.RFC3339)}
		if st.Err != nil {
			ping["error"] = st.Err.Error()
			out["ok"] = false
		}
		out["last_ping"] = ping
	}
	writeJSON(w, out)
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/exec", s.auth.requireAuth(s.handleExec))
	mux.HandleFunc("/api/query", s.auth.requireAuth(s.handleQuery))
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

func (s *server) grpcServer() *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(s.auth.unaryInterceptor))
	registerTinyODBCServer(gs, s)
	return gs
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func loadOptions() (tinyodbc.Options, error) {
	if *flagConfig != "" {
		return tinyodbc.LoadConfig(*flagConfig)
	}
	return tinyodbc.ParseDSN(*flagDSN)
}

func main() {
	flag.Parse()

	opts, err := loadOptions()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx := context.Background()
	sess, err := tinyodbc.Establish(ctx, opts)
	if err != nil {
		log.Fatalf("connect error: %v", err)
	}
	defer sess.Close(ctx)
	if *flagVerbose {
		log.Printf("connected to %s (session %s)", sess.Banner(), sess.ID())
	}

	srv := newServer(sess, authConfig{JWTSecret: *flagJWTSecret, Issuer: *flagJWTIssuer})
	if err := tinyodbc.KeepAlive(srv.hb, sess); err != nil {
		log.Fatalf("keepalive error: %v", err)
	}
	srv.hb.Start()
	defer srv.hb.Stop()

	errc := make(chan error, 2)
	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				errc <- fmt.Errorf("gRPC listen: %w", err)
				return
			}
			log.Printf("gRPC listening on %s", *flagGRPC)
			errc <- srv.grpcServer().Serve(lis)
		}()
	}
	if *flagHTTP != "" {
		go func() {
			log.Printf("HTTP listening on %s", *flagHTTP)
			errc <- http.ListenAndServe(*flagHTTP, srv.routes())
		}()
	}
	if *flagGRPC == "" && *flagHTTP == "" {
		log.Fatalf("nothing to serve: both -http and -grpc are empty")
	}
	log.Printf("serve error: %v", <-errc)
}
