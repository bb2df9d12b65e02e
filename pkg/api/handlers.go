package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
	"github.com/wildfly/wildfly-core-sub044/pkg/logging"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) hostsHandler(w http.ResponseWriter, _ *http.Request) {
	entries := []HostEntry{}
	if s.hosts != nil {
		for _, h := range s.hosts.Hosts() {
			entries = append(entries, HostEntry{
				Name:              h.Host,
				ProductVersion:    h.ProductVersion,
				ManagementVersion: managementVersion(h.ManagementMajor, h.ManagementMinor),
				ServerGroups:      h.ServerGroups,
				RegisteredAt:      h.RegisteredAt.Format(time.RFC3339),
			})
		}
	}
	writeOK(w, entries)
}

func managementVersion(major, minor int) string {
	return fmt.Sprintf("%d.%d", major, minor)
}

func auditEntryFromRecord(rec logging.Record) AuditEntry {
	return AuditEntry{
		Time:      rec.Time.Format(time.RFC3339Nano),
		Operation: rec.Operation,
		Address:   rec.Address,
		Outcome:   rec.Outcome,
		Failure:   rec.Failure,
		ElapsedMS: float64(rec.Elapsed) / float64(time.Millisecond),
	}
}

func auditFilter(r *http.Request) logging.EventFilter {
	q := r.URL.Query()
	return logging.EventFilter{
		Operation: q.Get("operation"),
		Outcome:   q.Get("outcome"),
		Address:   q.Get("address"),
	}
}

// auditHandler returns recent operations, newest first. Supports ?limit=
// (default 100) and the ?operation=, ?outcome= and ?address= filters.
func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries := []AuditEntry{}
	for _, rec := range s.audit.LatestFiltered(limit, auditFilter(r)) {
		entries = append(entries, auditEntryFromRecord(rec))
	}
	writeOK(w, entries)
}

// managementPostHandler executes a request given as a JSON object.
func (s *Server) managementPostHandler(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "management requests are not enabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request: "+err.Error())
		return
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, "the request is not a JSON object: "+err.Error())
		return
	}
	if operation.OperationOf(req) == "" {
		writeError(w, http.StatusBadRequest, "the request has no operation name")
		return
	}
	s.execute(w, r, req)
}

// readOperations are the read-only operations GET may name without
// their "read-" prefix.
var readOperations = map[string]bool{
	"resource":              true,
	"attribute":             true,
	"children-names":        true,
	"children-types":        true,
	"children-resources":    true,
	"operation-names":       true,
	"operation-description": true,
	"resource-description":  true,
}

// managementGetHandler executes a read-only operation on the resource
// named by the path, e.g. GET /management/subsystem/logging?operation=attribute&name=level.
// Query parameters other than operation become request properties.
func (s *Server) managementGetHandler(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "management requests are not enabled")
		return
	}
	req, err := getRequest(r.PathValue("path"), r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.execute(w, r, req)
}

func getRequest(path string, query map[string][]string) (*structpb.Struct, error) {
	b := operation.NewBuilder(nil)
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments)%2 != 0 {
		return nil, fmt.Errorf("the path must alternate node types and names, %q has no name", segments[len(segments)-1])
	}
	for i := 0; i < len(segments); i += 2 {
		b.AddNode(segments[i], segments[i+1])
	}

	op := "read-resource"
	if v := query["operation"]; len(v) > 0 && v[0] != "" {
		op = v[0]
		if readOperations[op] {
			op = "read-" + op
		}
	}
	if !strings.HasPrefix(op, "read-") {
		return nil, fmt.Errorf("GET only executes read operations, not %q", op)
	}
	b.SetOperationName(op)
	for name, values := range query {
		if name == "operation" || len(values) == 0 {
			continue
		}
		b.SetProperty(name, value.Parse(values[0]))
	}
	return b.Build()
}

// execute runs req and writes the controller's response as is. A failed
// outcome is reported with status 500.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, req *structpb.Struct) {
	start := time.Now()
	resp := s.controller.Execute(r.Context(), req)
	if s.observer != nil {
		s.observer.ObserveOperation(grpcapi.NewObservation(req, resp, time.Since(start)))
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response: "+err.Error())
		return
	}
	status := http.StatusOK
	if !operation.IsSuccess(resp) {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
