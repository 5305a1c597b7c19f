package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// smoke drives a running grantflow-api through one project lifecycle. The
// server must run with auth.allow_dev_tokens enabled.
func main() {
	base := envOr("GRANTFLOW_API_URL", "http://localhost:8080")
	grpcAddr := envOr("GRANTFLOW_GRPC_ADDR", "localhost:9090")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	var tok struct {
		Token string `json:"token"`
	}
	c.call(ctx, http.MethodPost, "/v1/auth/token", map[string]any{"user_id": "smoke-owner"}, http.StatusOK, &tok)
	c.token = tok.Token

	var org struct {
		ID string `json:"id"`
	}
	c.call(ctx, http.MethodPost, "/v1/organizations", map[string]any{"name": fmt.Sprintf("smoke-%d", time.Now().Unix())}, http.StatusCreated, &org)

	var project struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	c.call(ctx, http.MethodPost, "/v1/projects", map[string]any{"org_id": org.ID, "title": "Smoke project"}, http.StatusCreated, &project)
	if project.Status != "draft" {
		log.Fatalf("new project status = %q, want draft", project.Status)
	}

	var moved struct {
		Entry struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"entry"`
	}
	c.call(ctx, http.MethodPost, "/v1/projects/"+project.ID+"/transition", map[string]any{"to": "blocked", "reason": "smoke"}, http.StatusOK, &moved)
	if moved.Entry.From != "draft" || moved.Entry.To != "blocked" {
		log.Fatalf("unexpected transition entry: %+v", moved.Entry)
	}
	c.call(ctx, http.MethodPost, "/v1/projects/"+project.ID+"/transition", map[string]any{"to": "approved"}, http.StatusBadRequest, nil)

	var report struct {
		NeedsAction bool `json:"needs_action"`
		TotalIssues int  `json:"total_issues"`
	}
	c.call(ctx, http.MethodPost, "/v1/projects/"+project.ID+"/orchestration", nil, http.StatusOK, &report)
	if !report.NeedsAction || report.TotalIssues == 0 {
		log.Fatalf("empty project should need action: %+v", report)
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc %s: %v", grpcAddr, err)
	}
	defer conn.Close()
	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %s", health.GetStatus())
	}

	fmt.Printf("grantflow smoke test passed: org=%s project=%s issues=%d\n", org.ID, project.ID, report.TotalIssues)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body any, want int, out any) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		log.Fatalf("%s %s: status %d, want %d: %v", method, path, resp.StatusCode, want, errBody)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
