// Package main provides a CI-friendly smoke test for a running kitchenhero server.
//
// It validates:
//   - /healthz and /readyz answer 200
//   - /metrics exposes the auth collectors
//   - the gRPC health service reports SERVING (when -grpc is set)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "HTTP base URL")
		grpcAddr = flag.String("grpc", "", "gRPC address (empty skips gRPC checks)")
		timeout  = flag.Duration("timeout", 10*time.Second, "overall timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, strings.TrimRight(*baseURL, "/"), *grpcAddr); err != nil {
		fmt.Fprintln(os.Stderr, "smoke: FAIL:", err)
		os.Exit(1)
	}
	fmt.Println("smoke: OK")
}

func run(ctx context.Context, baseURL, grpcAddr string) error {
	for _, path := range []string{"/healthz", "/readyz"} {
		if _, err := httpGet(ctx, baseURL+path); err != nil {
			return err
		}
		fmt.Println("ok:", path)
	}

	body, err := httpGet(ctx, baseURL+"/metrics")
	if err != nil {
		return err
	}
	if !strings.Contains(body, "kh_http_requests_total") {
		return errors.New("/metrics: kh_http_requests_total missing")
	}
	fmt.Println("ok: /metrics")

	if grpcAddr == "" {
		return nil
	}
	return grpcChecks(ctx, grpcAddr)
}

func httpGet(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return string(b), nil
}

func grpcChecks(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc dial: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("grpc health: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc health: status %v", resp.GetStatus())
	}
	fmt.Println("ok: grpc health")
	return nil
}
