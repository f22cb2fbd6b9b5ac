package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/mockopenground"
)

func main() {
	addr := defaultString("MOCK_OPENGROUND_ADDR", ":8080")
	projectName := defaultString("MOCK_OPENGROUND_PROJECT", "NBB Bridge")
	projectID := defaultString("MOCK_OPENGROUND_PROJECT_ID", "mock-project")

	fs := flag.NewFlagSet("mock-openground", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&projectName, "project", projectName, "Project name to serve")
	fs.StringVar(&projectID, "project-id", projectID, "Cloud id of the served project")
	_ = fs.Parse(os.Args[1:])

	srv := mockopenground.New(projectName, projectID)

	_, _ = fmt.Fprintf(os.Stdout, "mock-openground listening on %s (project=%s id=%s)\n", addr, projectName, projectID)
	_, _ = fmt.Fprintf(os.Stdout, "point the loader at it with OPENGROUND_BASE_URL=http://localhost%s/api/v1.0 and OPENGROUND_TOKEN_URL=http://localhost%s/connect/token\n", addr, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
