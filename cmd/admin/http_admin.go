package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(adminURL(*baseURL, "/admin/v1/state"))
	printResponse(resp, err)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/snapshot"), nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	printResponse(resp, err)
}

func controlCmd(args []string) {
	fs := flag.NewFlagSet("control", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	action := fs.String("action", "", "START, PAUSE or RESET")
	_ = fs.Parse(args)

	a := strings.ToUpper(strings.TrimSpace(*action))
	switch a {
	case "START", "PAUSE", "RESET":
	default:
		fmt.Fprintln(os.Stderr, "missing or bad -action (START|PAUSE|RESET)")
		os.Exit(2)
	}
	body, _ := json.Marshal(map[string]string{"action": a})
	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/control"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	printResponse(resp, err)
}

func printResponse(resp *http.Response, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
