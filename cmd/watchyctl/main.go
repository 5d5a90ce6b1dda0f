// Command watchyctl is a thin operator CLI over watchyd's HTTP API,
// dispatching to a subcommand the way the reference implementation's
// registry tool does: parse os.Args[1] as the subcommand, bind its own
// flag.FlagSet, then execute.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		runSubmit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `watchyctl - operator CLI for the Watchy audit API

Usage:
  watchyctl submit -agent <id> [-chain <id>] [-server <url>] [-api-key <key>] [-callback <url>]
  watchyctl status -audit <id> [-server <url>] [-api-key <key>]
  watchyctl report -audit <id> [-narrative] [-server <url>] [-api-key <key>]
  watchyctl health [-server <url>]`)
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID to audit (decimal)")
	chainID := fs.Uint64("chain", 0, "chain ID (defaults to the server's configured default)")
	callback := fs.String("callback", "", "webhook URL to notify on completion")
	server := fs.String("server", "http://localhost:8080", "watchyd base URL")
	apiKey := fs.String("api-key", "", "X-API-Key value, if the server requires one")
	fs.Parse(args)

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "submit: -agent is required")
		os.Exit(1)
	}

	body := map[string]any{"agent_id": *agentID}
	if *chainID != 0 {
		body["chain_id"] = *chainID
	}
	if *callback != "" {
		body["callback_url"] = *callback
	}
	raw, _ := json.Marshal(body)

	resp, err := doRequest(*server, "POST", "/audit", *apiKey, raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	auditID := fs.String("audit", "", "audit ID")
	server := fs.String("server", "http://localhost:8080", "watchyd base URL")
	apiKey := fs.String("api-key", "", "X-API-Key value, if the server requires one")
	fs.Parse(args)

	if *auditID == "" {
		fmt.Fprintln(os.Stderr, "status: -audit is required")
		os.Exit(1)
	}

	resp, err := doRequest(*server, "GET", "/audit/"+*auditID, *apiKey, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	auditID := fs.String("audit", "", "audit ID")
	narrative := fs.Bool("narrative", false, "attach an LLM-generated plain-language summary, if the server supports it")
	server := fs.String("server", "http://localhost:8080", "watchyd base URL")
	apiKey := fs.String("api-key", "", "X-API-Key value, if the server requires one")
	fs.Parse(args)

	if *auditID == "" {
		fmt.Fprintln(os.Stderr, "report: -audit is required")
		os.Exit(1)
	}

	path := "/audit/" + *auditID + "/report"
	if *narrative {
		path += "?narrative=true"
	}

	resp, err := doRequest(*server, "GET", path, *apiKey, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "watchyd base URL")
	fs.Parse(args)

	resp, err := doRequest(*server, "GET", "/health", "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func doRequest(baseURL, method, path, apiKey string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, string(out))
	}
	return out, nil
}

func printJSON(raw []byte) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		os.Stdout.Write(raw)
		fmt.Println()
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
}
