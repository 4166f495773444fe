package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080/api/v1", "REST base URL")
	apiKey    = flag.String("user", os.Getenv("SMOKE_USER"), "account name, empty when the server has no account layer")
	apiSecret = flag.String("secret", os.Getenv("SMOKE_SECRET"), "account secret")
	apiCred   = flag.String("api-key", os.Getenv("GEMINI_API_KEY"), "generation credential stored in the settings")
)

type step struct {
	method, path, body string
	want               int
}

func main() {
	flag.Parse()
	fmt.Println("🚀 Starting companion smoke test...")

	token := ""
	if *apiKey != "" {
		var err error
		token, err = getJWTToken()
		if err != nil {
			log.Fatalf("Failed to get JWT token: %v", err)
		}
		fmt.Println("✅ JWT token obtained")
	}

	settings := fmt.Sprintf(`{"apiCredential":%q,"persona":{"name":"Jisu","relationship":"friend","personalityDescription":"cheerful","toneExample":"cheerful","replyLanguage":"en"}}`, *apiCred)
	steps := []step{
		{http.MethodGet, "/session", "", http.StatusOK},
		{http.MethodPut, "/session/settings", settings, http.StatusOK},
		{http.MethodPost, "/session/start", "", http.StatusOK},
		{http.MethodPost, "/session/messages", `{"text":"hello"}`, http.StatusOK},
		{http.MethodPost, "/session/leave", "", http.StatusOK},
	}

	for _, s := range steps {
		body, err := call(token, s)
		if err != nil {
			log.Fatalf("❌ %s %s: %v", s.method, s.path, err)
		}
		switch s.path {
		case "/session/start":
			fmt.Printf("💬 Session %s, %d replayed turns\n",
				gjson.GetBytes(body, "session_id").String(),
				len(gjson.GetBytes(body, "replay").Array()))
		case "/session/messages":
			fmt.Printf("💬 Reply: %s (fallback=%t)\n",
				gjson.GetBytes(body, "turn.text").String(),
				gjson.GetBytes(body, "fallback").Bool())
		case "/session/leave":
			fmt.Printf("📊 Log now holds %d turns\n", len(gjson.GetBytes(body, "settings.conversationLog").Array()))
		default:
			fmt.Printf("✅ %s %s → state %s\n", s.method, s.path, gjson.GetBytes(body, "state").String())
		}
	}

	fmt.Println("✅ Smoke test completed successfully!")
}

func getJWTToken() (string, error) {
	req, err := http.NewRequest(http.MethodPost, *baseURL+"/auth/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", *apiKey)
	req.Header.Set("X-API-Secret", *apiSecret)

	body, status, err := send(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("auth failed with status %d: %s", status, string(body))
	}

	token := gjson.GetBytes(body, "token")
	if !token.Exists() {
		return "", fmt.Errorf("token not found in response: %s", string(body))
	}
	return token.String(), nil
}

func call(token string, s step) ([]byte, error) {
	req, err := http.NewRequest(s.method, *baseURL+s.path, bytes.NewBufferString(s.body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	body, status, err := send(req)
	if err != nil {
		return nil, err
	}
	if status != s.want {
		return nil, fmt.Errorf("status %d: %s", status, string(body))
	}
	return body, nil
}

func send(req *http.Request) ([]byte, int, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	fmt.Printf("⏱️  %s %s in %v\n", req.Method, req.URL.Path, time.Since(startTime))
	return body, resp.StatusCode, nil
}
