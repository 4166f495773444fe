package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	wsapi "github.com/satriahrh/cocoa-fruit/companion/adapters/websocket"
)

var (
	serverURL string
	token     string

	apiURL    string
	apiKey    string
	apiSecret string
)

var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Chat with your companion from the terminal",
	Long: `Connects to the companion server's websocket, prints every turn as it
arrives and sends each line typed on stdin as a message. Type /quit to leave.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange account credentials for a session token",
	RunE:  runLogin,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "ws://localhost:8080/ws", "websocket endpoint")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("COMPANION_TOKEN"), "bearer token when the server has an account layer")

	loginCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080/api/v1", "REST base URL")
	loginCmd.Flags().StringVar(&apiKey, "user", "", "account name")
	loginCmd.Flags().StringVar(&apiSecret, "secret", "", "account secret")
	_ = loginCmd.MarkFlagRequired("user")
	_ = loginCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame wsapi.OutboundMessage
			if err := conn.ReadJSON(&frame); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fmt.Fprintln(out, errorStyle.Render("connection closed: "+err.Error()))
				}
				return
			}
			if line := renderFrame(frame); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	fmt.Fprintln(out, systemStyle.Render("Connected. Type a message, /quit to leave."))
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			break
		}
		if err := conn.WriteJSON(wsapi.InboundMessage{Type: wsapi.TypeMessage, Text: text}); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	<-done
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	endpoint, err := url.JoinPath(apiURL, "auth", "token")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("X-API-Secret", apiSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected: %s", resp.Status)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), body.Token)
	return nil
}
