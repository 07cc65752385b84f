// Command chat is an interactive terminal client for the API's chat
// endpoint. Handy for poking at a collection without a frontend.
package main

import (
	"bufio"
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

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	// One-shot mode: remaining args are the prompt.
	if flag.NArg() > 0 {
		if err := ask(client, *apiURL, strings.Join(flag.Args(), " ")); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("connected to", *apiURL, "- empty line or Ctrl-D to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			break
		}
		if err := ask(client, *apiURL, prompt); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func ask(client *http.Client, apiURL, prompt string) error {
	body, err := json.Marshal(chatRequest{Prompt: prompt})
	if err != nil {
		return err
	}

	resp, err := client.Post(apiURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, data)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%d: %s", resp.StatusCode, out.Error)
	}

	fmt.Println(out.Answer)
	return nil
}
