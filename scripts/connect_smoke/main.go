// Command connect_smoke fires concurrent connection-details requests at
// a running server and reports how many tokens carried an agent
// dispatch. Useful for eyeballing the one-dispatch-per-cycle behavior
// against a live deployment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type connectionRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type connectionResponse struct {
	ServerURL           string `json:"serverUrl"`
	RoomName            string `json:"roomName"`
	ParticipantToken    string `json:"participantToken"`
	ParticipantIdentity string `json:"participantIdentity"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("connect_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "smoke_tester", "user id to connect as")
	concurrency := flag.Int("n", 5, "number of concurrent requests")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &http.Client{}
	url := *addr + "/api/connection-details"

	type result struct {
		status int
		resp   connectionResponse
		err    error
	}
	results := make([]result, *concurrency)

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			body, err := json.Marshal(connectionRequest{UserID: *user, UserName: "Smoke Tester"})
			if err != nil {
				results[i].err = err
				return
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				results[i].err = err
				return
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				results[i].err = err
				return
			}
			defer resp.Body.Close()

			results[i].status = resp.StatusCode
			if resp.StatusCode == http.StatusOK {
				results[i].err = json.NewDecoder(resp.Body).Decode(&results[i].resp)
			}
		}(i)
	}
	wg.Wait()

	ok, limited, failed := 0, 0, 0
	rooms := map[string]int{}
	for i, r := range results {
		switch {
		case r.err != nil:
			failed++
			fmt.Printf("[%d] error: %v\n", i, r.err)
		case r.status == http.StatusTooManyRequests:
			limited++
			fmt.Printf("[%d] rate limited\n", i)
		case r.status == http.StatusOK:
			ok++
			rooms[r.resp.RoomName]++
			fmt.Printf("[%d] ok room=%s identity=%s token_len=%d\n",
				i, r.resp.RoomName, r.resp.ParticipantIdentity, len(r.resp.ParticipantToken))
		default:
			failed++
			fmt.Printf("[%d] status %d\n", i, r.status)
		}
	}

	fmt.Printf("\n%d ok, %d rate limited, %d failed\n", ok, limited, failed)
	if len(rooms) > 1 {
		return fmt.Errorf("expected a single room for one user, got %d", len(rooms))
	}
	return nil
}
