package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"meeting-transcript-service/internal/models"
)

// Manual smoke-test client: uploads a recording to a running service
// instance, follows the run's websocket event feed and prints the finished
// transcript to stdout.

type runEvent struct {
	EventType  string `json:"eventType"`
	ChunkIndex int    `json:"chunkIndex"`
	Status     string `json:"status"`
	Backend    string `json:"backend,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	State      string `json:"state,omitempty"`
	Error      string `json:"error,omitempty"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample.wav", "Path to the recording to upload")
	serverAddr := flag.String("server", "localhost:8080", "Service host:port")
	format := flag.String("format", "txt", "Transcript format to fetch: txt|md|srt")
	backends := flag.String("backends", "", "Comma-separated backend override for this run")
	timeout := flag.Duration("timeout", 10*time.Minute, "How long to wait for the run to finish")
	flag.Parse()

	record, err := upload("http://"+*serverAddr, *audioFile, *backends)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("Run accepted: id=%s state=%s", record.ID, record.State)

	state, err := watch("ws://"+*serverAddr, record.ID, *timeout)
	if err != nil {
		log.Fatalf("Event feed failed: %v", err)
	}
	if state != string(models.RunStateCompleted) {
		log.Fatalf("Run finished as %s", state)
	}

	body, err := fetchExport("http://"+*serverAddr, record.ID, *format)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	fmt.Print(body)
}

// upload posts the recording as a multipart form and returns the accepted
// run record.
func upload(baseURL, path, backends string) (*models.RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if backends != "" {
		if err := mw.WriteField("backends", backends); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(baseURL+"/v1/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var record models.RunRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

// watch subscribes to the run's event feed and logs every chunk transition
// until the run reaches a terminal state.
func watch(baseURL, runID string, timeout time.Duration) (string, error) {
	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/v1/transcriptions/"+runID+"/events", nil)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(timeout))

	for {
		var ev runEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return "", err
		}
		switch ev.EventType {
		case models.EventChunkProgress:
			if ev.Error != "" {
				log.Printf("chunk %d: %s backend=%s attempt=%d error=%q",
					ev.ChunkIndex, ev.Status, ev.Backend, ev.Attempt, ev.Error)
			} else {
				log.Printf("chunk %d: %s backend=%s attempt=%d",
					ev.ChunkIndex, ev.Status, ev.Backend, ev.Attempt)
			}
		case models.EventRunCompleted:
			log.Printf("Run %s finished: state=%s", runID, ev.State)
			return ev.State, nil
		}
	}
}

func fetchExport(baseURL, runID, format string) (string, error) {
	resp, err := http.Get(baseURL + "/v1/transcriptions/" + runID + "/export?format=" + format)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
