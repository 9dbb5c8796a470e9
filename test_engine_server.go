package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Fake transcription engine for local development. It accepts the websocket
// stream, counts inbound audio, and emits scripted interim/final results in
// the engine wire format. Run it and point the engine URL at
// ws://localhost:9000/stream.

type configMessage struct {
	RequestID string `json:"request_id"`
	Config    struct {
		Encoding        string `json:"encoding"`
		SampleRateHertz int    `json:"sample_rate_hertz"`
		LanguageCode    string `json:"language_code"`
		InterimResults  bool   `json:"interim_results"`
	} `json:"config"`
}

type streamingResponse struct {
	Results []streamingResult `json:"results"`
}

type streamingResult struct {
	Alternatives  []alternative `json:"alternatives"`
	IsFinal       bool          `json:"is_final"`
	ResultEndTime wireDuration  `json:"result_end_time"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type wireDuration struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var script = []string{
	"안녕", "안녕하세요", "안녕하세요 여러분", "안녕하세요 여러분 오늘도",
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	msgType, payload, err := conn.ReadMessage()
	if err != nil || msgType != websocket.TextMessage {
		log.Printf("expected config frame, got type %d err %v", msgType, err)
		return
	}

	var cfg configMessage
	if err := json.Unmarshal(payload, &cfg); err != nil {
		log.Printf("bad config frame: %v", err)
		return
	}

	log.Printf("🎤 STREAM OPENED:")
	log.Printf("    Request ID: %s", cfg.RequestID)
	log.Printf("    Encoding: %s @ %d Hz", cfg.Config.Encoding, cfg.Config.SampleRateHertz)
	log.Printf("    Language: %s", cfg.Config.LanguageCode)
	log.Printf("    Interim results: %v", cfg.Config.InterimResults)

	start := time.Now()
	totalBytes := 0
	step := 0

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			log.Printf("❌ STREAM CLOSED after %d bytes: %v", totalBytes, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		totalBytes += len(payload)

		// One scripted result per audio payload, final every fourth step.
		endTime := time.Since(start)
		resp := streamingResponse{
			Results: []streamingResult{{
				Alternatives: []alternative{{Transcript: script[step%len(script)]}},
				IsFinal:      step%len(script) == len(script)-1,
				ResultEndTime: wireDuration{
					Seconds: int64(endTime / time.Second),
					Nanos:   int32(endTime % time.Second),
				},
			}},
		}
		step++

		data, _ := json.Marshal(resp)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("write failed: %v", err)
			return
		}
		if resp.Results[0].IsFinal {
			log.Printf("✅ FINAL RESULT SENT: '%s' (%d audio bytes so far)",
				resp.Results[0].Alternatives[0].Transcript, totalBytes)
		}
	}
}

func main() {
	http.HandleFunc("/stream", streamHandler)

	port := ":9000"
	log.Printf("🚀 Test Engine Server starting on port %s", port)
	log.Printf("📡 Endpoint: ws://localhost%s/stream", port)
	log.Println("💡 Update your config to use: ws://localhost:9000/stream")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
