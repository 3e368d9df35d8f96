package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memepool/pool-engine/internal/api"
	"github.com/memepool/pool-engine/internal/model"
	"github.com/memepool/pool-engine/internal/pool"
)

func TestWSHub_BroadcastsEvents(t *testing.T) {
	hub := api.NewWSHub()
	go hub.Run()
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Notify(pool.Event{
		Type:   pool.EventWinnerDeclared,
		PoolID: 3,
		Caller: alice,
		Phase:  model.PhaseDeclared,
		Winner: bob,
		Amount: "180",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg api.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Type != pool.EventWinnerDeclared || msg.PoolID != 3 || msg.Winner != bob.Hex() {
		t.Errorf("unexpected message: %+v", msg)
	}
}
