package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

func TestHandleMessageBook(t *testing.T) {
	w := NewWSClient("ws://unused")
	var got []BookEvent
	w.OnBook(func(ev BookEvent) { got = append(got, ev) })

	frame := `[{"event_type":"book","asset_id":"111","market":"0xabc",
		"bids":[{"price":"0.48","size":"100"},{"price":"bad","size":"1"}],
		"asks":[{"price":"0.52","size":"40"}],
		"timestamp":"1700000000123"}]`
	w.handleMessage([]byte(frame))

	if len(got) != 1 {
		t.Fatalf("got %d book events, want 1", len(got))
	}
	ev := got[0]
	if ev.TokenID != "111" || len(ev.Bids) != 1 || len(ev.Asks) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Bids[0] != (domain.PriceLevel{Price: 0.48, Size: 100}) {
		t.Fatalf("unexpected bid level: %+v", ev.Bids[0])
	}
	if !ev.Timestamp.Equal(time.UnixMilli(1700000000123)) {
		t.Fatalf("unexpected timestamp: %v", ev.Timestamp)
	}
}

func TestHandleMessagePriceChange(t *testing.T) {
	w := NewWSClient("ws://unused")
	var got []domain.PriceChange
	w.OnPriceChange(func(pc domain.PriceChange) { got = append(got, pc) })

	w.handleMessage([]byte(`{"event_type":"price_change","market":"0xabc","timestamp":"1700000000",
		"price_changes":[
			{"asset_id":"111","side":"BUY","price":"0.49","size":"25"},
			{"asset_id":"222","side":"SELL","price":"0.53","size":"0"},
			{"asset_id":"222","side":"HOLD","price":"0.53","size":"1"}
		]}`))
	w.handleMessage([]byte(`{"msg_type":"price_change","asset_id":"111","side":"SELL","price":"0.55","size":"7"}`))
	w.handleMessage([]byte(`not json`))

	if len(got) != 3 {
		t.Fatalf("got %d changes, want 3: %+v", len(got), got)
	}
	if got[0].TokenID != "111" || got[0].Side != domain.OrderSideBuy || got[0].Size != 25 {
		t.Fatalf("unexpected first change: %+v", got[0])
	}
	if got[1].Size != 0 || got[1].Side != domain.OrderSideSell {
		t.Fatalf("level removal not decoded: %+v", got[1])
	}
	if !got[0].Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp: %v", got[0].Timestamp)
	}
}

func TestSubscribeSendsMarketCommand(t *testing.T) {
	upgrader := websocket.Upgrader{}
	cmds := make(chan WSCommand, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd WSCommand
			if json.Unmarshal(data, &cmd) == nil {
				cmds <- cmd
			}
		}
	}))
	defer srv.Close()

	client := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := client.Subscribe(ctx, []string{"111", "222"}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := client.Subscribe(ctx, []string{"333"}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := client.Unsubscribe(ctx, []string{"111"}); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	want := []WSCommand{
		{Type: "market", Assets: []string{"111", "222"}},
		{Operation: "subscribe", Assets: []string{"333"}},
		{Operation: "unsubscribe", Assets: []string{"111"}},
	}
	for i, w := range want {
		select {
		case got := <-cmds:
			if got.Type != w.Type || got.Operation != w.Operation || strings.Join(got.Assets, ",") != strings.Join(w.Assets, ",") {
				t.Fatalf("command %d = %+v, want %+v", i, got, w)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for command %d", i)
		}
	}

	if got := strings.Join(client.Assets(), ","); got != "222,333" {
		t.Fatalf("tracked assets = %s, want 222,333", got)
	}
}
