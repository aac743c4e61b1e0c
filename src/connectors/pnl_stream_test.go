package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"allocengine/src/model"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestPnLStreamDeliversUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		frames := []string{
			`{"account_id":1,"daily_realized":"-6000","drawdown":"-6000"}`,
			`not json`,
			`{"account_id":0,"daily_realized":"-1"}`,
			`{"account_id":2,"daily_realized":"250","drawdown":"0"}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *model.PnLUpdate, 4)
	stream := NewPnLStream(wsURL)

	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, func(_ context.Context, u *model.PnLUpdate) error {
			got <- u
			return nil
		})
	}()

	first := waitUpdate(t, got)
	if first.AccountID != 1 || !first.DailyRealized.Equal(decimalFromString(t, "-6000")) {
		t.Fatalf("unexpected first update: %+v", first)
	}

	// The malformed and zero-account frames were skipped.
	second := waitUpdate(t, got)
	if second.AccountID != 2 {
		t.Fatalf("unexpected second update: %+v", second)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}

func waitUpdate(t *testing.T, ch chan *model.PnLUpdate) *model.PnLUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update")
		return nil
	}
}
