package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI answers getMe and sendMessage the way the Bot API does
func fakeBotAPI(t *testing.T, sendOK bool, sent *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"tracker","username":"tracker_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if !sendOK {
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			*sent = append(*sent, r.FormValue("text"))
			assert.Equal(t, "HTML", r.FormValue("parse_mode"))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var sent []string
	server := fakeBotAPI(t, true, &sent)
	defer server.Close()

	n, err := NewTelegramNotifier("token", 42, server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)

	p := driverPosting
	p.Title = "Driver <urgent>"
	require.NoError(t, n.Notify(context.Background(), p))

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "<b>Driver &lt;urgent&gt;</b>")
	assert.Contains(t, sent[0], "a@b.com")
	assert.Contains(t, sent[0], driverPosting.URL)
}

func TestTelegramNotifier_SendFailure(t *testing.T) {
	var sent []string
	server := fakeBotAPI(t, false, &sent)
	defer server.Close()

	n, err := NewTelegramNotifier("token", 42, server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)

	err = n.Notify(context.Background(), driverPosting)
	var notifyErr *NotifyError
	require.True(t, errors.As(err, &notifyErr))
	assert.Equal(t, "telegram", notifyErr.Destination)
}
