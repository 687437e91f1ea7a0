package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpost/internal/format"
)

var sample = &format.Message{
	Blocks: []format.Block{
		{Type: format.BlockSection, Text: "*Standup*\n09:30 AM - 09:45 AM"},
		{Type: format.BlockDivider},
	},
	Fallback: "Standup\n09:30 AM - 09:45 AM",
}

func TestNewSlack_Validation(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		channel string
		wantErr bool
	}{
		{"valid", "xoxb-test", "C1", false},
		{"empty token", "", "C1", true},
		{"empty channel", "xoxb-test", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSlack(tt.token, tt.channel, "")
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestSlackPublisher_Publish(t *testing.T) {
	var gotChannel, gotText string
	var gotBlocks []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotChannel = r.Form.Get("channel")
		gotText = r.Form.Get("text")
		require.NoError(t, json.Unmarshal([]byte(r.Form.Get("blocks")), &gotBlocks))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1.2"}`))
	}))
	defer srv.Close()

	p, err := NewSlack("xoxb-test", "C1", srv.URL)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), sample))

	assert.Equal(t, "C1", gotChannel)
	assert.Equal(t, sample.Fallback, gotText)
	require.Len(t, gotBlocks, 2)
	assert.Equal(t, "section", gotBlocks[0]["type"])
	text, ok := gotBlocks[0]["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mrkdwn", text["type"])
	assert.Equal(t, "*Standup*\n09:30 AM - 09:45 AM", text["text"])
	assert.Equal(t, "divider", gotBlocks[1]["type"])
}

func TestSlackPublisher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	p, err := NewSlack("xoxb-test", "C404", srv.URL+"/")
	require.NoError(t, err)

	err = p.Publish(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackPublisher_NilMessageSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p, err := NewSlack("xoxb-test", "C1", srv.URL)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), nil))
	assert.False(t, called)
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewDryRun(&buf)

	require.NoError(t, p.Publish(context.Background(), sample))
	require.NoError(t, p.Publish(context.Background(), nil))

	assert.Equal(t, "*Standup*\n09:30 AM - 09:45 AM\n----\n", buf.String())
}
