package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

func TestSlackAdapter_Name(t *testing.T) {
	a := NewSlackAdapter(nil)
	assert.Equal(t, types.ChannelSlack, a.Name())
}

func TestSlackAdapter_BuildPayload_Structure(t *testing.T) {
	a := NewSlackAdapter(nil)
	caller := testCaller()
	cfg := caller.Channels[types.ChannelSlack]
	msg := testMessage()

	payload := a.buildPayload(caller, cfg, msg)

	assert.Equal(t, "New RSVP received", payload.Text)
	require.Len(t, payload.Attachments, 1)

	att := payload.Attachments[0]
	assert.Equal(t, slackDefaultColor, att.Color)
	require.Len(t, att.Blocks, 4)

	header := att.Blocks[0]
	assert.Equal(t, "header", header.Type)
	require.NotNil(t, header.Text)
	assert.Equal(t, "plain_text", header.Text.Type)
	assert.Equal(t, "New RSVP received", header.Text.Text)

	body := att.Blocks[1]
	assert.Equal(t, "section", body.Type)
	require.NotNil(t, body.Text)
	assert.Equal(t, "mrkdwn", body.Text.Type)
	assert.Equal(t, msg.Body, body.Text.Text)

	fields := att.Blocks[2]
	assert.Equal(t, "section", fields.Type)
	require.Len(t, fields.Fields, 4)
	assert.Equal(t, "*From*\nAda Lovelace", fields.Fields[0].Text)
	assert.Equal(t, "*Email*\nada@example.com", fields.Fields[1].Text)
	assert.Equal(t, "*dietary*\nvegetarian", fields.Fields[2].Text)
	assert.Equal(t, "*guests*\n2", fields.Fields[3].Text)

	footer := att.Blocks[3]
	assert.Equal(t, "context", footer.Type)
	require.Len(t, footer.Elements, 1)
	assert.Equal(t, "Wedding RSVP | herald", footer.Elements[0].Text)
}

func TestSlackAdapter_BuildPayload_NoFieldsBlock(t *testing.T) {
	a := NewSlackAdapter(nil)
	caller := testCaller()
	cfg := caller.Channels[types.ChannelSlack]
	msg := testMessage()
	msg.SenderName = nil
	msg.SenderEmail = nil
	msg.Metadata = nil

	payload := a.buildPayload(caller, cfg, msg)

	require.Len(t, payload.Attachments, 1)
	blocks := payload.Attachments[0].Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, "header", blocks[0].Type)
	assert.Equal(t, "section", blocks[1].Type)
	assert.Equal(t, "context", blocks[2].Type)
}

func TestSlackAdapter_BuildPayload_ConfigOverrides(t *testing.T) {
	a := NewSlackAdapter(nil)
	caller := testCaller()
	cfg := types.ChannelConfig{
		WebhookURL:  "https://hooks.slack.com/services/T000/B000/XXXX",
		AccentColor: "#FF0000",
		Footer:      "Guest list changes",
	}

	payload := a.buildPayload(caller, cfg, testMessage())

	require.Len(t, payload.Attachments, 1)
	att := payload.Attachments[0]
	assert.Equal(t, "#FF0000", att.Color)

	footer := att.Blocks[len(att.Blocks)-1]
	assert.Equal(t, "Guest list changes | herald", footer.Elements[0].Text)
}

func TestSlackAdapter_ValidateResponse(t *testing.T) {
	a := NewSlackAdapter(nil)

	tests := []struct {
		name       string
		statusCode int
		body       []byte
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "success - ok text",
			statusCode: 200,
			body:       []byte("ok"),
			wantErr:    false,
		},
		{
			name:       "success - empty body",
			statusCode: 200,
			body:       []byte(""),
			wantErr:    false,
		},
		{
			name:       "soft failure - no_text",
			statusCode: 200,
			body:       []byte("no_text"),
			wantErr:    true,
			errMsg:     "no_text",
		},
		{
			name:       "soft failure - channel_not_found",
			statusCode: 200,
			body:       []byte("channel_not_found"),
			wantErr:    true,
			errMsg:     "channel_not_found",
		},
		{
			name:       "soft failure - JSON ok false",
			statusCode: 200,
			body:       []byte(`{"ok":false,"error":"invalid_token"}`),
			wantErr:    true,
			errMsg:     "invalid_token",
		},
		{
			name:       "JSON ok true",
			statusCode: 200,
			body:       []byte(`{"ok":true}`),
			wantErr:    false,
		},
		{
			name:       "404 no_service",
			statusCode: 404,
			body:       []byte("no_service"),
			wantErr:    true,
			errMsg:     "status 404: no_service",
		},
		{
			name:       "500 server error",
			statusCode: 500,
			body:       []byte("internal error"),
			wantErr:    true,
			errMsg:     "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.validateResponse(tt.statusCode, tt.body)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlackAdapter_Send_NotConfigured(t *testing.T) {
	a := NewSlackAdapter(nil)
	caller := testCaller()
	delete(caller.Channels, types.ChannelSlack)

	res := a.Send(context.Background(), caller, testMessage())

	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorText, "no slack channel")
}
