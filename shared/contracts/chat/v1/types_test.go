package v1

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantErr string
		want    Frame
	}{
		{
			name: "message",
			in:   `{"type":"message","content":"Hi","message_type":"text"}`,
			want: Frame{Type: FrameMessage, Content: "Hi", MessageType: KindText},
		},
		{
			name: "typing",
			in:   `{"type":"typing"}`,
			want: Frame{Type: FrameTyping},
		},
		{
			name: "read",
			in:   `{"type":"read","message_id":"abc"}`,
			want: Frame{Type: FrameRead, MessageID: "abc"},
		},
		{
			name:    "bad json",
			in:      `{"type":`,
			wantErr: "invalid JSON",
		},
		{
			name:    "missing type",
			in:      `{"content":"Hi"}`,
			wantErr: "missing field: type",
		},
		{
			name:    "unknown type",
			in:      `{"type":"dance"}`,
			wantErr: "unknown type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFrame([]byte(tc.in))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err=%v want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got=%+v want=%+v", got, tc.want)
			}
		})
	}
}

func TestClosedSets(t *testing.T) {
	t.Parallel()

	if !ValidRole(RoleClient) || !ValidRole(RoleArtist) {
		t.Fatal("client and artist must be valid roles")
	}
	// The administrative role never opens a live session.
	if ValidRole("admin") || ValidRole("") {
		t.Fatal("roles outside the closed set must be rejected")
	}

	for _, k := range []string{KindText, KindImage, KindBookingLink} {
		if !ValidKind(k) {
			t.Fatalf("kind %q must be valid", k)
		}
	}
	if ValidKind("video") || ValidKind("") {
		t.Fatal("kinds outside the closed set must be rejected")
	}
}

func TestNewEventShape(t *testing.T) {
	t.Parallel()

	evt, err := NewEvent(EventMessage, MessagePayload{
		ID:          "m1",
		RoomID:      "r1",
		SenderType:  RoleClient,
		SenderID:    "c1",
		Content:     "Hi",
		MessageType: KindText,
		Timestamp:   "2025-01-02T03:04:05Z",
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type    string         `json:"type"`
		Payload MessagePayload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != EventMessage {
		t.Fatalf("type=%q want %q", decoded.Type, EventMessage)
	}
	if decoded.Payload.ID != "m1" || decoded.Payload.Content != "Hi" || decoded.Payload.SenderID != "c1" {
		t.Fatalf("payload round-trip mismatch: %+v", decoded.Payload)
	}
}
