package chat

import (
	"testing"

	v1 "inkroom/shared/contracts/chat/v1"
)

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         string
		roomID     string
		senderType string
		senderID   string
		wantErr    bool
	}{
		{name: "valid client", id: "s1", roomID: "r1", senderType: v1.RoleClient, senderID: "c1"},
		{name: "valid artist", id: "s1", roomID: "r1", senderType: v1.RoleArtist, senderID: "a1"},
		{name: "trims whitespace", id: "s1", roomID: " r1 ", senderType: " client ", senderID: " c1 "},
		{name: "empty id", id: "", roomID: "r1", senderType: v1.RoleClient, senderID: "c1", wantErr: true},
		{name: "empty room", id: "s1", roomID: "  ", senderType: v1.RoleClient, senderID: "c1", wantErr: true},
		// ':' is the storage key namespace separator: a room named
		// "x:pending" would alias room x's pending prefix.
		{name: "room id with separator", id: "s1", roomID: "x:pending", senderType: v1.RoleClient, senderID: "c1", wantErr: true},
		{name: "role outside closed set", id: "s1", roomID: "r1", senderType: "admin", senderID: "c1", wantErr: true},
		{name: "empty sender id", id: "s1", roomID: "r1", senderType: v1.RoleClient, senderID: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sess, err := NewSession(tt.id, tt.roomID, tt.senderType, tt.senderID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewSession succeeded: %+v", sess)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSession: %v", err)
			}
			if sess.RoomID != "r1" || sess.SenderID == "" {
				t.Fatalf("session=%+v", sess)
			}
		})
	}
}
