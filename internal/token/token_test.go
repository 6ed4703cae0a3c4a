package token

import (
	"errors"
	"testing"
	"time"

	"github.com/sugunalabs/callserver/internal/domain"
)

var testKey = []byte("carrier-grade-secret-12345")

func TestIssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		role       domain.Role
		wantGrants domain.Grants
	}{
		{
			name:       "host gets full grants",
			role:       domain.RoleHost,
			wantGrants: domain.Grants{CanPublish: true, CanSubscribe: true, CanPublishData: true},
		},
		{
			name:       "audience subscribes only",
			role:       domain.RoleAudience,
			wantGrants: domain.Grants{CanSubscribe: true},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			signed, err := Issue(testKey, "friendzone_001", "room_u1_17", "u2", test.role, time.Hour)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			claims, err := Verify(testKey, signed, "room_u1_17", "friendzone_001")
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.Identity != "u2" {
				t.Errorf("identity: got %q, want %q", claims.Identity, "u2")
			}
			if claims.Grants != test.wantGrants {
				t.Errorf("grants: got %+v, want %+v", claims.Grants, test.wantGrants)
			}
		})
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	t.Parallel()
	signed, err := Issue(testKey, "friendzone_001", "room_u1_17", "u2", domain.RoleHost, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired, err := Issue(testKey, "friendzone_001", "room_u1_17", "u2", domain.RoleHost, -time.Minute)
	if err != nil {
		t.Fatalf("Issue expired: %v", err)
	}

	tests := []struct {
		name    string
		key     []byte
		token   string
		room    domain.RoomID
		app     domain.AppID
		wantErr error
	}{
		{name: "missing token", key: testKey, token: "", room: "room_u1_17", app: "friendzone_001", wantErr: ErrInvalidToken},
		{name: "garbage token", key: testKey, token: "abc.def.ghi", room: "room_u1_17", app: "friendzone_001", wantErr: ErrInvalidToken},
		{name: "wrong key", key: []byte("other-key"), token: signed, room: "room_u1_17", app: "friendzone_001", wantErr: ErrInvalidToken},
		{name: "expired", key: testKey, token: expired, room: "room_u1_17", app: "friendzone_001", wantErr: ErrInvalidToken},
		{name: "room mismatch", key: testKey, token: signed, room: "room_other", app: "friendzone_001", wantErr: ErrRoomMismatch},
		{name: "tenant mismatch", key: testKey, token: signed, room: "room_u1_17", app: "other_app", wantErr: ErrTenantMismatch},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := Verify(test.key, test.token, test.room, test.app)
			if !errors.Is(err, test.wantErr) {
				t.Errorf("Verify: got %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestVerifySkipsRoomCheckForChannelTokens(t *testing.T) {
	t.Parallel()
	signed, err := Issue(testKey, "friendzone_001", "", "u2", domain.RoleSignaling, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := Verify(testKey, signed, "", "friendzone_001")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Grants != (domain.Grants{}) {
		t.Errorf("signaling token carries media grants: %+v", claims.Grants)
	}
}
