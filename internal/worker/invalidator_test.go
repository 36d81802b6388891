package worker

import (
	"context"
	"testing"

	"fintrack/internal/amqp"
)

type recordingInvalidator struct{ users []string }

func (r *recordingInvalidator) Invalidate(userID string) { r.users = append(r.users, userID) }

func TestCacheInvalidator(t *testing.T) {
	tests := []struct {
		typ        amqp.EventType
		invalidate bool
	}{
		{amqp.EventBalanceChanged, true},
		{amqp.EventTransactionRecorded, true},
		{amqp.EventTransactionRemoved, true},
		{amqp.EventLedgerSyncRequested, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			inv := &recordingInvalidator{}
			handle := NewCacheInvalidator(inv)

			if err := handle(context.Background(), amqp.NewLedgerEvent(tt.typ, "u1")); err != nil {
				t.Fatalf("handler returned %v", err)
			}
			if tt.invalidate && (len(inv.users) != 1 || inv.users[0] != "u1") {
				t.Errorf("invalidated %v, want [u1]", inv.users)
			}
			if !tt.invalidate && len(inv.users) != 0 {
				t.Errorf("invalidated %v, want nothing", inv.users)
			}
		})
	}
}
