package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"snipebot/internal/transport"
	"snipebot/pkg/logx"
)

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSendOptionsMapping(t *testing.T) {
	t.Parallel()

	// nil options default to an audible message.
	got := sendOptions(nil)
	if got.DisableNotification {
		t.Fatal("nil options should be audible")
	}

	got = sendOptions(&transport.SendOptions{Audible: false, DisablePreview: true, ParseMode: "HTML"})
	if !got.DisableNotification {
		t.Fatal("silent preference not mapped")
	}
	if !got.DisableWebPagePreview || got.ParseMode != "HTML" {
		t.Fatalf("options mapped wrong: %+v", got)
	}

	got = sendOptions(&transport.SendOptions{Audible: true})
	if got.DisableNotification {
		t.Fatal("audible preference not mapped")
	}
}

func TestUserFromChat(t *testing.T) {
	t.Parallel()
	u := userFromChat(&tele.Chat{ID: 123456, Username: "someone", FirstName: "Some"})
	if u.ID != "123456" || u.Username != "someone" || u.FirstName != "Some" {
		t.Fatalf("user = %+v", u)
	}
}
