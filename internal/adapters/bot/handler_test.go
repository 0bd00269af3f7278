package bot

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/usecase/capture"
)

func TestParseCommand(t *testing.T) {
	cases := map[string]string{
		"/start_session":            "/start_session",
		"/START_SESSION":            "/start_session",
		"/close@ScheduleCaptureBot": "/close",
		"  /Done@bot  ":             "/done",
		"/close extra words":        "/close",
	}
	for input, expected := range cases {
		cmd, ok := ParseCommand(input)
		if !ok {
			t.Fatalf("expected command for %q", input)
		}
		if cmd != expected {
			t.Fatalf("expected %q, got %q", expected, cmd)
		}
	}
}

func TestParseCommandPlainText(t *testing.T) {
	if _, ok := ParseCommand("hello there"); ok {
		t.Fatal("plain text must not parse as a command")
	}
	if _, ok := ParseCommand(""); ok {
		t.Fatal("empty text must not parse as a command")
	}
}

func TestClosedReplyMentionsImageCount(t *testing.T) {
	reply := closedReply("abc", 3)
	if !strings.Contains(reply, "3 image(s)") {
		t.Fatalf("expected image count in reply, got %q", reply)
	}
}

func TestStoredReplySingleUploadSuffix(t *testing.T) {
	res := capture.UploadResult{
		Session: domain.CaptureSession{ID: uuid.New()},
		Image:   domain.CaptureImage{Sequence: 1},
		Mode:    capture.UploadModeSingle,
	}
	reply := storedReply(res)
	if !strings.Contains(reply, "single-upload mode") {
		t.Fatalf("expected single-upload suffix, got %q", reply)
	}

	res.Mode = capture.UploadModeMulti
	res.Image.Sequence = 2
	reply = storedReply(res)
	if strings.Contains(reply, "single-upload mode") {
		t.Fatalf("unexpected single-upload suffix in %q", reply)
	}
	if !strings.Contains(reply, "Stored image 2") {
		t.Fatalf("expected sequence in reply, got %q", reply)
	}
}

func TestExtractUploadFile(t *testing.T) {
	photoMsg := &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
		{FileID: "small"},
		{FileID: "large"},
	}}
	fileID, contentType, ok := extractUploadFile(photoMsg)
	if !ok || fileID != "large" || contentType != "image/jpeg" {
		t.Fatalf("unexpected photo extraction: %s %s %v", fileID, contentType, ok)
	}

	docMsg := &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/png"}}
	fileID, contentType, ok = extractUploadFile(docMsg)
	if !ok || fileID != "doc" || contentType != "image/png" {
		t.Fatalf("unexpected document extraction: %s %s %v", fileID, contentType, ok)
	}

	pdfMsg := &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"}}
	if _, _, ok := extractUploadFile(pdfMsg); ok {
		t.Fatal("non-image document must be rejected")
	}

	textMsg := &tgbotapi.Message{Text: "hi"}
	if _, _, ok := extractUploadFile(textMsg); ok {
		t.Fatal("text message must be rejected")
	}
}
