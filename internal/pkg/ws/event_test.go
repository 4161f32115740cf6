package ws

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestDecodePayloadValid(t *testing.T) {
	var p SendMessagePayload
	raw := json.RawMessage(`{"recipient_id": 2, "content": "hello"}`)

	if err := DecodePayload(raw, &p); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if p.RecipientID != 2 || p.Content != "hello" {
		t.Fatalf("解析结果不符: %+v", p)
	}
	if p.ConversationID != 0 {
		t.Fatalf("未携带的会话 ID 应为零值, got %d", p.ConversationID)
	}
}

func TestDecodePayloadMissingRequired(t *testing.T) {
	var p SendMessagePayload
	raw := json.RawMessage(`{"recipient_id": 2}`)

	if err := DecodePayload(raw, &p); err == nil {
		t.Fatal("缺少必填字段应返回校验错误")
	}
}

func TestDecodePayloadMalformedJSON(t *testing.T) {
	var p RegisterPayload
	raw := json.RawMessage(`{"user_id": `)

	if err := DecodePayload(raw, &p); err == nil {
		t.Fatal("残缺 JSON 应返回解析错误")
	}
}

func TestDecodePayloadWrongType(t *testing.T) {
	var p RegisterPayload
	raw := json.RawMessage(`{"user_id": "abc"}`)

	if err := DecodePayload(raw, &p); err == nil {
		t.Fatal("字段类型不符应返回解析错误")
	}
}
