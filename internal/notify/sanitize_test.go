// internal/notify/sanitize_test.go

package notify

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestSanitizeMessageBodyNeverLeaks(t *testing.T) {
    body, data := SanitizePayloadForPrivacy(KindNewMessage, "you free tonight?", Data{
        "senderName": "Alice",
        "content":    "you free tonight?",
        "matchId":    "m-1",
    })

    assert.Equal(t, "Alice sent a message", body)
    assert.NotContains(t, data, "content")
    assert.Equal(t, "m-1", data["matchId"])
    assert.Equal(t, "Alice", data["senderName"])
}

func TestSanitizeMessageFallsBackToSomeone(t *testing.T) {
    body, _ := SanitizePayloadForPrivacy(KindNewMessage, "hi", Data{"content": "hi"})
    assert.Equal(t, "Someone sent a message", body)

    body, data := SanitizePayloadForPrivacy(KindNewMessage, "hi", nil)
    assert.Equal(t, "Someone sent a message", body)
    assert.Empty(t, data)
}

func TestSanitizeOtherKindsPassThrough(t *testing.T) {
    original := Data{"matchId": "m-1", "otherUserId": int64(7)}

    body, data := SanitizePayloadForPrivacy(KindNewMatch, "You have a new match", original)

    assert.Equal(t, "You have a new match", body)
    assert.Equal(t, original, data)
}
