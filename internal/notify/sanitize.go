// internal/notify/sanitize.go

package notify

import "fmt"

// SanitizePayloadForPrivacy rewrites outbound notification content so that
// message bodies never leak into push surfaces. For NEW_MESSAGE the body
// becomes "<senderName> sent a message" and the content field is stripped
// from the data blob. Other kinds pass through untouched.
func SanitizePayloadForPrivacy(kind, body string, data Data) (string, Data) {
    if kind != KindNewMessage {
        return body, data
    }

    senderName := "Someone"
    if data != nil {
        if v, ok := data["senderName"].(string); ok && v != "" {
            senderName = v
        }
    }

    sanitized := make(Data, len(data))
    for k, v := range data {
        if k == "content" {
            continue
        }
        sanitized[k] = v
    }
    return fmt.Sprintf("%s sent a message", senderName), sanitized
}
