package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	// Register charset decoders (windows-1252, iso-8859-*, koi8-r, etc.)
	_ "github.com/emersion/go-message/charset"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// Normalize converts raw RFC 5322 bytes into a Message. It performs no I/O.
//
// Encoded headers are decoded to UTF-8. For multipart messages the body is
// the concatenation of every inline text/plain part in part order; HTML
// alternatives and attachments are ignored. A non-multipart message
// contributes its single decoded payload whatever its type.
func Normalize(id string, raw []byte) (model.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return model.Message{}, fmt.Errorf("parsing message: %w", err)
	}
	if mr == nil {
		return model.Message{}, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	msg := model.Message{ID: id}

	h := mr.Header
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	msg.Sender = senderAddress(h)
	if to, err := h.Text("To"); err == nil {
		msg.Recipient = to
	} else {
		msg.Recipient = h.Get("To")
	}
	if date, err := h.Date(); err == nil {
		msg.SentAt = date
	}

	multipart := false
	if mediaType, _, err := h.ContentType(); err == nil {
		multipart = strings.HasPrefix(mediaType, "multipart/")
	}

	body, err := plainText(mr, multipart)
	if err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(body) == "" {
		return model.Message{}, ErrEmptyBody
	}
	msg.Body = body

	return msg, nil
}

func plainText(mr *mail.Reader, multipart bool) (string, error) {
	var b strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		// An unknown charset still yields the part, undecoded.
		if err != nil && (part == nil || !message.IsUnknownCharset(err)) {
			if b.Len() > 0 {
				// Keep what was decoded before the damaged part.
				break
			}
			return "", fmt.Errorf("reading message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if multipart {
			mediaType, _, _ := h.ContentType()
			if mediaType != "text/plain" {
				continue
			}
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		b.Write(data)
	}
	return b.String(), nil
}

// senderAddress returns the bare From address without display name.
func senderAddress(h mail.Header) string {
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		return addrs[0].Address
	}
	return bareAddress(h.Get("From"))
}

// bareAddress extracts "a@b" from loosely formatted "Name <a@b>" text.
func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			return strings.TrimSpace(s[open+1 : open+end])
		}
	}
	return s
}
