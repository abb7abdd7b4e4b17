package imap

import "time"

// Message is a message fetched from the source folder. UID addresses it for
// the move once it has been handled; Raw is the full RFC 5322 text.
type Message struct {
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Raw     []byte
}
