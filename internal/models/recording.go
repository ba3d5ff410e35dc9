package models

// RecordingBlob is a finished capture handed over at session end. It is
// ephemeral: once uploaded the local copy may be discarded.
type RecordingBlob struct {
	Data     []byte
	MimeType string
}

// Empty reports whether there is nothing to upload.
func (b *RecordingBlob) Empty() bool {
	return b == nil || len(b.Data) == 0
}
