package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"

	"feedsync/internal/models"
)

// Attachment is a file part of a post form.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Form is an encoded multipart body ready to send.
type Form struct {
	Body        []byte
	ContentType string
}

// Reader returns a fresh reader over the encoded body.
func (f *Form) Reader() io.Reader {
	return bytes.NewReader(f.Body)
}

// NewPostForm encodes a post creation body: a content field, zero or more
// "images" parts and at most one "video" part.
func NewPostForm(content string, images []Attachment, video *Attachment) (*Form, error) {
	if strings.TrimSpace(content) == "" && len(images) == 0 && video == nil {
		return nil, models.NewValidationError("Post must have content or media")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("content", content); err != nil {
		return nil, fmt.Errorf("write content field: %w", err)
	}
	for i := range images {
		if err := writeFile(w, "images", images[i]); err != nil {
			return nil, err
		}
	}
	if video != nil {
		if err := writeFile(w, "video", *video); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &Form{Body: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}

func writeFile(w *multipart.Writer, field string, a Attachment) error {
	name := filepath.Base(a.Name)
	if name == "." || name == "/" || name == "" {
		name = field
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}
