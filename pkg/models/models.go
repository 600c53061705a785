package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Envelope is the success shape of every downloader API: {"data": {...}}.
// Data stays nil when the payload lacks the envelope.
type Envelope struct {
	Data  *VideoQueryResult `json:"data"`
	Error string            `json:"error,omitempty"`
}

type VideoQueryResult struct {
	Source      string           `json:"source"`
	Title       FlexString       `json:"title,omitempty"`
	Description FlexString       `json:"description,omitempty"`
	Size        FlexString       `json:"size,omitempty"`
	Uploader    FlexString       `json:"uploader,omitempty"`
	Extractor   FlexString       `json:"extractor,omitempty"`
	Thumbnail   string           `json:"thumbnail,omitempty"`
	Downloads   []DownloadOption `json:"downloads"`
}

// DownloadOption keeps the order of the remote API; duplicates are allowed.
type DownloadOption struct {
	URL      string     `json:"url"`
	FormatID FlexString `json:"format_id,omitempty"`
	Size     FlexString `json:"size,omitempty"`
}

// FlexString accepts JSON strings, numbers and booleans. The upstream APIs
// are not consistent about "size" and "format_id" types.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")) {
		*f = FlexString(b)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// APIResponse is returned by the JSON query route of the server.
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// Endpoint is the name of the endpoint that answered.
	Endpoint string            `json:"endpoint,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
	VideoID  string            `json:"video_id,omitempty"`
	Platform string            `json:"platform,omitempty"`
	Data     *VideoQueryResult `json:"data,omitempty"`
}
