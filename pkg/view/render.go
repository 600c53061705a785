package view

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/imbecility/vkr-gateway/pkg/models"
	"github.com/imbecility/vkr-gateway/pkg/utils"
)

const (
	MsgMissingEnvelope = "Issue: Unable to retrieve the download link. " +
		"Please check the URL and contact us on Social Media @TheOfficialVKr."
	MsgServerOverloaded = "Server Down due to Too Many Requests. " +
		"Please contact us on Social Media @TheOfficialVKr."

	// YouTubeThumbnail takes the video id.
	YouTubeThumbnail = "https://i.ytimg.com/vi/%s/hqdefault.jpg"

	maxTitleLen = 50
)

var (
	ErrMissingEnvelope  = errors.New(MsgMissingEnvelope)
	ErrServerOverloaded = errors.New(MsgServerOverloaded)

	unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]`)
	containers     = []string{"mp4", "webm", "m4a", "mp3", "3gp", "mkv", "mov", "ogg", "opus", "aac", "wav", "flv"}
)

// Options control the links produced for each button.
type Options struct {
	// DownloadPath is the route of the download trigger, e.g. "/download".
	// Buttons point straight at the media URL when it is empty.
	DownloadPath string
}

type Preview struct {
	Poster  string
	Sources []string
	YouTube bool
}

type Button struct {
	Label    Text
	Color    string
	FormatID string
	MediaURL string
	Filename string
	Href     string
}

// Result is the rendered payload. Absent metadata fields are empty Text.
type Result struct {
	InputURL    string
	Source      string
	VideoID     string
	IsYouTube   bool
	Thumbnail   string
	Preview     Preview
	Title       Text
	Description Text
	Size        Text
	Uploader    Text
	Extractor   Text
	FormatCount int
	Buttons     []Button
}

// Render maps a successful payload to the view model. It returns ErrMissingEnvelope
// when the payload has no data, and the (still filled) result with ErrServerOverloaded
// when no button could be produced.
func Render(env *models.Envelope, inputURL string, opts Options) (*Result, error) {
	if env == nil || env.Data == nil {
		return nil, ErrMissingEnvelope
	}
	data := env.Data

	res := &Result{
		InputURL:  inputURL,
		Source:    data.Source,
		IsYouTube: utils.IsYouTubeSource(data.Source),
	}
	if data.Source != "" {
		res.VideoID = utils.ExtractVideoID(data.Source)
	}

	res.Thumbnail = data.Thumbnail
	if res.IsYouTube && res.VideoID != "" {
		res.Thumbnail = fmt.Sprintf(YouTubeThumbnail, res.VideoID)
	}

	res.Preview = Preview{
		Poster:  res.Thumbnail,
		YouTube: res.IsYouTube && res.VideoID != "",
	}
	for _, d := range data.Downloads {
		if d.URL != "" {
			res.Preview.Sources = append(res.Preview.Sources, d.URL)
		}
	}

	res.Title = Sanitize(data.Title.String())
	res.Description = Sanitize(data.Description.String())
	res.Size = Sanitize(data.Size.String())
	res.Uploader = Sanitize(data.Uploader.String())
	res.Extractor = Sanitize(data.Extractor.String())
	res.FormatCount = len(data.Downloads)

	res.Buttons = buildButtons(data, opts)
	if len(res.Buttons) == 0 {
		return res, ErrServerOverloaded
	}
	return res, nil
}

func buildButtons(data *models.VideoQueryResult, opts Options) []Button {
	safeTitle := SafeTitle(Sanitize(data.Title.String()).String())
	out := make([]Button, 0, len(data.Downloads))

	for _, d := range data.Downloads {
		if d.URL == "" {
			continue
		}
		if !strings.HasPrefix(d.URL, "http://") && !strings.HasPrefix(d.URL, "https://") {
			slog.Warn("Invalid download URL", "url", d.URL)
			continue
		}

		format := d.FormatID.String()
		if format == "" {
			format = "mp4"
		}
		size := d.Size.String()
		if size == "" {
			size = "Unknown size"
		}

		b := Button{
			Label:    Sanitize(format + " - " + size),
			Color:    ColorFor(colorKey(d.URL, d.FormatID.String())),
			FormatID: d.FormatID.String(),
			MediaURL: d.URL,
			Filename: Filename(safeTitle, format),
		}
		b.Href = b.MediaURL
		if opts.DownloadPath != "" {
			q := url.Values{}
			q.Set("src", b.MediaURL)
			q.Set("name", b.Filename)
			b.Href = opts.DownloadPath + "?" + q.Encode()
		}
		out = append(out, b)
	}
	return out
}

// SafeTitle keeps ASCII letters and digits, replaces the rest with "_" and caps the length.
func SafeTitle(title string) string {
	if title == "" {
		title = "video"
	}
	s := unsafeFilename.ReplaceAllString(title, "_")
	if len(s) > maxTitleLen {
		s = s[:maxTitleLen]
	}
	return s
}

// Filename is "<title>_<format>.<ext>"; ext is the format when it names a container.
func Filename(safeTitle, format string) string {
	ext := "mp4"
	lf := strings.ToLower(format)
	if slices.Contains(containers, lf) {
		ext = lf
	}
	return fmt.Sprintf("%s_%s.%s", safeTitle, unsafeFilename.ReplaceAllString(format, "_"), ext)
}

// WriteText prints the result for terminals.
func (r *Result) WriteText(w io.Writer) error {
	var b strings.Builder
	if !r.Title.Empty() {
		fmt.Fprintf(&b, "Title:       %s\n", r.Title)
	}
	if !r.Size.Empty() {
		fmt.Fprintf(&b, "Size:        %s\n", r.Size)
	}
	if !r.Uploader.Empty() {
		fmt.Fprintf(&b, "Uploader:    %s\n", r.Uploader)
	}
	if !r.Extractor.Empty() {
		fmt.Fprintf(&b, "Extracted via: %s\n", r.Extractor)
	}
	if r.Thumbnail != "" {
		fmt.Fprintf(&b, "Thumbnail:   %s\n", r.Thumbnail)
	}
	if r.FormatCount > 0 {
		fmt.Fprintf(&b, "Available formats: %d\n", r.FormatCount)
	}
	for i, btn := range r.Buttons {
		fmt.Fprintf(&b, "  [%d] %s  %s\n      %s\n", i+1, btn.Label, btn.Filename, btn.MediaURL)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
