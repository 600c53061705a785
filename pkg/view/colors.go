package view

import (
	"net/url"
	"slices"
)

const (
	ColorGreen   = "green"
	ColorBlue    = "#3800ff"
	ColorDefault = "#3f5974"
)

var (
	greenFormats = []string{"17", "18", "22"}
	blueFormats  = []string{"139", "140", "141", "249", "250", "251", "599", "600"}
)

// ColorFor maps a format id (itag) to the button background.
func ColorFor(formatID string) string {
	switch {
	case slices.Contains(greenFormats, formatID):
		return ColorGreen
	case slices.Contains(blueFormats, formatID):
		return ColorBlue
	}
	return ColorDefault
}

// colorKey prefers the itag query parameter of the media URL over the declared format id.
func colorKey(mediaURL, formatID string) string {
	if u, err := url.Parse(mediaURL); err == nil {
		if itag := u.Query().Get("itag"); itag != "" {
			return itag
		}
	}
	return formatID
}
