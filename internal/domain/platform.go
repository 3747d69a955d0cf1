package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlatform is returned for an ad platform name with no integration.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform names an advertising destination.
type Platform string

const (
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
	PlatformTikTok Platform = "tiktok"
)

// Platforms lists every supported destination in display order.
func Platforms() []Platform {
	return []Platform{PlatformMeta, PlatformGoogle, PlatformTikTok}
}

// ParsePlatform accepts a platform name in any case.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformMeta, PlatformGoogle, PlatformTikTok:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// DisplayName is the human-readable product name.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformMeta:
		return "Meta (Facebook/Instagram)"
	case PlatformGoogle:
		return "Google Ads Customer Match"
	case PlatformTikTok:
		return "TikTok Custom Audiences"
	}
	return string(p)
}

// DocsURL points at the platform's custom audience documentation.
func (p Platform) DocsURL() string {
	switch p {
	case PlatformMeta:
		return "https://developers.facebook.com/docs/marketing-api/audiences/guides/custom-audiences"
	case PlatformGoogle:
		return "https://support.google.com/google-ads/answer/6276125"
	case PlatformTikTok:
		return "https://ads.tiktok.com/marketing_api/docs?id=1739940570793985"
	}
	return ""
}

func (p Platform) String() string { return string(p) }
