package registry

import (
	"slices"
)

// BundleMetadata describes one downloadable bundle as published by a metadata source.
type BundleMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Author      string              `json:"author"`
	Bundles     map[string][]string `json:"bundles"` // platform id -> ordered file ids
	Tags        []string            `json:"tags"`
	Error       *string             `json:"error,omitempty"` // set only when the source flagged a problem
	LastUpdated int64               `json:"lastUpdated"`
}

// Entry pairs a bundle identifier with its metadata.
type Entry struct {
	ID string `json:"id"`
	BundleMetadata
}

// SupportsPlatform reports whether the bundle has a variant for platform.
func (m BundleMetadata) SupportsPlatform(platform string) bool {
	_, ok := m.Bundles[platform]
	return ok
}

// Files returns the file identifiers of the platform variant, or nil.
func (m BundleMetadata) Files(platform string) []string {
	return slices.Clone(m.Bundles[platform])
}

// HasTag reports whether tag is among the bundle's tags.
func (m BundleMetadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// ErrorMessage returns the source-reported error, or "" when there is none.
func (m BundleMetadata) ErrorMessage() string {
	if m.Error == nil {
		return ""
	}
	return *m.Error
}

// clone returns a deep copy so the registry never shares maps or slices with callers.
func (m BundleMetadata) clone() BundleMetadata {
	out := m
	if m.Bundles != nil {
		out.Bundles = make(map[string][]string, len(m.Bundles))
		for platform, files := range m.Bundles {
			out.Bundles[platform] = slices.Clone(files)
		}
	}
	out.Tags = slices.Clone(m.Tags)
	if m.Error != nil {
		msg := *m.Error
		out.Error = &msg
	}
	return out
}
