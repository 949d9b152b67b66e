package registry

import (
	"encoding/json"
	"fmt"
)

// DecodeMetadata parses a metadata document: a JSON object keyed by bundle identifier.
func DecodeMetadata(body []byte) (map[string]BundleMetadata, error) {
	var doc map[string]BundleMetadata
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		doc = map[string]BundleMetadata{}
	}
	return doc, nil
}

// EncodeMetadata renders entries back into the metadata document format.
func EncodeMetadata(entries []Entry) ([]byte, error) {
	doc := make(map[string]BundleMetadata, len(entries))
	for _, e := range entries {
		doc[e.ID] = e.BundleMetadata
	}
	return json.Marshal(doc)
}
