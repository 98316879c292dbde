// Package store holds the recipient registry backends. Every backend satisfies
// both the recipient and admin store contracts consumed by the service and
// reports misses with sentinel errors.
package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
)

func encodeRecipient(r *models.Recipient) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode recipient: %w", err)
	}
	return data, nil
}

func decodeRecipient(data []byte) (*models.Recipient, error) {
	var r models.Recipient
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode recipient: %w", err)
	}
	return &r, nil
}

// pageFrom cuts an id-ordered, already filtered candidate slice into a page.
// candidates may hold one element past the limit to signal more data.
func pageFrom(candidates []*models.Recipient, limit int) *models.RecipientPage {
	page := &models.RecipientPage{Recipients: candidates}
	if len(candidates) > limit {
		page.Recipients = candidates[:limit]
		page.NextAfter = candidates[limit-1].ID
	}
	if page.Recipients == nil {
		page.Recipients = []*models.Recipient{}
	}
	return page
}

func sortedIDs(ids []id.RecipientID) []id.RecipientID {
	out := append([]id.RecipientID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
