package upapi

import (
	"net/url"
	"strconv"
)

const (
	accountsPageSize     = 50
	transactionsPageSize = 100
)

// Resource models a generic JSON:API resource object.
type Resource struct {
	Type          string                            `json:"type"`
	ID            string                            `json:"id"`
	Attributes    map[string]any                    `json:"attributes,omitempty"`
	Relationships map[string]map[string]interface{} `json:"relationships,omitempty"`
	Links         map[string]string                 `json:"links,omitempty"`
}

// ListResponse models paginated list endpoints.
type ListResponse struct {
	Data  []Resource `json:"data"`
	Links struct {
		Prev *string `json:"prev"`
		Next *string `json:"next"`
	} `json:"links"`
}

// StringAttr walks nested attribute objects, e.g. StringAttr("amount", "value").
func (r Resource) StringAttr(path ...string) string {
	var cur any = r.Attributes
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

// RelationshipID returns data.id of a to-one relationship, or "".
func (r Resource) RelationshipID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok {
		return ""
	}
	data, ok := rel["data"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := data["id"].(string)
	return id
}

func pageSizeQueryWithSize(size int) url.Values {
	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(size))
	return query
}
