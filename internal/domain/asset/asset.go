// Package asset defines the searchable projection of a catalog asset and the
// field schema shared by every index writer and reader.
package asset

import (
	"strconv"
	"strings"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
)

// Schema field names. Writers and readers of the index use exactly these keys.
const (
	FieldID              = "id"
	FieldName            = "name"
	FieldDescription     = "description"
	FieldSecondaryText   = "secondaryText"
	FieldCode            = "code"
	FieldType            = "type"
	FieldCategoryID      = "categoryId"
	FieldCategoryName    = "categoryName"
	FieldStatus          = "status"
	FieldTags            = "tags"
	FieldHierarchyLevel1 = "hierarchyLevel1"
	FieldHierarchyLevel2 = "hierarchyLevel2"
	FieldHierarchyLevel3 = "hierarchyLevel3"
	FieldQualityScore    = "qualityScore"
	FieldPopularity      = "popularity"
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
	FieldSearchText      = "searchText"
)

// TagSeparator joins multi-valued tags in the hash encoding.
const TagSeparator = ","

// TextField is a full-text field with its query-time boost.
type TextField struct {
	Name  string
	Boost float64
}

// TextFields lists the full-text fields in boost order.
var TextFields = []TextField{
	{FieldName, 5.0},
	{FieldCode, 3.0},
	{FieldDescription, 2.0},
	{FieldSecondaryText, 2.0},
	{FieldCategoryName, 1.5},
	{FieldSearchText, 1.0},
}

var tagFields = map[string]bool{
	FieldStatus: true, FieldType: true, FieldCategoryID: true, FieldTags: true,
	FieldHierarchyLevel1: true, FieldHierarchyLevel2: true, FieldHierarchyLevel3: true,
}

var numericFields = map[string]bool{
	FieldQualityScore: true, FieldPopularity: true, FieldCreatedAt: true, FieldUpdatedAt: true,
}

// IsTagField reports whether key supports exact match filtering.
func IsTagField(key string) bool { return tagFields[key] }

// IsNumericField reports whether key supports range filtering.
func IsNumericField(key string) bool { return numericFields[key] }

// Document is the denormalized, searchable projection of one catalog asset.
type Document struct {
	ID              string    `json:"id" msgpack:"id"`
	Name            string    `json:"name" msgpack:"name"`
	Description     string    `json:"description,omitempty" msgpack:"description"`
	SecondaryText   string    `json:"secondaryText,omitempty" msgpack:"secondaryText"`
	Code            string    `json:"code,omitempty" msgpack:"code"`
	Type            string    `json:"type,omitempty" msgpack:"type"`
	CategoryID      string    `json:"categoryId,omitempty" msgpack:"categoryId"`
	CategoryName    string    `json:"categoryName,omitempty" msgpack:"categoryName"`
	Status          string    `json:"status,omitempty" msgpack:"status"`
	Tags            []string  `json:"tags,omitempty" msgpack:"tags"`
	HierarchyLevel1 string    `json:"hierarchyLevel1,omitempty" msgpack:"hierarchyLevel1"`
	HierarchyLevel2 string    `json:"hierarchyLevel2,omitempty" msgpack:"hierarchyLevel2"`
	HierarchyLevel3 string    `json:"hierarchyLevel3,omitempty" msgpack:"hierarchyLevel3"`
	QualityScore    float64   `json:"qualityScore" msgpack:"qualityScore"`
	Popularity      int64     `json:"popularity" msgpack:"popularity"`
	CreatedAt       time.Time `json:"createdAt" msgpack:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" msgpack:"updatedAt"`
	SearchText      string    `json:"-" msgpack:"searchText"`
}

// WithSearchText returns a copy with SearchText rebuilt from the searchable fields.
func (d Document) WithSearchText() Document {
	parts := []string{
		d.Name, d.Description, d.SecondaryText, d.Code, d.CategoryName,
		d.HierarchyLevel1, d.HierarchyLevel2, d.HierarchyLevel3,
	}
	parts = append(parts, d.Tags...)
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	d.SearchText = strings.Join(nonEmpty, " ")
	return d
}

// TextValue returns the text of a full-text field.
func (d Document) TextValue(field string) string {
	switch field {
	case FieldName:
		return d.Name
	case FieldDescription:
		return d.Description
	case FieldSecondaryText:
		return d.SecondaryText
	case FieldCode:
		return d.Code
	case FieldCategoryName:
		return d.CategoryName
	case FieldSearchText:
		return d.SearchText
	}
	return ""
}

// HasTag reports whether the document carries value for a tag field.
func (d Document) HasTag(key, value string) bool {
	switch key {
	case FieldStatus:
		return d.Status == value
	case FieldType:
		return d.Type == value
	case FieldCategoryID:
		return d.CategoryID == value
	case FieldHierarchyLevel1:
		return d.HierarchyLevel1 == value
	case FieldHierarchyLevel2:
		return d.HierarchyLevel2 == value
	case FieldHierarchyLevel3:
		return d.HierarchyLevel3 == value
	case FieldTags:
		for _, t := range d.Tags {
			if t == value {
				return true
			}
		}
	}
	return false
}

// Numeric returns the value of a numeric field. Timestamps are unix milliseconds.
func (d Document) Numeric(key string) (float64, bool) {
	switch key {
	case FieldQualityScore:
		return d.QualityScore, true
	case FieldPopularity:
		return float64(d.Popularity), true
	case FieldCreatedAt:
		return float64(d.CreatedAt.UnixMilli()), true
	case FieldUpdatedAt:
		return float64(d.UpdatedAt.UnixMilli()), true
	}
	return 0, false
}

// Matches evaluates a filter expression against the document.
func (d Document) Matches(expr filter.Expression) bool {
	return expr.Eval(d.HasTag, d.Numeric)
}

// ToFields encodes the document as flat string fields for hash storage.
func (d Document) ToFields() map[string]string {
	d = d.WithSearchText()
	return map[string]string{
		FieldID:              d.ID,
		FieldName:            d.Name,
		FieldDescription:     d.Description,
		FieldSecondaryText:   d.SecondaryText,
		FieldCode:            d.Code,
		FieldType:            d.Type,
		FieldCategoryID:      d.CategoryID,
		FieldCategoryName:    d.CategoryName,
		FieldStatus:          d.Status,
		FieldTags:            strings.Join(d.Tags, TagSeparator),
		FieldHierarchyLevel1: d.HierarchyLevel1,
		FieldHierarchyLevel2: d.HierarchyLevel2,
		FieldHierarchyLevel3: d.HierarchyLevel3,
		FieldQualityScore:    strconv.FormatFloat(d.QualityScore, 'f', -1, 64),
		FieldPopularity:      strconv.FormatInt(d.Popularity, 10),
		FieldCreatedAt:       strconv.FormatInt(d.CreatedAt.UnixMilli(), 10),
		FieldUpdatedAt:       strconv.FormatInt(d.UpdatedAt.UnixMilli(), 10),
		FieldSearchText:      d.SearchText,
	}
}

// FromFields decodes a document from hash fields. Malformed numbers decode as zero.
func FromFields(fields map[string]string) Document {
	d := Document{
		ID:              fields[FieldID],
		Name:            fields[FieldName],
		Description:     fields[FieldDescription],
		SecondaryText:   fields[FieldSecondaryText],
		Code:            fields[FieldCode],
		Type:            fields[FieldType],
		CategoryID:      fields[FieldCategoryID],
		CategoryName:    fields[FieldCategoryName],
		Status:          fields[FieldStatus],
		HierarchyLevel1: fields[FieldHierarchyLevel1],
		HierarchyLevel2: fields[FieldHierarchyLevel2],
		HierarchyLevel3: fields[FieldHierarchyLevel3],
		SearchText:      fields[FieldSearchText],
	}
	if raw := fields[FieldTags]; raw != "" {
		d.Tags = strings.Split(raw, TagSeparator)
	}
	d.QualityScore, _ = strconv.ParseFloat(fields[FieldQualityScore], 64)
	d.Popularity, _ = strconv.ParseInt(fields[FieldPopularity], 10, 64)
	if ms, err := strconv.ParseInt(fields[FieldCreatedAt], 10, 64); err == nil {
		d.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields[FieldUpdatedAt], 10, 64); err == nil {
		d.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return d
}
